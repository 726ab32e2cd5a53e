package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/crewroom/crewroom/pkg/models"
	"github.com/crewroom/crewroom/pkg/service"
)

// AIHandler provides HTTP handlers for the AI breakdown workflow
type AIHandler struct {
	Svc      *service.BreakdownService
	Analyzer service.ProblemAnalyzer
	Logger   *slog.Logger
}

func NewAIHandler(svc *service.BreakdownService, analyzer service.ProblemAnalyzer, logger *slog.Logger) *AIHandler {
	return &AIHandler{Svc: svc, Analyzer: analyzer, Logger: logger}
}

// breakdownStatus maps workflow sentinels onto HTTP codes.
func breakdownStatus(err error) (int, bool) {
	switch {
	case errors.Is(err, service.ErrAnalysisNotFound):
		return http.StatusNotFound, true
	case errors.Is(err, service.ErrAnalysisAlreadyApplied):
		return http.StatusBadRequest, true
	case errors.Is(err, service.ErrAnalysisFailed):
		return http.StatusBadGateway, true
	case errors.Is(err, service.ErrNoModelConfigured):
		return http.StatusBadRequest, true
	}
	return membershipStatus(err)
}

type analyzeProblemRequest struct {
	ProblemDescription string `json:"problem_description" binding:"required"`
	Language           string `json:"language,omitempty"`
}

// AnalyzeProblem runs the analysis step alone, without touching any room
// state. Useful for previewing before committing to a breakdown.
func (h *AIHandler) AnalyzeProblem(c *gin.Context) {
	var req analyzeProblemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.Response{Code: 400, Message: "Invalid request parameters: " + err.Error()})
		return
	}
	analysis, err := h.Analyzer.Analyze(c.Request.Context(), req.ProblemDescription, req.Language)
	if err != nil {
		h.Logger.Error("Problem analysis failed", "error", err)
		if errors.Is(err, service.ErrNoModelConfigured) {
			c.JSON(http.StatusBadRequest, models.Response{Code: 400, Message: err.Error()})
			return
		}
		c.JSON(http.StatusBadGateway, models.Response{Code: 502, Message: "AI analysis failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, models.Response{Code: 200, Message: "Analysis complete", Data: analysis})
}

func (h *AIHandler) BreakdownTask(c *gin.Context) {
	var req service.CreateBreakdownRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.Response{Code: 400, Message: "Invalid request parameters: " + err.Error()})
		return
	}
	projection, err := h.Svc.Create(c.Request.Context(), CurrentUserID(c), &req)
	if err != nil {
		if code, ok := breakdownStatus(err); ok {
			c.JSON(code, models.Response{Code: code, Message: err.Error()})
			return
		}
		h.Logger.Error("Failed to create breakdown", "roomID", req.RoomID, "error", err)
		c.JSON(http.StatusInternalServerError, models.Response{Code: 500, Message: err.Error()})
		return
	}
	h.Logger.Info("Breakdown created via API", "analysisID", projection.AnalysisID, "roomID", req.RoomID, "subtasks", len(projection.Subtasks), "clientIP", c.ClientIP())
	c.JSON(http.StatusOK, models.Response{Code: 200, Message: "Breakdown created", Data: projection})
}

func (h *AIHandler) ApplyBreakdown(c *gin.Context) {
	var req service.ApplyBreakdownRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.Response{Code: 400, Message: "Invalid request parameters: " + err.Error()})
		return
	}
	result, err := h.Svc.Apply(c.Request.Context(), CurrentUserID(c), &req)
	if err != nil {
		if code, ok := breakdownStatus(err); ok {
			c.JSON(code, models.Response{Code: code, Message: err.Error()})
			return
		}
		h.Logger.Error("Failed to apply breakdown", "analysisID", req.AnalysisID, "error", err)
		c.JSON(http.StatusInternalServerError, models.Response{Code: 500, Message: err.Error()})
		return
	}
	h.Logger.Info("Breakdown applied via API", "analysisID", result.AnalysisID, "created", result.TotalCreated, "clientIP", c.ClientIP())
	c.JSON(http.StatusOK, models.Response{Code: 200, Message: "Breakdown applied", Data: result})
}

// HistoryResponse wraps a history page with its total count.
type HistoryResponse struct {
	Items []service.HistoryItem `json:"items"`
	Total int64                 `json:"total"`
}

func (h *AIHandler) History(c *gin.Context) {
	roomID, err := strconv.ParseUint(c.Param("roomId"), 10, 64)
	if err != nil || roomID == 0 {
		c.JSON(http.StatusBadRequest, models.Response{Code: 400, Message: "Invalid room id"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	items, total, err := h.Svc.History(c.Request.Context(), CurrentUserID(c), uint(roomID), limit, offset)
	if err != nil {
		if code, ok := breakdownStatus(err); ok {
			c.JSON(code, models.Response{Code: code, Message: err.Error()})
			return
		}
		h.Logger.Error("Failed to list analysis history", "roomID", roomID, "error", err)
		c.JSON(http.StatusInternalServerError, models.Response{Code: 500, Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, models.Response{Code: 200, Message: "Retrieved successfully", Data: HistoryResponse{Items: items, Total: total}})
}

func analysisIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("analysisId"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, models.Response{Code: 400, Message: "Invalid analysis id"})
		return 0, false
	}
	return uint(id), true
}

func (h *AIHandler) GetAnalysis(c *gin.Context) {
	analysisID, ok := analysisIDParam(c)
	if !ok {
		return
	}
	projection, err := h.Svc.Get(c.Request.Context(), CurrentUserID(c), analysisID)
	if err != nil {
		if code, ok := breakdownStatus(err); ok {
			c.JSON(code, models.Response{Code: code, Message: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, models.Response{Code: 500, Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, models.Response{Code: 200, Message: "Retrieved successfully", Data: projection})
}

func (h *AIHandler) DeleteAnalysis(c *gin.Context) {
	analysisID, ok := analysisIDParam(c)
	if !ok {
		return
	}
	if err := h.Svc.Delete(c.Request.Context(), CurrentUserID(c), analysisID); err != nil {
		if code, ok := breakdownStatus(err); ok {
			c.JSON(code, models.Response{Code: code, Message: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, models.Response{Code: 500, Message: err.Error()})
		return
	}
	h.Logger.Info("Analysis deleted via API", "analysisID", analysisID, "clientIP", c.ClientIP())
	c.JSON(http.StatusOK, models.Response{Code: 200, Message: "Deleted successfully"})
}
