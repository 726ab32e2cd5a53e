package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino-ext/components/model/qianfan"
	"github.com/cloudwego/eino-ext/components/model/qwen"
	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/crewroom/crewroom/pkg/models"
	"github.com/crewroom/crewroom/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"google.golang.org/genai"
)

// ErrNoModelConfigured is returned when no chat model can be resolved for an
// AI request.
var ErrNoModelConfigured = errors.New("no AI model configured")

type ModelService struct {
	logger *slog.Logger
}

func NewModelService() *ModelService {
	return &ModelService{
		logger: utils.GetLogger(),
	}
}

// GetModelList fetch model list
func (m *ModelService) GetModelList(c *gin.Context) {
	modelsList, err := models.LoadModels()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "message": "Failed to read model list"})
		return
	}

	for _, mm := range modelsList {
		mm.Normalize()
		mm.ApiKey = utils.MaskSensitiveString(mm.ApiKey)
	}

	c.JSON(http.StatusOK, gin.H{"code": 200, "data": modelsList})
}

// AddModel add a new model
func (m *ModelService) AddModel(c *gin.Context) {
	var req models.ModelConfig
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": "Invalid parameters"})
		return
	}
	req.Normalize()
	if req.Name == "" || req.Provider == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": "Name and provider required"})
		return
	}
	if _, ok := models.SupportedModelProviders[req.Provider]; !ok {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": "Unsupported model provider"})
		return
	}
	currentModels, err := models.LoadModels()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "message": "Failed to read model list"})
		return
	}
	for _, mm := range currentModels {
		if mm.Name == req.Name {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": "Model name already exists"})
			return
		}
	}
	req.ID = uuid.New().String()
	currentModels = append(currentModels, &req)
	if err := models.SaveModels(currentModels); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "message": "Failed to save model"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "message": "Added successfully"})
}

// EditModel edit an existing model
func (m *ModelService) EditModel(c *gin.Context) {
	id := c.Param("id")
	var req models.ModelConfig
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": "Invalid parameters"})
		return
	}
	req.Normalize()
	currentModels, err := models.LoadModels()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "message": "Failed to read model list"})
		return
	}
	found := false
	for i, mm := range currentModels {
		if mm.ID == id {
			req.ID = id
			// Keep the stored key when the client sends back the masked form
			if req.ApiKey == "" || req.ApiKey == utils.MaskSensitiveString(mm.ApiKey) {
				req.ApiKey = mm.ApiKey
			}
			currentModels[i] = &req
			found = true
			break
		}
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"code": 404, "message": "Model not found"})
		return
	}
	if err := models.SaveModels(currentModels); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "message": "Failed to save model"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "message": "Updated successfully"})
}

// DeleteModel delete a model
func (m *ModelService) DeleteModel(c *gin.Context) {
	id := c.Param("id")
	currentModels, err := models.LoadModels()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "message": "Failed to read model list"})
		return
	}
	next := make([]*models.ModelConfig, 0, len(currentModels))
	found := false
	for _, mm := range currentModels {
		if mm.ID == id {
			found = true
			continue
		}
		next = append(next, mm)
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"code": 404, "message": "Model not found"})
		return
	}
	if err := models.SaveModels(next); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "message": "Failed to save model"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "message": "Deleted successfully"})
}

// TestModelConnection connectivity test for model provider
func (m *ModelService) TestModelConnection(c *gin.Context) {
	var req models.ModelConfig
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": "Invalid parameters: " + err.Error()})
		return
	}
	req.Normalize()
	if req.Provider == "" {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "message": "Provider required"})
		return
	}

	ctx := c.Request.Context()
	chatModel, err := m.CreateChatModel(ctx, &req)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"code": 200, "success": false, "message": "Model init failed: " + err.Error()})
		return
	}
	if _, err := chatModel.Generate(ctx, []*schema.Message{{Role: schema.User, Content: "Hi"}}); err != nil {
		c.JSON(http.StatusOK, gin.H{"code": 200, "success": false, "message": "Connection failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "success": true, "message": "Connection successful"})
}

// CreateChatModel creates an eino chat model from config
func (m *ModelService) CreateChatModel(ctx context.Context, config *models.ModelConfig) (einoModel.ToolCallingChatModel, error) {
	if config == nil {
		return nil, fmt.Errorf("model config is nil")
	}

	switch config.Provider {
	case "openai", "custom":
		chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: config.BaseUrl,
			APIKey:  config.ApiKey,
			Model:   config.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenAI model: %w", err)
		}
		return chatModel, nil

	case "ark":
		timeout := time.Second * 600
		retries := 3
		region := ""
		if config.Extra != nil {
			if v, ok := config.Extra["region"]; ok {
				region, _ = v.(string)
			}
		}
		chatModel, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
			BaseURL:    config.BaseUrl,
			Region:     region,
			Timeout:    &timeout,
			RetryTimes: &retries,
			APIKey:     config.ApiKey,
			Model:      config.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Ark model: %w", err)
		}
		return chatModel, nil

	case "deepseek":
		chatModel, err := deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
			BaseURL: config.BaseUrl,
			APIKey:  config.ApiKey,
			Model:   config.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create DeepSeek model: %w", err)
		}
		return chatModel, nil

	case "anthropic":
		chatModel, err := claude.NewChatModel(ctx, &claude.Config{
			BaseURL:   &config.BaseUrl,
			APIKey:    config.ApiKey,
			Model:     config.Model,
			MaxTokens: 8192,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Claude model: %w", err)
		}
		return chatModel, nil

	case "ollama":
		chatModel, err := ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
			BaseURL: config.BaseUrl,
			Model:   config.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama model: %w", err)
		}
		return chatModel, nil

	case "google":
		genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  config.ApiKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		chatModel, err := gemini.NewChatModel(ctx, &gemini.Config{
			Client: genaiClient,
			Model:  config.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini model: %w", err)
		}
		return chatModel, nil

	case "qianfan":
		qianfanConfig := qianfan.GetQianfanSingletonConfig()
		qianfanConfig.BaseURL = config.BaseUrl
		qianfanConfig.BearerToken = config.ApiKey
		chatModel, err := qianfan.NewChatModel(ctx, &qianfan.ChatModelConfig{
			Model: config.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Qianfan model: %w", err)
		}
		return chatModel, nil

	case "qwen":
		chatModel, err := qwen.NewChatModel(ctx, &qwen.ChatModelConfig{
			BaseURL: config.BaseUrl,
			APIKey:  config.ApiKey,
			Model:   config.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Qwen model: %w", err)
		}
		return chatModel, nil

	default:
		return nil, fmt.Errorf("unsupported model provider: %s", config.Provider)
	}
}

// GetModelConfig get specified model config (match by name or model field)
func (m *ModelService) GetModelConfig(modelName string) (*models.ModelConfig, error) {
	currentModels, err := models.LoadModels()
	if err != nil {
		return nil, err
	}
	for _, mm := range currentModels {
		mm.Normalize()
		if mm.Name == modelName || mm.Model == modelName {
			return mm, nil
		}
	}
	return nil, nil // not found
}

// ResolveModel picks the model config for an AI request. An explicit name
// wins; otherwise a reasoning-capable model is preferred when asked for one,
// falling back to the first configured model.
func (m *ModelService) ResolveModel(preferredName string, useReasoning bool) (*models.ModelConfig, error) {
	if preferredName != "" {
		cfg, err := m.GetModelConfig(preferredName)
		if err != nil {
			return nil, err
		}
		if cfg == nil {
			return nil, fmt.Errorf("model %q is not configured: %w", preferredName, ErrNoModelConfigured)
		}
		return cfg, nil
	}

	currentModels, err := models.LoadModels()
	if err != nil {
		return nil, err
	}
	if len(currentModels) == 0 {
		return nil, ErrNoModelConfigured
	}

	if useReasoning {
		for _, mm := range currentModels {
			mm.Normalize()
			if mm.SupportsReasoning() {
				return mm, nil
			}
		}
	}
	currentModels[0].Normalize()
	return currentModels[0], nil
}
