// AI analysis service: problem analysis and task breakdown generation
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/crewroom/crewroom/pkg/db"
	"github.com/crewroom/crewroom/pkg/models"
	"github.com/crewroom/crewroom/pkg/utils"
)

// MemberProfile is the assignee context handed to the generator so it can
// suggest responsible users.
type MemberProfile struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
}

// BreakdownResult is the generator's output for one request.
type BreakdownResult struct {
	Subtasks        []db.SubtaskSuggestion `json:"subtasks"`
	OverallStrategy string                 `json:"overall_strategy"`
	ModelUsed       string                 `json:"model_used"`
	Warnings        []string               `json:"warnings,omitempty"`
}

// ProblemAnalyzer turns a free-text problem description into a structured
// analysis payload.
type ProblemAnalyzer interface {
	Analyze(ctx context.Context, description, language string) (models.JSONMap, error)
}

// BreakdownGenerator proposes an ordered subtask list for an analyzed problem.
type BreakdownGenerator interface {
	Generate(ctx context.Context, analysis models.JSONMap, description string, members []MemberProfile, useReasoning bool) (*BreakdownResult, error)
}

// AIService implements both AI steps over a configured chat model.
type AIService struct {
	modelService   *ModelService
	defaultModel   string
	reasoningModel string
	logger         *slog.Logger
}

// NewAIService creates the AI analysis service. defaultModel and
// reasoningModel name entries in the model config; empty strings mean
// "first configured model".
func NewAIService(modelService *ModelService, defaultModel, reasoningModel string) *AIService {
	return &AIService{
		modelService:   modelService,
		defaultModel:   defaultModel,
		reasoningModel: reasoningModel,
		logger:         utils.GetLogger(),
	}
}

// Analyze asks the model to classify the problem and extract requirements.
func (s *AIService) Analyze(ctx context.Context, description, language string) (models.JSONMap, error) {
	prompt := fmt.Sprintf(`Analyze the following problem description for a team task planner.

Return a JSON object with:
- problem_type: short classification (e.g., "feature", "bugfix", "research", "process")
- summary: one-sentence restatement of the problem
- key_requirements: array of strings, the concrete requirements extracted from the text
- risks: array of strings, notable risks or unknowns (may be empty)
- estimated_complexity: "low", "medium" or "high"

Answer in %s. Output the JSON object only, no prose.

Problem description:
%s`, languageName(language), description)

	cfg, err := s.modelService.ResolveModel(s.defaultModel, false)
	if err != nil {
		return nil, err
	}
	chatModel, err := s.modelService.CreateChatModel(ctx, cfg)
	if err != nil {
		return nil, err
	}

	resp, err := chatModel.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return nil, fmt.Errorf("problem analysis failed: %w", err)
	}

	raw := extractJSONObject(resp.Content)
	var analysis models.JSONMap
	if err := json.Unmarshal([]byte(raw), &analysis); err != nil {
		s.logger.Warn("Failed to parse analysis JSON", "error", err, "content", resp.Content)
		return nil, fmt.Errorf("problem analysis returned unparseable output: %w", err)
	}
	return analysis, nil
}

// Generate asks the model for an ordered subtask breakdown, suggesting
// assignees from the given member list.
func (s *AIService) Generate(ctx context.Context, analysis models.JSONMap, description string, members []MemberProfile, useReasoning bool) (*BreakdownResult, error) {
	analysisJSON, err := json.Marshal(analysis)
	if err != nil {
		return nil, err
	}

	var memberList strings.Builder
	for _, m := range members {
		fmt.Fprintf(&memberList, "- id=%d username=%s\n", m.UserID, m.Username)
	}
	if memberList.Len() == 0 {
		memberList.WriteString("(no members available; leave assignments empty)\n")
	}

	prompt := fmt.Sprintf(`You are planning work for a team. Break the problem below into concrete subtasks.

Problem analysis:
%s

Problem description:
%s

Team members who can be assigned:
%s
Return a JSON object with:
- overall_strategy: short paragraph describing the execution order and approach
- subtasks: ordered array, each with:
  - title (required), description (required)
  - priority: "low", "medium", "high" or "urgent"
  - estimated_hours: number (optional)
  - complexity_score: integer 1-10 (optional)
  - due_date_days: integer offset in days from now (optional)
  - assigned_to_user_id: id of the best-suited member (optional)
  - assigned_to_username: that member's username (optional)

Only assign listed members. Output the JSON object only.`, analysisJSON, description, memberList.String())

	preferred := s.defaultModel
	if useReasoning && s.reasoningModel != "" {
		preferred = s.reasoningModel
	}
	cfg, err := s.modelService.ResolveModel(preferred, useReasoning)
	if err != nil {
		return nil, err
	}
	chatModel, err := s.modelService.CreateChatModel(ctx, cfg)
	if err != nil {
		return nil, err
	}

	resp, err := chatModel.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return nil, fmt.Errorf("breakdown generation failed: %w", err)
	}

	result, err := parseBreakdownResponse(resp.Content)
	if err != nil {
		s.logger.Warn("Failed to parse breakdown JSON", "error", err, "content", resp.Content)
		return nil, err
	}
	result.ModelUsed = cfg.Model
	return result, nil
}

// parseBreakdownResponse parses the generator's reply, dropping malformed
// suggestions with a warning instead of failing the whole request.
func parseBreakdownResponse(content string) (*BreakdownResult, error) {
	raw := extractJSONObject(content)

	var parsed struct {
		OverallStrategy string                 `json:"overall_strategy"`
		Subtasks        []db.SubtaskSuggestion `json:"subtasks"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("breakdown generation returned unparseable output: %w", err)
	}

	result := &BreakdownResult{
		OverallStrategy: parsed.OverallStrategy,
	}
	for i, st := range parsed.Subtasks {
		if strings.TrimSpace(st.Title) == "" || strings.TrimSpace(st.Description) == "" {
			result.Warnings = append(result.Warnings, fmt.Sprintf("dropped subtask %d: missing title or description", i))
			continue
		}
		result.Subtasks = append(result.Subtasks, st)
	}
	if len(parsed.Subtasks) == 0 {
		result.Warnings = append(result.Warnings, "generator returned no subtasks")
	}
	return result, nil
}

// extractJSONObject trims a model reply down to its outermost JSON object.
// Models habitually wrap JSON in prose or code fences.
func extractJSONObject(content string) string {
	content = strings.TrimSpace(content)
	if idx := strings.Index(content, "{"); idx >= 0 {
		content = content[idx:]
	}
	if idx := strings.LastIndex(content, "}"); idx >= 0 {
		content = content[:idx+1]
	}
	return content
}

func languageName(code string) string {
	switch strings.ToLower(code) {
	case "", "en":
		return "English"
	case "ru":
		return "Russian"
	case "zh":
		return "Chinese"
	default:
		return code
	}
}
