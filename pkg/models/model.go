package models

import (
	"encoding/json"
	"os"
	"path/filepath"
)

const modelFileName = ".crewroom/models.json"

// ModelCapabilities represents functional features that a model supports.
// All fields are optional and default to false when omitted.
type ModelCapabilities struct {
	Reasoning    bool `json:"reasoning,omitempty"`     // Chain-of-thought / deep thinking (e.g., o1, DeepSeek-R1)
	FunctionCall bool `json:"function_call,omitempty"` // Tool use / function calling
	Streaming    bool `json:"streaming,omitempty"`     // Streaming response support
	JSONMode     bool `json:"json_mode,omitempty"`     // Structured JSON output
}

// ModelLimits represents optional size limits.
type ModelLimits struct {
	MaxTokens     int `json:"max_tokens"`
	ContextWindow int `json:"context_window"`
}

// ModelConfig unified struct containing common fields and vendor extension fields.
// Extra stores vendor specific additional parameters.
type ModelConfig struct {
	ID           string                 `json:"id"`
	Provider     string                 `json:"provider"`
	Capabilities *ModelCapabilities     `json:"capabilities,omitempty"`
	Limits       *ModelLimits           `json:"limits,omitempty"`
	Model        string                 `json:"model"`    // Model identifier
	Name         string                 `json:"name"`     // Display name
	BaseUrl      string                 `json:"base_url"` // API endpoint
	ApiKey       string                 `json:"api_key"`  // API key
	Extra        map[string]interface{} `json:"extra"`    // Vendor-specific fields
}

func (m *ModelConfig) Normalize() {
	if m.Extra == nil {
		m.Extra = map[string]interface{}{}
	}
}

// SupportsReasoning reports whether the model advertises a reasoning mode.
func (m *ModelConfig) SupportsReasoning() bool {
	return m.Capabilities != nil && m.Capabilities.Reasoning
}

// Get model storage file path
func getModelFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return modelFileName // fallback
	}
	return filepath.Join(home, modelFileName)
}

// Load model list
func LoadModels() ([]*ModelConfig, error) {
	path := getModelFilePath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return []*ModelConfig{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var models []*ModelConfig
	if err := json.Unmarshal(data, &models); err != nil {
		return nil, err
	}
	for _, m := range models {
		if m != nil {
			m.Normalize()
		}
	}
	return models, nil
}

// Save model list
func SaveModels(models []*ModelConfig) error {
	path := getModelFilePath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	for _, m := range models {
		if m != nil {
			m.Normalize()
		}
	}
	data, err := json.MarshalIndent(models, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// SupportedModelProviders supported model providers
var SupportedModelProviders = map[string]struct{}{
	"openai":    {},
	"deepseek":  {},
	"anthropic": {},
	"google":    {},
	"ark":       {},
	"ollama":    {},
	"qianfan":   {},
	"qwen":      {},
	"custom":    {},
}
