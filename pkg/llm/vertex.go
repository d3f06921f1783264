package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const defaultVertexModel = "gemini-2.0-flash"

// VertexConfig configures the Gemini client. APIKey selects the Gemini API;
// otherwise Project/Location select Vertex AI with default credentials.
type VertexConfig struct {
	APIKey   string
	Project  string
	Location string
	Model    string
	BaseURL  string
}

// VertexClient calls Gemini models directly
type VertexClient struct {
	client *genai.Client
	model  string
}

// NewVertexClient creates a Gemini / Vertex AI generator
func NewVertexClient(ctx context.Context, cfg VertexConfig) (*VertexClient, error) {
	cc := &genai.ClientConfig{}
	if cfg.APIKey != "" {
		cc.APIKey = cfg.APIKey
		cc.Backend = genai.BackendGeminiAPI
	} else {
		if cfg.Project == "" {
			return nil, fmt.Errorf("vertex backend requires a project or an API key")
		}
		cc.Project = cfg.Project
		cc.Location = cfg.Location
		cc.Backend = genai.BackendVertexAI
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = defaultVertexModel
	}

	return &VertexClient{
		client: client,
		model:  model,
	}, nil
}

// Name returns the backend name
func (c *VertexClient) Name() string {
	return BackendVertex
}

// Generate sends the prompt as a single user turn
func (c *VertexClient) Generate(ctx context.Context, contents string, params Parameters) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0.05),
		TopP:        genai.Ptr[float32](0.98),
	}
	if params.MaxOutputTokens > 0 {
		config.MaxOutputTokens = int32(params.MaxOutputTokens)
	}

	result, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(contents), config)
	if err != nil {
		return "", transportError(err)
	}

	text := strings.TrimSpace(result.Text())
	if text == "" {
		return "", malformed("empty Gemini response")
	}

	return text, nil
}
