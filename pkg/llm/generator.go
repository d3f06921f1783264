package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sabio/grafana-explore-assistant/pkg/catalog"
)

var (
	// ErrTransport marks network and HTTP failures reaching the backend
	ErrTransport = errors.New("transport failure")

	// ErrMalformedResponse marks a backend answer that could not be read
	ErrMalformedResponse = errors.New("malformed response")

	// ErrNoBackend is returned when no text-generation backend is configured
	ErrNoBackend = errors.New("no text-generation backend configured")
)

// Parameters are the generation parameters sent with a prompt
type Parameters struct {
	MaxOutputTokens int `json:"max_output_tokens,omitempty"`
}

// Generator turns a prompt into generated text
type Generator interface {
	Generate(ctx context.Context, contents string, params Parameters) (string, error)
	Name() string
}

// Config selects and configures the text-generation backend
type Config struct {
	// Signed HTTP endpoint
	Endpoint  string
	AuthToken string

	// SQL-routed generation through the host
	BigQueryConnection string
	BigQueryModelID    string

	// Gemini / Vertex AI
	VertexProject  string
	VertexLocation string
	VertexModel    string
	GeminiAPIKey   string

	// OpenAI-compatible chat completions
	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	Timeout time.Duration
}

// Backend names the transport NewGenerator would pick for cfg, or "" if none.
// Precedence: bigquery, signed, vertex, openai.
func (cfg Config) Backend() string {
	switch {
	case cfg.BigQueryConnection != "" && cfg.BigQueryModelID != "":
		return BackendBigQuery
	case cfg.Endpoint != "":
		return BackendSigned
	case cfg.GeminiAPIKey != "" || cfg.VertexProject != "":
		return BackendVertex
	case cfg.OpenAIAPIKey != "":
		return BackendOpenAI
	default:
		return ""
	}
}

// Backend names
const (
	BackendBigQuery = "bigquery"
	BackendSigned   = "signed"
	BackendVertex   = "vertex"
	BackendOpenAI   = "openai"
)

// NewGenerator builds the single active transport for cfg.
// runner is only used by the SQL-routed backend.
func NewGenerator(ctx context.Context, cfg Config, runner catalog.SQLRunner) (Generator, error) {
	switch cfg.Backend() {
	case BackendBigQuery:
		if runner == nil {
			return nil, fmt.Errorf("bigquery backend requires a SQL runner")
		}
		return NewBigQueryClient(runner, cfg.BigQueryConnection, cfg.BigQueryModelID), nil
	case BackendSigned:
		return NewSignedClient(cfg.Endpoint, cfg.AuthToken, cfg.Timeout), nil
	case BackendVertex:
		client, err := NewVertexClient(ctx, VertexConfig{
			APIKey:   cfg.GeminiAPIKey,
			Project:  cfg.VertexProject,
			Location: cfg.VertexLocation,
			Model:    cfg.VertexModel,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	case BackendOpenAI:
		client, err := NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, ErrNoBackend
	}
}

func transportError(err error) error {
	return fmt.Errorf("%w: %w", ErrTransport, err)
}

func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrMalformedResponse, fmt.Sprintf(format, args...))
}
