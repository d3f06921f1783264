package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sabio/grafana-explore-assistant/pkg/llm"
	"github.com/sabio/grafana-explore-assistant/pkg/looker"
)

// Defaults
const (
	DefaultHistoryWindow     = 20
	DefaultRequestsPerMinute = 30
	DefaultRequestTimeout    = 120
)

// Settings holds the assistant configuration
type Settings struct {
	// Host (Looker API)
	LookerBaseURL      string `json:"looker_base_url"`
	LookerClientID     string `json:"looker_client_id"`
	LookerClientSecret string `json:"-"`
	LookerModel        string `json:"looker_model"`
	LookerExplore      string `json:"looker_explore"`

	// Signed endpoint
	VertexAIEndpoint  string `json:"vertex_ai_endpoint"`
	VertexCFAuthToken string `json:"-"`

	// SQL-routed generation
	BigQueryConnection string `json:"vertex_bigquery_looker_connection_name"`
	BigQueryModelID    string `json:"vertex_bigquery_model_id"`

	// Example tables
	ExamplesConnection string `json:"bigquery_example_prompts_connection_name"`
	ExamplesDataset    string `json:"bigquery_example_prompts_dataset_name"`

	// Gemini / Vertex AI
	VertexProject  string `json:"vertex_project"`
	VertexLocation string `json:"vertex_location"`
	VertexModel    string `json:"vertex_model"`
	GeminiAPIKey   string `json:"-"`

	// OpenAI-compatible
	OpenAIAPIKey  string `json:"-"`
	OpenAIModel   string `json:"openai_model"`
	OpenAIBaseURL string `json:"openai_base_url"`

	HistoryWindow     int `json:"history_window"`
	MaxMessages       int `json:"max_messages"`
	MaxCharacters     int `json:"max_characters"`
	RequestsPerMinute int `json:"requests_per_minute"`
	RequestTimeout    int `json:"request_timeout_seconds"`
}

// Secure JSON keys
const (
	SecretLookerClientSecret = "looker_client_secret"
	SecretVertexCFAuthToken  = "vertex_cf_auth_token"
	SecretGeminiAPIKey       = "gemini_api_key"
	SecretOpenAIAPIKey       = "openai_api_key"
)

// LoadSettings loads settings from plugin JSON data
func LoadSettings(jsonData []byte) (*Settings, error) {
	settings := &Settings{}

	if len(jsonData) > 0 {
		if err := json.Unmarshal(jsonData, settings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
		}
	}

	settings.applyDefaults()
	return settings, nil
}

func (s *Settings) applyDefaults() {
	if s.HistoryWindow <= 0 {
		s.HistoryWindow = DefaultHistoryWindow
	}
	if s.RequestsPerMinute <= 0 {
		s.RequestsPerMinute = DefaultRequestsPerMinute
	}
	if s.RequestTimeout <= 0 {
		s.RequestTimeout = DefaultRequestTimeout
	}
}

// ApplySecrets copies decrypted secure JSON values into the settings
func (s *Settings) ApplySecrets(secure map[string]string) {
	setIfPresent(&s.LookerClientSecret, secure[SecretLookerClientSecret])
	setIfPresent(&s.VertexCFAuthToken, secure[SecretVertexCFAuthToken])
	setIfPresent(&s.GeminiAPIKey, secure[SecretGeminiAPIKey])
	setIfPresent(&s.OpenAIAPIKey, secure[SecretOpenAIAPIKey])
}

// ApplyEnv overrides settings from environment variables. getenv is usually os.Getenv.
func (s *Settings) ApplyEnv(getenv func(string) string) {
	strs := map[string]*string{
		"LOOKER_BASE_URL":                          &s.LookerBaseURL,
		"LOOKER_CLIENT_ID":                         &s.LookerClientID,
		"LOOKER_CLIENT_SECRET":                     &s.LookerClientSecret,
		"LOOKER_MODEL":                             &s.LookerModel,
		"LOOKER_EXPLORE":                           &s.LookerExplore,
		"VERTEX_AI_ENDPOINT":                       &s.VertexAIEndpoint,
		"VERTEX_CF_AUTH_TOKEN":                     &s.VertexCFAuthToken,
		"VERTEX_BIGQUERY_LOOKER_CONNECTION_NAME":   &s.BigQueryConnection,
		"VERTEX_BIGQUERY_MODEL_ID":                 &s.BigQueryModelID,
		"BIGQUERY_EXAMPLE_PROMPTS_CONNECTION_NAME": &s.ExamplesConnection,
		"BIGQUERY_EXAMPLE_PROMPTS_DATASET_NAME":    &s.ExamplesDataset,
		"VERTEX_PROJECT":                           &s.VertexProject,
		"VERTEX_LOCATION":                          &s.VertexLocation,
		"VERTEX_MODEL":                             &s.VertexModel,
		"GEMINI_API_KEY":                           &s.GeminiAPIKey,
		"OPENAI_API_KEY":                           &s.OpenAIAPIKey,
		"OPENAI_MODEL":                             &s.OpenAIModel,
		"OPENAI_BASE_URL":                          &s.OpenAIBaseURL,
	}
	for key, dst := range strs {
		setIfPresent(dst, getenv(key))
	}

	ints := map[string]*int{
		"HISTORY_WINDOW":          &s.HistoryWindow,
		"MAX_MESSAGES":            &s.MaxMessages,
		"MAX_CHARACTERS":          &s.MaxCharacters,
		"REQUESTS_PER_MINUTE":     &s.RequestsPerMinute,
		"REQUEST_TIMEOUT_SECONDS": &s.RequestTimeout,
	}
	for key, dst := range ints {
		if v, err := strconv.Atoi(getenv(key)); err == nil && v > 0 {
			*dst = v
		}
	}
}

func setIfPresent(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

// Validate checks if required settings are present
func (s *Settings) Validate() error {
	var errs []error

	if s.LookerBaseURL == "" {
		errs = append(errs, errors.New("looker base URL is required"))
	}
	if s.LookerClientID == "" || s.LookerClientSecret == "" {
		errs = append(errs, errors.New("looker client ID and secret are required"))
	}
	if s.LookerModel == "" || s.LookerExplore == "" {
		errs = append(errs, errors.New("looker model and explore are required"))
	}
	if s.LLMConfig().Backend() == "" {
		errs = append(errs, errors.New("at least one text-generation backend must be configured"))
	}

	return errors.Join(errs...)
}

// Timeout returns the per-request timeout
func (s *Settings) Timeout() time.Duration {
	return time.Duration(s.RequestTimeout) * time.Second
}

// LLMConfig returns the generator configuration
func (s *Settings) LLMConfig() llm.Config {
	return llm.Config{
		Endpoint:           s.VertexAIEndpoint,
		AuthToken:          s.VertexCFAuthToken,
		BigQueryConnection: s.BigQueryConnection,
		BigQueryModelID:    s.BigQueryModelID,
		VertexProject:      s.VertexProject,
		VertexLocation:     s.VertexLocation,
		VertexModel:        s.VertexModel,
		GeminiAPIKey:       s.GeminiAPIKey,
		OpenAIAPIKey:       s.OpenAIAPIKey,
		OpenAIModel:        s.OpenAIModel,
		OpenAIBaseURL:      s.OpenAIBaseURL,
		Timeout:            s.Timeout(),
	}
}

// LookerConfig returns the host client configuration
func (s *Settings) LookerConfig() looker.Config {
	return looker.Config{
		BaseURL:      s.LookerBaseURL,
		ClientID:     s.LookerClientID,
		ClientSecret: s.LookerClientSecret,
		Timeout:      s.Timeout(),
	}
}
