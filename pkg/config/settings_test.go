package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sabio/grafana-explore-assistant/pkg/llm"
)

func TestLoadSettings(t *testing.T) {
	tests := []struct {
		name     string
		jsonData string
		wantErr  bool
		check    func(t *testing.T, s *Settings)
	}{
		{
			name:     "empty uses defaults",
			jsonData: "",
			check: func(t *testing.T, s *Settings) {
				assert.Equal(t, DefaultHistoryWindow, s.HistoryWindow)
				assert.Equal(t, DefaultRequestsPerMinute, s.RequestsPerMinute)
				assert.Equal(t, DefaultRequestTimeout*time.Second, s.Timeout())
			},
		},
		{
			name: "full settings",
			jsonData: `{
				"looker_base_url": "https://looker.example.com",
				"looker_client_id": "id",
				"looker_model": "retail",
				"looker_explore": "orders",
				"vertex_ai_endpoint": "https://cf.example.com",
				"bigquery_example_prompts_connection_name": "bq",
				"history_window": 5,
				"requests_per_minute": 10
			}`,
			check: func(t *testing.T, s *Settings) {
				assert.Equal(t, "https://looker.example.com", s.LookerBaseURL)
				assert.Equal(t, "retail", s.LookerModel)
				assert.Equal(t, "orders", s.LookerExplore)
				assert.Equal(t, "bq", s.ExamplesConnection)
				assert.Equal(t, 5, s.HistoryWindow)
				assert.Equal(t, 10, s.RequestsPerMinute)
			},
		},
		{
			name:     "secrets are never read from plain JSON",
			jsonData: `{"openai_api_key": "leaked", "looker_client_secret": "leaked"}`,
			check: func(t *testing.T, s *Settings) {
				assert.Empty(t, s.OpenAIAPIKey)
				assert.Empty(t, s.LookerClientSecret)
			},
		},
		{
			name:     "invalid json",
			jsonData: `{invalid`,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := LoadSettings([]byte(tt.jsonData))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, s)
		})
	}
}

func TestApplySecrets(t *testing.T) {
	s, err := LoadSettings(nil)
	require.NoError(t, err)

	s.OpenAIAPIKey = "keep"
	s.ApplySecrets(map[string]string{
		SecretLookerClientSecret: "ls",
		SecretVertexCFAuthToken:  "cf",
		SecretGeminiAPIKey:       "gm",
	})

	assert.Equal(t, "ls", s.LookerClientSecret)
	assert.Equal(t, "cf", s.VertexCFAuthToken)
	assert.Equal(t, "gm", s.GeminiAPIKey)
	assert.Equal(t, "keep", s.OpenAIAPIKey)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"VERTEX_AI_ENDPOINT":                       "https://cf.example.com",
		"VERTEX_CF_AUTH_TOKEN":                     "secret",
		"VERTEX_BIGQUERY_LOOKER_CONNECTION_NAME":   "bq_conn",
		"VERTEX_BIGQUERY_MODEL_ID":                 "proj.ds.model",
		"BIGQUERY_EXAMPLE_PROMPTS_CONNECTION_NAME": "bq_examples",
		"BIGQUERY_EXAMPLE_PROMPTS_DATASET_NAME":    "examples_ds",
		"LOOKER_MODEL":                             "retail",
		"LOOKER_EXPLORE":                           "orders",
		"HISTORY_WINDOW":                           "7",
		"REQUESTS_PER_MINUTE":                      "not-a-number",
	}

	s, err := LoadSettings([]byte(`{"looker_model": "from_json"}`))
	require.NoError(t, err)
	s.ApplyEnv(func(key string) string { return env[key] })

	assert.Equal(t, "https://cf.example.com", s.VertexAIEndpoint)
	assert.Equal(t, "secret", s.VertexCFAuthToken)
	assert.Equal(t, "bq_conn", s.BigQueryConnection)
	assert.Equal(t, "proj.ds.model", s.BigQueryModelID)
	assert.Equal(t, "bq_examples", s.ExamplesConnection)
	assert.Equal(t, "examples_ds", s.ExamplesDataset)
	assert.Equal(t, "retail", s.LookerModel)
	assert.Equal(t, "orders", s.LookerExplore)
	assert.Equal(t, 7, s.HistoryWindow)
	assert.Equal(t, DefaultRequestsPerMinute, s.RequestsPerMinute)

	assert.Equal(t, llm.BackendBigQuery, s.LLMConfig().Backend())
}

func TestValidate(t *testing.T) {
	valid := func() *Settings {
		s, _ := LoadSettings(nil)
		s.LookerBaseURL = "https://looker.example.com"
		s.LookerClientID = "id"
		s.LookerClientSecret = "secret"
		s.LookerModel = "retail"
		s.LookerExplore = "orders"
		s.OpenAIAPIKey = "sk"
		return s
	}

	tests := []struct {
		name    string
		mutate  func(s *Settings)
		wantErr string
	}{
		{"valid", func(s *Settings) {}, ""},
		{"missing base url", func(s *Settings) { s.LookerBaseURL = "" }, "base URL"},
		{"missing secret", func(s *Settings) { s.LookerClientSecret = "" }, "client ID and secret"},
		{"missing explore", func(s *Settings) { s.LookerExplore = "" }, "model and explore"},
		{"no backend", func(s *Settings) { s.OpenAIAPIKey = "" }, "text-generation backend"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(s)
			err := s.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDerivedConfigs(t *testing.T) {
	s, err := LoadSettings([]byte(`{"looker_base_url": "https://l", "looker_client_id": "id", "request_timeout_seconds": 30, "openai_model": "gpt-4o-mini"}`))
	require.NoError(t, err)
	s.ApplySecrets(map[string]string{SecretLookerClientSecret: "sec", SecretOpenAIAPIKey: "sk"})

	lc := s.LookerConfig()
	assert.Equal(t, "https://l", lc.BaseURL)
	assert.Equal(t, "sec", lc.ClientSecret)
	assert.Equal(t, 30*time.Second, lc.Timeout)

	gc := s.LLMConfig()
	assert.Equal(t, llm.BackendOpenAI, gc.Backend())
	assert.Equal(t, "gpt-4o-mini", gc.OpenAIModel)
}
