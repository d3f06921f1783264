package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigBackend(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"empty", Config{}, ""},
		{"openai only", Config{OpenAIAPIKey: "k"}, BackendOpenAI},
		{"vertex beats openai", Config{GeminiAPIKey: "g", OpenAIAPIKey: "k"}, BackendVertex},
		{"signed beats vertex", Config{Endpoint: "http://x", VertexProject: "p"}, BackendSigned},
		{"bigquery beats signed", Config{Endpoint: "http://x", BigQueryConnection: "c", BigQueryModelID: "m"}, BackendBigQuery},
		{"bigquery needs both", Config{BigQueryConnection: "c", Endpoint: "http://x"}, BackendSigned},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.Backend())
		})
	}
}

func TestNewGenerator(t *testing.T) {
	ctx := context.Background()

	_, err := NewGenerator(ctx, Config{}, nil)
	assert.ErrorIs(t, err, ErrNoBackend)

	_, err = NewGenerator(ctx, Config{BigQueryConnection: "c", BigQueryModelID: "m"}, nil)
	assert.Error(t, err)

	gen, err := NewGenerator(ctx, Config{BigQueryConnection: "c", BigQueryModelID: "m"}, &fakeRunner{})
	require.NoError(t, err)
	assert.Equal(t, BackendBigQuery, gen.Name())

	gen, err = NewGenerator(ctx, Config{Endpoint: "http://localhost"}, nil)
	require.NoError(t, err)
	assert.Equal(t, BackendSigned, gen.Name())

	gen, err = NewGenerator(ctx, Config{OpenAIAPIKey: "k"}, nil)
	require.NoError(t, err)
	assert.Equal(t, BackendOpenAI, gen.Name())
}

func TestSignedClientGenerate(t *testing.T) {
	const secret = "s3cret"

	var gotBody []byte
	var gotSig string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get(SignatureHeader)
		w.Write([]byte("  fields=orders.count&limit=10\n"))
	}))
	defer server.Close()

	client := NewSignedClient(server.URL, secret, 0)
	out, err := client.Generate(context.Background(), "a < b & c", Parameters{MaxOutputTokens: 2000})
	require.NoError(t, err)

	assert.Equal(t, "fields=orders.count&limit=10", out)
	assert.Equal(t, `{"contents":"a < b & c","parameters":{"max_output_tokens":2000}}`, string(gotBody))
	assert.Equal(t, Sign(gotBody, secret), gotSig)
	assert.True(t, VerifySignature(gotBody, secret, gotSig))
	assert.False(t, VerifySignature(gotBody, "other", gotSig))
}

func TestSignedClientEmptyParameters(t *testing.T) {
	var req signedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), `"parameters":{}`)
		_ = json.Unmarshal(body, &req)
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	_, err := NewSignedClient(server.URL, "", 0).Generate(context.Background(), "hello", Parameters{})
	require.NoError(t, err)
	assert.Equal(t, "hello", req.Contents)
}

func TestSignedClientErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("bad signature"))
	}))
	defer server.Close()

	_, err := NewSignedClient(server.URL, "x", 0).Generate(context.Background(), "p", Parameters{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.Contains(t, err.Error(), "403")

	server.Close()
	_, err = NewSignedClient(server.URL, "x", 0).Generate(context.Background(), "p", Parameters{})
	assert.ErrorIs(t, err, ErrTransport)
}

type fakeRunner struct {
	connection string
	sql        string
	slug       string
	rows       []map[string]interface{}
	createErr  error
	runErr     error
}

func (f *fakeRunner) CreateSQLQuery(_ context.Context, connection, sql string) (string, error) {
	f.connection = connection
	f.sql = sql
	return f.slug, f.createErr
}

func (f *fakeRunner) RunSQLQuery(_ context.Context, slug, format string) ([]map[string]interface{}, error) {
	if format != "json" {
		return nil, errors.New("unexpected format " + format)
	}
	return f.rows, f.runErr
}

func TestBigQueryClientGenerate(t *testing.T) {
	runner := &fakeRunner{
		slug: "abc",
		rows: []map[string]interface{}{
			{"generated_content": "```json\nfields=a.b\n```"},
		},
	}

	client := NewBigQueryClient(runner, "bq_conn", "proj.ds.model")
	out, err := client.Generate(context.Background(), "it's a test", Parameters{MaxOutputTokens: 500})
	require.NoError(t, err)

	assert.Equal(t, "fields=a.b", out)
	assert.Equal(t, "bq_conn", runner.connection)
	assert.Contains(t, runner.sql, "MODEL `proj.ds.model`")
	assert.Contains(t, runner.sql, `'it\'s a test'`)
	assert.Contains(t, runner.sql, "500 AS max_output_tokens")
}

func TestBigQueryClientErrors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		runner *fakeRunner
		want   error
	}{
		{"create fails", &fakeRunner{createErr: errors.New("boom")}, ErrTransport},
		{"no slug", &fakeRunner{}, ErrMalformedResponse},
		{"run fails", &fakeRunner{slug: "s", runErr: errors.New("boom")}, ErrTransport},
		{"no rows", &fakeRunner{slug: "s"}, ErrMalformedResponse},
		{"wrong type", &fakeRunner{slug: "s", rows: []map[string]interface{}{{"generated_content": 12}}}, ErrMalformedResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBigQueryClient(tt.runner, "c", "m").Generate(ctx, "p", Parameters{})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestGenerateSQLDefaultTokens(t *testing.T) {
	sql := GenerateSQL("m", "line1\nline2", Parameters{})
	assert.Contains(t, sql, "1024 AS max_output_tokens")
	assert.Contains(t, sql, `'line1\nline2'`)
	assert.False(t, strings.Contains(sql, "line1\nline2"))
}

func TestOpenAIClientGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		var req struct {
			Model     string `json:"model"`
			MaxTokens int    `json:"max_tokens"`
			Messages  []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-test", req.Model)
		assert.Equal(t, 100, req.MaxTokens)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":" data summary \n"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient("key", "gpt-test", server.URL+"/v1")
	require.NoError(t, err)

	out, err := client.Generate(context.Background(), "classify me", Parameters{MaxOutputTokens: 100})
	require.NoError(t, err)
	assert.Equal(t, "data summary", out)
}

func TestOpenAIClientNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"1","choices":[]}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient("key", "", server.URL)
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), "x", Parameters{})
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestNewOpenAIClientRequiresKey(t *testing.T) {
	_, err := NewOpenAIClient("", "", "")
	assert.Error(t, err)
}

func TestVertexClientGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "models/gemini-test:generateContent"), r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"fields=orders.count\n"}]}}]}`))
	}))
	defer server.Close()

	client, err := NewVertexClient(context.Background(), VertexConfig{
		APIKey:  "key",
		Model:   "gemini-test",
		BaseURL: server.URL,
	})
	require.NoError(t, err)
	assert.Equal(t, BackendVertex, client.Name())

	out, err := client.Generate(context.Background(), "prompt", Parameters{MaxOutputTokens: 50})
	require.NoError(t, err)
	assert.Equal(t, "fields=orders.count", out)
}

func TestNewVertexClientRequiresProjectOrKey(t *testing.T) {
	_, err := NewVertexClient(context.Background(), VertexConfig{})
	assert.Error(t, err)
}
