package llm

import (
	"context"
	"fmt"

	"github.com/sabio/grafana-explore-assistant/pkg/catalog"
	"github.com/sabio/grafana-explore-assistant/pkg/explore"
)

const defaultSQLMaxOutputTokens = 1024

// BigQueryClient generates text by running ML.GENERATE_TEXT through the host's SQL interface
type BigQueryClient struct {
	runner     catalog.SQLRunner
	connection string
	modelID    string
}

// NewBigQueryClient creates a SQL-routed generator
func NewBigQueryClient(runner catalog.SQLRunner, connection, modelID string) *BigQueryClient {
	return &BigQueryClient{
		runner:     runner,
		connection: connection,
		modelID:    modelID,
	}
}

// Name returns the backend name
func (c *BigQueryClient) Name() string {
	return BackendBigQuery
}

// Generate runs the generation query and returns the cleaned generated content
func (c *BigQueryClient) Generate(ctx context.Context, contents string, params Parameters) (string, error) {
	sql := GenerateSQL(c.modelID, contents, params)

	slug, err := c.runner.CreateSQLQuery(ctx, c.connection, sql)
	if err != nil {
		return "", transportError(err)
	}
	if slug == "" {
		return "", malformed("create SQL query returned no slug")
	}

	rows, err := c.runner.RunSQLQuery(ctx, slug, "json")
	if err != nil {
		return "", transportError(err)
	}

	if len(rows) == 0 {
		return "", malformed("SQL query %s returned no rows", slug)
	}

	content, _ := rows[0]["generated_content"].(string)
	if content == "" {
		return "", malformed("SQL query %s returned no generated content", slug)
	}

	return explore.CleanGenerated(content), nil
}

// GenerateSQL builds the ML.GENERATE_TEXT statement for a prompt
func GenerateSQL(modelID, prompt string, params Parameters) string {
	maxTokens := params.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = defaultSQLMaxOutputTokens
	}

	return fmt.Sprintf(`SELECT ml_generate_text_llm_result AS generated_content
FROM
ML.GENERATE_TEXT(
  MODEL `+"`%s`"+`,
  (
    SELECT '%s' AS prompt
  ),
  STRUCT(
    0.05 AS temperature,
    %d AS max_output_tokens,
    0.98 AS top_p,
    TRUE AS flatten_json_output,
    1 AS top_k)
)`, modelID, catalog.EscapeString(prompt), maxTokens)
}
