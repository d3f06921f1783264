package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/grafana/grafana-plugin-sdk-go/backend/log"
)

// DefaultExamplesDataset is the dataset holding the example tables
const DefaultExamplesDataset = "explore_assistant"

const (
	generationExamplesTable = "explore_assistant_examples"
	refinementExamplesTable = "explore_assistant_refinement_examples"
)

// GenerationExample maps a question to an explore URL
type GenerationExample struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// RefinementExample maps a sequence of prompts to the merged prompt
type RefinementExample struct {
	Input  []string `json:"input"`
	Output string   `json:"output"`
}

// Examples holds the few-shot examples for one explore
type Examples struct {
	Generation []GenerationExample
	Refinement []RefinementExample
}

// SQLRunner submits SQL through the host and fetches the rows by slug
type SQLRunner interface {
	CreateSQLQuery(ctx context.Context, connection, sql string) (string, error)
	RunSQLQuery(ctx context.Context, slug, format string) ([]map[string]interface{}, error)
}

// Loader reads example tables through the host SQL interface
type Loader struct {
	runner     SQLRunner
	connection string
	dataset    string
}

// NewLoader creates a Loader. An empty dataset falls back to DefaultExamplesDataset.
func NewLoader(runner SQLRunner, connection, dataset string) *Loader {
	if dataset == "" {
		dataset = DefaultExamplesDataset
	}

	return &Loader{
		runner:     runner,
		connection: connection,
		dataset:    dataset,
	}
}

// Load fetches generation and refinement examples for model:explore
func (l *Loader) Load(ctx context.Context, model, explore string) (*Examples, error) {
	exploreID := model + ":" + explore

	var generation []GenerationExample
	if err := l.loadTable(ctx, generationExamplesTable, exploreID, func(raw []byte) error {
		var batch []GenerationExample
		if err := json.Unmarshal(raw, &batch); err != nil {
			return err
		}
		generation = append(generation, batch...)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("failed to load generation examples: %w", err)
	}

	var refinement []RefinementExample
	if err := l.loadTable(ctx, refinementExamplesTable, exploreID, func(raw []byte) error {
		var batch []RefinementExample
		if err := json.Unmarshal(raw, &batch); err != nil {
			return err
		}
		refinement = append(refinement, batch...)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("failed to load refinement examples: %w", err)
	}

	log.DefaultLogger.Info("Loaded examples", "explore", exploreID, "generation", len(generation), "refinement", len(refinement))

	return &Examples{
		Generation: generation,
		Refinement: refinement,
	}, nil
}

// loadTable runs the examples query for one table and decodes each row.
// Rows that fail to decode are skipped.
func (l *Loader) loadTable(ctx context.Context, table, exploreID string, decode func([]byte) error) error {
	sql := ExamplesSQL(l.dataset, table, exploreID)

	slug, err := l.runner.CreateSQLQuery(ctx, l.connection, sql)
	if err != nil {
		return err
	}
	if slug == "" {
		return nil
	}

	rows, err := l.runner.RunSQLQuery(ctx, slug, "json")
	if err != nil {
		return err
	}

	if len(rows) == 0 {
		log.DefaultLogger.Warn("No examples found", "table", table, "explore", exploreID)
		return nil
	}

	for i, row := range rows {
		raw, ok := row["examples"].(string)
		if !ok {
			log.DefaultLogger.Warn("Example row has no examples column", "table", table, "row", i)
			continue
		}
		if err := decode([]byte(raw)); err != nil {
			log.DefaultLogger.Warn("Skipping unparsable example row", "table", table, "row", i, "error", err)
		}
	}

	return nil
}

// ExamplesSQL builds the query reading one example table
func ExamplesSQL(dataset, table, exploreID string) string {
	return fmt.Sprintf("SELECT examples FROM `%s.%s` WHERE explore_id = '%s'",
		strings.ReplaceAll(dataset, "`", ""), table, EscapeString(exploreID))
}

// EscapeString escapes s for use inside a single-quoted SQL string literal
func EscapeString(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`'`, `\'`,
		"\n", `\n`,
		"\r", `\r`,
		"\t", `\t`,
	)
	return r.Replace(s)
}
