package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/grafana/grafana-plugin-sdk-go/backend/log"

	"github.com/sabio/grafana-explore-assistant/pkg/catalog"
	"github.com/sabio/grafana-explore-assistant/pkg/explore"
	"github.com/sabio/grafana-explore-assistant/pkg/llm"
	"github.com/sabio/grafana-explore-assistant/pkg/looker"
)

// Output token limits per request kind
const (
	GenerationMaxTokens = 2000
	CorrectiveMaxTokens = 500
)

var (
	// ErrInvalidFields is returned when the corrected explore URL still
	// references fields outside the catalog
	ErrInvalidFields = errors.New("generated URL contains fields not present in metadata")

	// ErrEmptyResult is returned when a summarized query produces no data
	ErrEmptyResult = errors.New("query returned no data")
)

// InvalidFieldsError lists the fields that failed validation
type InvalidFieldsError struct {
	Fields []string
}

func (e *InvalidFieldsError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidFields, strings.Join(e.Fields, ", "))
}

func (e *InvalidFieldsError) Unwrap() error {
	return ErrInvalidFields
}

// Intent is the classified purpose of a follow-up prompt
type Intent string

const (
	IntentSummary    Intent = "summary"
	IntentRefinement Intent = "refinement"
)

// ResultType tells which part of a Result is set
type ResultType string

const (
	ResultExplore ResultType = "explore"
	ResultSummary ResultType = "summary"
)

// Result is the outcome of translating one prompt
type Result struct {
	Type       ResultType `json:"type"`
	ExploreURL string     `json:"explore_url,omitempty"`
	Href       string     `json:"href,omitempty"`
	Summary    string     `json:"summary,omitempty"`
	Prompt     string     `json:"prompt,omitempty"`
}

// QueryRunner creates and runs host queries
type QueryRunner interface {
	CreateQuery(ctx context.Context, q looker.WriteQuery) (string, error)
	RunQuery(ctx context.Context, queryID, format string) (string, error)
}

// TranslatorConfig names the explore the translator works against
type TranslatorConfig struct {
	Model         string
	Explore       string
	HistoryWindow int
}

// Translator turns prompts into explore URLs or data summaries
type Translator struct {
	generator llm.Generator
	queries   QueryRunner
	catalog   *catalog.Catalog
	examples  *catalog.Examples
	config    TranslatorConfig
}

// NewTranslator creates a translator. examples may be nil.
func NewTranslator(generator llm.Generator, queries QueryRunner, cat *catalog.Catalog, examples *catalog.Examples, config TranslatorConfig) *Translator {
	if examples == nil {
		examples = &catalog.Examples{}
	}
	if cat == nil {
		cat = &catalog.Catalog{}
	}
	if config.HistoryWindow == 0 {
		config.HistoryWindow = DefaultHistoryWindow
	}

	return &Translator{
		generator: generator,
		queries:   queries,
		catalog:   cat,
		examples:  examples,
		config:    config,
	}
}

// Catalog returns the metadata catalog used for validation
func (t *Translator) Catalog() *catalog.Catalog {
	return t.catalog
}

// Href builds the viewer link for explore args
func (t *Translator) Href(args string) string {
	return explore.Href(t.config.Model, t.config.Explore, args)
}

// GenerateExploreURL produces a validated explore URL for prompt. A result
// with unknown fields gets exactly one corrective request.
func (t *Translator) GenerateExploreURL(ctx context.Context, prompt string, history []Message) (string, error) {
	emit(ctx, Event{Stage: StageGenerating})

	contents := GenerationPrompt(GenerationParams{
		Explore:    t.config.Explore,
		Dimensions: t.catalog.Dimensions,
		Measures:   t.catalog.Measures,
		Examples:   t.examples.Generation,
		Prompt:     prompt,
	})

	args, unknown, err := t.generateArgs(ctx, contents, GenerationMaxTokens)
	if err != nil {
		return "", err
	}
	if len(unknown) == 0 {
		return args, nil
	}

	log.DefaultLogger.Warn("Generated explore URL has unknown fields, retrying", "fields", unknown)
	emit(ctx, Event{Stage: StageRetry, Message: "unknown fields: " + strings.Join(unknown, ", ")})

	contents = CorrectivePrompt(CorrectiveParams{
		History:   history,
		Question:  prompt,
		Unknown:   unknown,
		Available: t.catalog.Names(),
		Window:    t.config.HistoryWindow,
	})

	args, unknown, err = t.generateArgs(ctx, contents, CorrectiveMaxTokens)
	if err != nil {
		return "", err
	}
	if len(unknown) > 0 {
		return "", &InvalidFieldsError{Fields: unknown}
	}

	return args, nil
}

// generateArgs sends one generation request and validates the answer
func (t *Translator) generateArgs(ctx context.Context, contents string, maxTokens int) (string, []string, error) {
	raw, err := t.generator.Generate(ctx, contents, llm.Parameters{MaxOutputTokens: maxTokens})
	if err != nil {
		return "", nil, fmt.Errorf("generate explore URL: %w", err)
	}

	args := explore.UnquoteResponse(raw)
	q := explore.Parse(args)
	if len(q.Fields) == 0 {
		return "", nil, fmt.Errorf("%w: no fields in generated explore URL %q", llm.ErrMalformedResponse, args)
	}

	emit(ctx, Event{Stage: StageValidating})
	return args, explore.UnknownFields(q, t.catalog), nil
}

// Classify decides whether prompt asks for a data summary. Only the exact
// answer SummaryAnswer counts; anything else is a refinement.
func (t *Translator) Classify(ctx context.Context, prompt string) (Intent, error) {
	answer, err := t.generator.Generate(ctx, ClassificationPrompt(prompt), llm.Parameters{})
	if err != nil {
		return IntentRefinement, fmt.Errorf("classify prompt: %w", err)
	}

	if answer == SummaryAnswer {
		return IntentSummary, nil
	}
	return IntentRefinement, nil
}

// SummarizePrompts merges a sequence of prompts into a single prompt
func (t *Translator) SummarizePrompts(ctx context.Context, prompts []string) (string, error) {
	merged, err := t.generator.Generate(ctx, RefinementPrompt(t.examples.Refinement, prompts), llm.Parameters{})
	if err != nil {
		return "", fmt.Errorf("summarize prompts: %w", err)
	}

	merged = strings.TrimSpace(merged)
	if merged == "" {
		return "", fmt.Errorf("%w: empty merged prompt", llm.ErrMalformedResponse)
	}
	return merged, nil
}

// SummarizeExplore runs the query behind args and summarizes its data as
// titled sections of key points
func (t *Translator) SummarizeExplore(ctx context.Context, args string) (string, error) {
	if t.queries == nil {
		return "", errors.New("no query runner configured")
	}

	q := explore.Parse(args)
	queryID, err := t.queries.CreateQuery(ctx, looker.WriteQuery{
		Model:   t.config.Model,
		View:    t.config.Explore,
		Fields:  q.Fields,
		Filters: q.FilterMap(),
		Sorts:   q.Sorts,
		Limit:   q.LimitOrDefault(explore.DefaultLimit),
	})
	if err != nil {
		return "", fmt.Errorf("create query: %w", err)
	}

	data, err := t.queries.RunQuery(ctx, queryID, "md")
	if err != nil {
		return "", fmt.Errorf("run query %s: %w", queryID, err)
	}
	if strings.TrimSpace(data) == "" {
		return "", ErrEmptyResult
	}

	emit(ctx, Event{Stage: StageSummarizing})

	summary, err := t.generator.Generate(ctx, DataSummaryPrompt(data), llm.Parameters{})
	if err != nil {
		return "", fmt.Errorf("summarize data: %w", err)
	}

	slides, err := t.generator.Generate(ctx, SlidePrompt(summary), llm.Parameters{})
	if err != nil {
		return "", fmt.Errorf("refine summary: %w", err)
	}

	return slides, nil
}

// Translate handles one prompt against a conversation. Without a previous
// explore URL the prompt is translated directly. Otherwise it is classified:
// a summary request summarizes the latest explore, a refinement is merged
// with the query prompts of the recent history window and translated again.
func (t *Translator) Translate(ctx context.Context, prompt string, history []Message) (Result, error) {
	emit(ctx, Event{Stage: StageStart})

	latest := LatestExploreURL(history)
	if latest == "" {
		return t.explore(ctx, prompt, history)
	}

	intent, err := t.Classify(ctx, prompt)
	if err != nil {
		return Result{}, err
	}

	if intent == IntentSummary {
		summary, err := t.SummarizeExplore(ctx, latest)
		if err != nil {
			return Result{}, err
		}
		return Result{
			Type:       ResultSummary,
			ExploreURL: latest,
			Href:       t.Href(latest),
			Summary:    summary,
			Prompt:     prompt,
		}, nil
	}

	prompts := append(QueryPrompts(Recent(history, t.config.HistoryWindow)), prompt)
	merged, err := t.SummarizePrompts(ctx, prompts)
	if err != nil {
		return Result{}, err
	}

	return t.explore(ctx, merged, history)
}

func (t *Translator) explore(ctx context.Context, prompt string, history []Message) (Result, error) {
	args, err := t.GenerateExploreURL(ctx, prompt, history)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Type:       ResultExplore,
		ExploreURL: args,
		Href:       t.Href(args),
		Prompt:     prompt,
	}, nil
}
