package assistant

import (
	"context"
	"fmt"

	"github.com/grafana/grafana-plugin-sdk-go/backend/log"

	"github.com/sabio/grafana-explore-assistant/pkg/catalog"
	"github.com/sabio/grafana-explore-assistant/pkg/config"
	"github.com/sabio/grafana-explore-assistant/pkg/llm"
	"github.com/sabio/grafana-explore-assistant/pkg/looker"
)

// Service bundles everything a surface needs to serve the assistant
type Service struct {
	Manager *Manager
	Looker  *looker.Client
	Backend string
}

// Setup builds the host client, the generator, the catalog and examples,
// and the session manager from settings. The catalog is fetched once here.
func Setup(ctx context.Context, settings *config.Settings) (*Service, error) {
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	host := looker.NewClient(settings.LookerConfig())

	generator, err := llm.NewGenerator(ctx, settings.LLMConfig(), host)
	if err != nil {
		return nil, fmt.Errorf("failed to create generator: %w", err)
	}

	cat, err := host.Explore(ctx, settings.LookerModel, settings.LookerExplore)
	if err != nil {
		return nil, fmt.Errorf("failed to load explore metadata: %w", err)
	}
	if cat.Len() == 0 {
		return nil, fmt.Errorf("explore %s/%s has no visible fields", settings.LookerModel, settings.LookerExplore)
	}

	examples := &catalog.Examples{}
	if settings.ExamplesConnection != "" {
		loader := catalog.NewLoader(host, settings.ExamplesConnection, settings.ExamplesDataset)
		loaded, err := loader.Load(ctx, settings.LookerModel, settings.LookerExplore)
		if err != nil {
			log.DefaultLogger.Warn("Failed to load examples, continuing without them", "error", err)
		} else {
			examples = loaded
		}
	}

	log.DefaultLogger.Info("Explore assistant ready",
		"backend", generator.Name(),
		"model", settings.LookerModel,
		"explore", settings.LookerExplore,
		"dimensions", len(cat.Dimensions),
		"measures", len(cat.Measures),
		"generation_examples", len(examples.Generation),
		"refinement_examples", len(examples.Refinement),
	)

	translator := NewTranslator(generator, host, cat, examples, TranslatorConfig{
		Model:         settings.LookerModel,
		Explore:       settings.LookerExplore,
		HistoryWindow: settings.HistoryWindow,
	})

	return &Service{
		Manager: NewManager(translator, HistoryConfig{
			MaxMessages:   settings.MaxMessages,
			MaxCharacters: settings.MaxCharacters,
		}),
		Looker:  host,
		Backend: generator.Name(),
	}, nil
}

// Health checks that the host API is reachable with the configured credentials
func (s *Service) Health(ctx context.Context) error {
	return s.Looker.Health(ctx)
}
