// Command explore-mcp serves the explore assistant over MCP, on stdio or SSE.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sabio/grafana-explore-assistant/pkg/assistant"
	"github.com/sabio/grafana-explore-assistant/pkg/config"
	"github.com/sabio/grafana-explore-assistant/pkg/mcpserver"
)

var logger *zap.Logger

type options struct {
	transport string
	host      string
	port      int
	verbose   bool
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "explore-mcp",
		Short: "Natural-language explore URLs over MCP",
		Long: `explore-mcp translates questions into explore URL parameters for a
configured model and explore, and summarizes query results.

Settings are read from the environment (LOOKER_*, VERTEX_*, OPENAI_*, ...)
after loading an optional .env file.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := validateTransport(opts.transport); err != nil {
				return err
			}

			cfg := zap.NewProductionConfig()
			if opts.verbose {
				cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			var err error
			logger, err = cfg.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.transport, "transport", getEnv("MCP_TRANSPORT", "stdio"), "Transport mode: stdio or sse")
	cmd.Flags().StringVar(&opts.host, "host", getEnv("MCP_HOST", "0.0.0.0"), "Host to bind to (for SSE mode)")
	cmd.Flags().IntVar(&opts.port, "port", getEnvInt("MCP_PORT", 8080), "Port to listen on (for SSE mode)")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	return cmd
}

func validateTransport(transport string) error {
	switch transport {
	case "stdio", "sse":
		return nil
	default:
		return fmt.Errorf("unknown transport mode: %s (must be stdio or sse)", transport)
	}
}

func loadSettings() (*config.Settings, error) {
	// A missing .env is fine; the environment may already be set.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("Failed to load .env", zap.Error(err))
	}

	settings, err := config.LoadSettings(nil)
	if err != nil {
		return nil, err
	}
	settings.ApplyEnv(os.Getenv)
	return settings, nil
}

func run(ctx context.Context, opts *options) error {
	settings, err := loadSettings()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	logger.Info("Starting explore assistant MCP server",
		zap.String("model", settings.LookerModel),
		zap.String("explore", settings.LookerExplore),
		zap.String("backend", settings.LLMConfig().Backend()),
	)

	svc, err := assistant.Setup(ctx, settings)
	if err != nil {
		return fmt.Errorf("failed to set up assistant: %w", err)
	}

	mcpServer := mcpserver.NewMCPServer(svc.Manager, mcpserver.Options{
		Timeout:           settings.Timeout(),
		RequestsPerMinute: settings.RequestsPerMinute,
	})
	mcpServer.RegisterTools()

	logger.Info("Registered MCP tools", zap.String("backend", svc.Backend))

	switch opts.transport {
	case "sse":
		return runSSE(mcpServer, fmt.Sprintf("%s:%d", opts.host, opts.port))
	default:
		return runStdio(ctx, mcpServer)
	}
}

func runStdio(ctx context.Context, mcpServer *mcpserver.MCPServer) error {
	logger.Info("Running server with stdio transport")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stdioServer := server.NewStdioServer(mcpServer.GetServer())
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

func runSSE(mcpServer *mcpserver.MCPServer, addr string) error {
	logger.Info("Running server with SSE transport", zap.String("addr", addr), zap.String("endpoint", "http://"+addr+"/sse"))

	sseServer := server.NewSSEServer(mcpServer.GetServer(), "/sse")

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logger.Info("Shutting down server")
		if err := sseServer.Shutdown(context.Background()); err != nil {
			logger.Error("Error during shutdown", zap.Error(err))
		}
	}()

	if err := sseServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
