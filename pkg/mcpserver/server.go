package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/time/rate"

	"github.com/sabio/grafana-explore-assistant/pkg/assistant"
)

// DefaultSessionID is used when a tool call names no session
const DefaultSessionID = "mcp"

// DefaultToolTimeout bounds a single tool call
const DefaultToolTimeout = 120 * time.Second

// MCPServer exposes the explore assistant as MCP tools
type MCPServer struct {
	manager *assistant.Manager
	server  *server.MCPServer
	limiter *rate.Limiter
	timeout time.Duration
}

// Options tunes tool execution. Zero values disable rate limiting and use
// DefaultToolTimeout.
type Options struct {
	Timeout           time.Duration
	RequestsPerMinute int
}

// NewMCPServer creates a new MCP server around manager
func NewMCPServer(manager *assistant.Manager, opts Options) *MCPServer {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultToolTimeout
	}

	return &MCPServer{
		manager: manager,
		server: server.NewMCPServer(
			"explore-assistant-mcp-server",
			"1.0.0",
		),
		limiter: newRateLimiter(opts.RequestsPerMinute),
		timeout: opts.Timeout,
	}
}

// GetServer returns the underlying MCP server
func (s *MCPServer) GetServer() *server.MCPServer {
	return s.server
}

// RegisterTools registers all MCP tools
func (s *MCPServer) RegisterTools() {
	s.server.AddTool(mcp.Tool{
		Name:        "generate_explore_url",
		Description: "Translates a natural-language question into explore URL parameters. Follow-up questions in the same session refine the previous query or summarize its data.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"prompt": map[string]interface{}{
					"type":        "string",
					"description": "Question about the data",
				},
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Conversation to continue (default: mcp)",
				},
			},
			Required: []string{"prompt"},
		},
	}, s.handleGenerateExploreURL)

	s.server.AddTool(mcp.Tool{
		Name:        "classify_prompt",
		Description: "Classifies a follow-up prompt as a data summary request or a query refinement",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"prompt": map[string]interface{}{
					"type":        "string",
					"description": "Follow-up prompt",
				},
			},
			Required: []string{"prompt"},
		},
	}, s.handleClassifyPrompt)

	s.server.AddTool(mcp.Tool{
		Name:        "summarize_explore",
		Description: "Runs the query behind explore URL parameters and summarizes the returned data",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"explore_url": map[string]interface{}{
					"type":        "string",
					"description": "Explore URL parameters, e.g. fields=orders.count&limit=10",
				},
			},
			Required: []string{"explore_url"},
		},
	}, s.handleSummarizeExplore)

	s.server.AddTool(mcp.Tool{
		Name:        "session_history",
		Description: "Returns the messages recorded for a session",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session to read (default: mcp)",
				},
				"reset": map[string]interface{}{
					"type":        "boolean",
					"description": "Clear the session after reading it",
					"default":     false,
				},
			},
		},
	}, s.handleSessionHistory)
}

func (s *MCPServer) handleGenerateExploreURL(arguments map[string]interface{}) (*mcp.CallToolResult, error) {
	if limited := s.enforceRateLimit(); limited != nil {
		return limited, nil
	}

	prompt := strings.TrimSpace(getStringParam(arguments, "prompt", ""))
	if prompt == "" {
		return mcp.NewToolResultError("prompt is required"), nil
	}
	sessionID := getStringParam(arguments, "session_id", DefaultSessionID)

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	result, err := s.manager.Run(ctx, sessionID, prompt)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to translate prompt: %v", err)), nil
	}

	return mcp.NewToolResultText(formatJSON(result)), nil
}

func (s *MCPServer) handleClassifyPrompt(arguments map[string]interface{}) (*mcp.CallToolResult, error) {
	if limited := s.enforceRateLimit(); limited != nil {
		return limited, nil
	}

	prompt := strings.TrimSpace(getStringParam(arguments, "prompt", ""))
	if prompt == "" {
		return mcp.NewToolResultError("prompt is required"), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	intent, err := s.manager.Translator().Classify(ctx, prompt)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to classify prompt: %v", err)), nil
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"intent": intent,
	})), nil
}

func (s *MCPServer) handleSummarizeExplore(arguments map[string]interface{}) (*mcp.CallToolResult, error) {
	if limited := s.enforceRateLimit(); limited != nil {
		return limited, nil
	}

	args := strings.TrimSpace(getStringParam(arguments, "explore_url", ""))
	if args == "" {
		return mcp.NewToolResultError("explore_url is required"), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	translator := s.manager.Translator()
	summary, err := translator.SummarizeExplore(ctx, args)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to summarize explore: %v", err)), nil
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"summary":     summary,
		"explore_url": args,
		"href":        translator.Href(args),
	})), nil
}

func (s *MCPServer) handleSessionHistory(arguments map[string]interface{}) (*mcp.CallToolResult, error) {
	sessionID := getStringParam(arguments, "session_id", DefaultSessionID)
	messages := s.manager.History(sessionID)

	if getBoolParam(arguments, "reset", false) {
		s.manager.Reset(sessionID)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"session_id": sessionID,
		"messages":   messages,
		"count":      len(messages),
	})), nil
}

// Helper functions
func getStringParam(args map[string]interface{}, key, defaultVal string) string {
	if args == nil {
		return defaultVal
	}
	if val, ok := args[key]; ok && val != nil {
		if s := fmt.Sprintf("%v", val); s != "" {
			return s
		}
	}
	return defaultVal
}

func getBoolParam(args map[string]interface{}, key string, defaultVal bool) bool {
	if args == nil {
		return defaultVal
	}
	switch v := args[key].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	}
	return defaultVal
}

func formatJSON(data interface{}) string {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", data)
	}
	return string(b)
}
