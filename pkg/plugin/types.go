package plugin

import "github.com/sabio/grafana-explore-assistant/pkg/assistant"

// ExploreRequest represents an incoming prompt
type ExploreRequest struct {
	Prompt    string `json:"prompt"`
	SessionID string `json:"session_id"`
}

// ExploreResponse represents the outcome of a prompt
type ExploreResponse struct {
	Type       assistant.ResultType `json:"type"`
	ExploreURL string               `json:"explore_url,omitempty"`
	Href       string               `json:"href,omitempty"`
	Summary    string               `json:"summary,omitempty"`
	Prompt     string               `json:"prompt,omitempty"`
	SessionID  string               `json:"session_id"`
}

// ClassifyRequest asks for the intent of a prompt
type ClassifyRequest struct {
	Prompt string `json:"prompt"`
}

// ClassifyResponse carries the classified intent
type ClassifyResponse struct {
	Intent assistant.Intent `json:"intent"`
}

// SummarizeRequest asks for a summary of the data behind an explore URL
type SummarizeRequest struct {
	ExploreURL string `json:"explore_url"`
}

// SummarizeResponse carries the sectioned summary
type SummarizeResponse struct {
	Summary    string `json:"summary"`
	ExploreURL string `json:"explore_url"`
	Href       string `json:"href"`
}

// HistoryResponse lists a session's messages
type HistoryResponse struct {
	SessionID string              `json:"session_id"`
	Messages  []assistant.Message `json:"messages"`
}

// StreamEvent is one SSE payload of the explore stream
type StreamEvent struct {
	assistant.Event
	SessionID string `json:"session_id"`
}

func newExploreResponse(sessionID string, r assistant.Result) ExploreResponse {
	return ExploreResponse{
		Type:       r.Type,
		ExploreURL: r.ExploreURL,
		Href:       r.Href,
		Summary:    r.Summary,
		Prompt:     r.Prompt,
		SessionID:  sessionID,
	}
}
