package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/grafana/grafana-plugin-sdk-go/backend"
	"github.com/grafana/grafana-plugin-sdk-go/backend/log"

	"github.com/sabio/grafana-explore-assistant/pkg/assistant"
	"github.com/sabio/grafana-explore-assistant/pkg/llm"
)

const healthTimeout = 3 * time.Second

// statusFor maps pipeline errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, assistant.ErrEmptyPrompt):
		return http.StatusBadRequest
	case errors.Is(err, assistant.ErrRequestInFlight):
		return http.StatusConflict
	case errors.Is(err, assistant.ErrInvalidFields), errors.Is(err, assistant.ErrEmptyResult):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, llm.ErrTransport), errors.Is(err, llm.ErrMalformedResponse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// allow enforces the per-instance rate limit, answering 429 when exceeded
func (i *Instance) allow(sender backend.CallResourceResponseSender) (bool, error) {
	if i.limiter == nil || i.limiter.Allow() {
		return true, nil
	}
	return false, sendError(sender, http.StatusTooManyRequests, "Rate limit exceeded")
}

// decodeExploreRequest parses and validates an explore request body
func decodeExploreRequest(body []byte) (ExploreRequest, error) {
	var req ExploreRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return req, fmt.Errorf("invalid request body: %v", err)
	}

	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		return req, errors.New("prompt is required")
	}

	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	return req, nil
}

// handleExplore translates one prompt within a session
func (i *Instance) handleExplore(ctx context.Context, req *backend.CallResourceRequest, sender backend.CallResourceResponseSender) error {
	exploreReq, err := decodeExploreRequest(req.Body)
	if err != nil {
		return sendError(sender, http.StatusBadRequest, err.Error())
	}

	if ok, err := i.allow(sender); !ok {
		return err
	}

	log.DefaultLogger.Info("Explore request", "session", exploreReq.SessionID, "prompt_length", len(exploreReq.Prompt))

	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	result, err := i.manager.Run(ctx, exploreReq.SessionID, exploreReq.Prompt)
	if err != nil {
		log.DefaultLogger.Error("Explore failed", "session", exploreReq.SessionID, "error", err)
		return sendError(sender, statusFor(err), fmt.Sprintf("Explore failed: %v", err))
	}

	return sendJSON(sender, http.StatusOK, newExploreResponse(exploreReq.SessionID, result))
}

// handleClassify classifies a prompt as summary or refinement
func (i *Instance) handleClassify(ctx context.Context, req *backend.CallResourceRequest, sender backend.CallResourceResponseSender) error {
	var classifyReq ClassifyRequest
	if err := json.Unmarshal(req.Body, &classifyReq); err != nil {
		return sendError(sender, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
	}
	if strings.TrimSpace(classifyReq.Prompt) == "" {
		return sendError(sender, http.StatusBadRequest, "Prompt is required")
	}

	if ok, err := i.allow(sender); !ok {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	intent, err := i.manager.Translator().Classify(ctx, classifyReq.Prompt)
	if err != nil {
		return sendError(sender, statusFor(err), fmt.Sprintf("Classification failed: %v", err))
	}

	return sendJSON(sender, http.StatusOK, ClassifyResponse{Intent: intent})
}

// handleSummarize summarizes the data behind an explore URL
func (i *Instance) handleSummarize(ctx context.Context, req *backend.CallResourceRequest, sender backend.CallResourceResponseSender) error {
	var summarizeReq SummarizeRequest
	if err := json.Unmarshal(req.Body, &summarizeReq); err != nil {
		return sendError(sender, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
	}
	args := strings.TrimSpace(summarizeReq.ExploreURL)
	if args == "" {
		return sendError(sender, http.StatusBadRequest, "explore_url is required")
	}

	if ok, err := i.allow(sender); !ok {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	translator := i.manager.Translator()
	summary, err := translator.SummarizeExplore(ctx, args)
	if err != nil {
		log.DefaultLogger.Error("Summarize failed", "error", err)
		return sendError(sender, statusFor(err), fmt.Sprintf("Summarize failed: %v", err))
	}

	return sendJSON(sender, http.StatusOK, SummarizeResponse{
		Summary:    summary,
		ExploreURL: args,
		Href:       translator.Href(args),
	})
}

// handleHistory returns (GET) or clears (DELETE) a session's history
func (i *Instance) handleHistory(_ context.Context, req *backend.CallResourceRequest, sender backend.CallResourceResponseSender) error {
	sessionID := sessionFromURL(req.URL)
	if sessionID == "" {
		return sendError(sender, http.StatusBadRequest, "session_id is required")
	}

	switch req.Method {
	case http.MethodGet, "":
		return sendJSON(sender, http.StatusOK, HistoryResponse{
			SessionID: sessionID,
			Messages:  i.manager.History(sessionID),
		})
	case http.MethodDelete:
		i.manager.Reset(sessionID)
		return sendJSON(sender, http.StatusOK, HistoryResponse{
			SessionID: sessionID,
			Messages:  []assistant.Message{},
		})
	default:
		return sendError(sender, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func sessionFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Query().Get("session_id")
}

// handleHealth returns health status
func (i *Instance) handleHealth(ctx context.Context, _ *backend.CallResourceRequest, sender backend.CallResourceResponseSender) error {
	healthCtx, cancel := context.WithTimeout(ctx, healthTimeout)
	err := i.health(healthCtx)
	cancel()

	response := map[string]interface{}{
		"status":  "healthy",
		"backend": i.backend,
		"host":    map[string]interface{}{"ok": true},
		"catalog": map[string]interface{}{"fields": i.manager.Translator().Catalog().Len()},
	}

	if err != nil {
		response["status"] = "unhealthy"
		response["host"] = map[string]interface{}{
			"ok":    false,
			"error": err.Error(),
		}
		return sendJSON(sender, http.StatusServiceUnavailable, response)
	}

	return sendJSON(sender, http.StatusOK, response)
}
