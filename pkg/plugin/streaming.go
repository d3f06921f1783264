package plugin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/grafana/grafana-plugin-sdk-go/backend"
	"github.com/grafana/grafana-plugin-sdk-go/backend/log"
)

// handleExploreStream runs a prompt and streams pipeline progress as SSE
func (i *Instance) handleExploreStream(ctx context.Context, req *backend.CallResourceRequest, sender backend.CallResourceResponseSender) error {
	exploreReq, err := decodeExploreRequest(req.Body)
	if err != nil {
		return sendError(sender, http.StatusBadRequest, err.Error())
	}

	if ok, err := i.allow(sender); !ok {
		return err
	}

	log.DefaultLogger.Info("Explore stream request", "session", exploreReq.SessionID, "prompt_length", len(exploreReq.Prompt))

	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	events, err := i.manager.RunStream(ctx, exploreReq.SessionID, exploreReq.Prompt)
	if err != nil {
		log.DefaultLogger.Error("Stream failed to start", "error", err)
		return sendError(sender, statusFor(err), fmt.Sprintf("Failed to start stream: %v", err))
	}

	// Set SSE headers
	if err := sender.Send(&backend.CallResourceResponse{
		Status:  http.StatusOK,
		Headers: map[string][]string{"Content-Type": {"text/event-stream"}},
	}); err != nil {
		cancel()
		drain(events)
		return err
	}

	for ev := range events {
		if err := sendSSE(sender, StreamEvent{Event: ev, SessionID: exploreReq.SessionID}); err != nil {
			log.DefaultLogger.Error("Failed to send SSE", "error", err)
			cancel()
			drain(events)
			return err
		}
	}

	return nil
}

// drain waits for the pipeline goroutine to finish after the client is gone
func drain[T any](ch <-chan T) {
	for range ch {
	}
}

// sendSSE sends an event as a Server-Sent Event
func sendSSE(sender backend.CallResourceResponseSender, ev StreamEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	sseData := fmt.Sprintf("data: %s\n\n", string(data))

	return sender.Send(&backend.CallResourceResponse{
		Body: []byte(sseData),
	})
}
