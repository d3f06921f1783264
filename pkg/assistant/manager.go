package assistant

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/grafana/grafana-plugin-sdk-go/backend/log"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrRequestInFlight is returned when a session already has a running request
	ErrRequestInFlight = errors.New("a request is already in flight for this session")

	// ErrEmptyPrompt is returned for blank prompts
	ErrEmptyPrompt = errors.New("prompt is required")
)

type session struct {
	history *History
	sem     *semaphore.Weighted
}

// Manager owns per-session histories and runs prompts through the translator,
// one at a time per session
type Manager struct {
	translator    *Translator
	historyConfig HistoryConfig
	sessions      map[string]*session
	mu            sync.RWMutex
}

// NewManager creates a session manager around translator
func NewManager(translator *Translator, historyConfig HistoryConfig) *Manager {
	return &Manager{
		translator:    translator,
		historyConfig: historyConfig,
		sessions:      make(map[string]*session),
	}
}

// Translator returns the underlying translator
func (m *Manager) Translator() *Translator {
	return m.translator
}

func (m *Manager) getOrCreateSession(sessionID string) *session {
	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[sessionID]; ok {
		return s
	}

	s = &session{
		history: NewHistoryWithConfig(m.historyConfig),
		sem:     semaphore.NewWeighted(1),
	}
	m.sessions[sessionID] = s
	return s
}

// Run translates prompt within a session and records the exchange
func (m *Manager) Run(ctx context.Context, sessionID, prompt string) (Result, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Result{}, ErrEmptyPrompt
	}

	s := m.getOrCreateSession(sessionID)
	if !s.sem.TryAcquire(1) {
		return Result{}, ErrRequestInFlight
	}
	defer s.sem.Release(1)

	return m.run(ctx, s, sessionID, prompt)
}

func (m *Manager) run(ctx context.Context, s *session, sessionID, prompt string) (Result, error) {
	history := s.history.Messages()
	s.history.AddPrompt(prompt)

	result, err := m.translator.Translate(ctx, prompt, history)
	if err != nil {
		log.DefaultLogger.Error("Translation failed", "session", sessionID, "error", err)
		return Result{}, err
	}

	reply := Message{Actor: ActorSystem}
	if result.Type == ResultSummary {
		reply.Text = result.Summary
	} else {
		reply.ExploreURL = result.ExploreURL
	}
	s.history.Add(reply)

	log.DefaultLogger.Info("Translation complete", "session", sessionID, "type", result.Type)
	return result, nil
}

// RunStream runs prompt in the background and reports progress on the
// returned channel. The channel ends with a complete or error event and is
// then closed, even when ctx is done; callers must drain it. Progress events
// are dropped once ctx is done. ErrRequestInFlight is returned synchronously.
func (m *Manager) RunStream(ctx context.Context, sessionID, prompt string) (<-chan Event, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}

	s := m.getOrCreateSession(sessionID)
	if !s.sem.TryAcquire(1) {
		return nil, ErrRequestInFlight
	}

	events := make(chan Event, 16)

	go func() {
		defer close(events)
		defer s.sem.Release(1)

		send := func(ev Event) {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		}

		result, err := m.run(WithProgress(ctx, send), s, sessionID, prompt)
		if err != nil {
			events <- Event{Stage: StageError, Error: err.Error()}
			return
		}
		events <- Event{Stage: StageComplete, Result: &result}
	}()

	return events, nil
}

// History returns a copy of a session's messages
func (m *Manager) History(sessionID string) []Message {
	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return []Message{}
	}
	return s.history.Messages()
}

// Reset clears a session's history
func (m *Manager) Reset(sessionID string) {
	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if ok {
		s.history.Clear()
	}
}

// SessionCount returns the number of known sessions
func (m *Manager) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
