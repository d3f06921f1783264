package assistant

import "context"

// Stage names a step of the translation pipeline
type Stage string

const (
	StageStart       Stage = "start"
	StageGenerating  Stage = "generating"
	StageValidating  Stage = "validating"
	StageRetry       Stage = "retry"
	StageSummarizing Stage = "summarizing"
	StageComplete    Stage = "complete"
	StageError       Stage = "error"
)

// Event reports pipeline progress
type Event struct {
	Stage   Stage   `json:"stage"`
	Message string  `json:"message,omitempty"`
	Result  *Result `json:"result,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// Observer receives progress events
type Observer func(Event)

type observerKey struct{}

// WithProgress returns a context whose pipeline steps report to fn
func WithProgress(ctx context.Context, fn Observer) context.Context {
	return context.WithValue(ctx, observerKey{}, fn)
}

func emit(ctx context.Context, ev Event) {
	if fn, ok := ctx.Value(observerKey{}).(Observer); ok && fn != nil {
		fn(ev)
	}
}
