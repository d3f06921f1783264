package assistant

import (
	"sync"
	"time"
)

// Default history limits
const (
	DefaultMaxMessages   = 100
	DefaultMaxCharacters = 100000
	DefaultHistoryWindow = 20
)

// Actors
const (
	ActorUser   = "user"
	ActorSystem = "system"
)

// Message is one entry of a session's conversation. A system message carries
// either an explore URL or a summary text.
type Message struct {
	Actor      string    `json:"actor"`
	Text       string    `json:"text,omitempty"`
	ExploreURL string    `json:"explore_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func (m Message) size() int {
	return len(m.Text) + len(m.ExploreURL)
}

// HistoryConfig holds the limits for a session history
type HistoryConfig struct {
	MaxMessages   int // 0 = default, <0 = unlimited
	MaxCharacters int // 0 = default, <0 = unlimited
}

// History is an append-only, bounded conversation log. The oldest messages
// are dropped first when a limit is exceeded, but at least one is kept.
type History struct {
	messages      []Message
	totalChars    int
	maxMessages   int
	maxCharacters int
	mu            sync.RWMutex
}

// NewHistory creates a history with default limits
func NewHistory() *History {
	return NewHistoryWithConfig(HistoryConfig{})
}

// NewHistoryWithConfig creates a history with custom limits
func NewHistoryWithConfig(config HistoryConfig) *History {
	if config.MaxMessages == 0 {
		config.MaxMessages = DefaultMaxMessages
	}
	if config.MaxCharacters == 0 {
		config.MaxCharacters = DefaultMaxCharacters
	}

	return &History{
		messages:      make([]Message, 0),
		maxMessages:   config.MaxMessages,
		maxCharacters: config.MaxCharacters,
	}
}

// Add appends a message, stamping it if CreatedAt is zero
func (h *History) Add(msg Message) {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.messages = append(h.messages, msg)
	h.totalChars += msg.size()

	h.trim()
}

// AddPrompt records a user prompt
func (h *History) AddPrompt(prompt string) {
	h.Add(Message{Actor: ActorUser, Text: prompt})
}

// must be called with lock held
func (h *History) trim() {
	for h.maxMessages > 0 && len(h.messages) > h.maxMessages {
		h.drop()
	}
	for h.maxCharacters > 0 && h.totalChars > h.maxCharacters && len(h.messages) > 1 {
		h.drop()
	}
}

func (h *History) drop() {
	removed := h.messages[0]
	h.messages = h.messages[1:]
	h.totalChars -= removed.size()
}

// Messages returns a copy of all messages, oldest first
func (h *History) Messages() []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make([]Message, len(h.messages))
	copy(result, h.messages)
	return result
}

// Len returns the number of retained messages
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.messages)
}

// Clear removes all messages
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.messages = make([]Message, 0)
	h.totalChars = 0
}

// Stats returns history usage statistics
func (h *History) Stats() HistoryStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return HistoryStats{
		MessageCount:  len(h.messages),
		TotalChars:    h.totalChars,
		MaxMessages:   h.maxMessages,
		MaxCharacters: h.maxCharacters,
	}
}

// HistoryStats holds statistics about a history
type HistoryStats struct {
	MessageCount  int `json:"message_count"`
	TotalChars    int `json:"total_chars"`
	MaxMessages   int `json:"max_messages"`
	MaxCharacters int `json:"max_characters"`
}

// Recent returns the last n messages of msgs (all of them when n <= 0)
func Recent(msgs []Message, n int) []Message {
	if n <= 0 || len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}

// LatestExploreURL returns the most recent explore URL in msgs, or ""
func LatestExploreURL(msgs []Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].ExploreURL != "" {
			return msgs[i].ExploreURL
		}
	}
	return ""
}

// QueryPrompts returns the text of user messages that were not answered with
// a data summary, in order
func QueryPrompts(msgs []Message) []string {
	var prompts []string
	for i, m := range msgs {
		if m.Actor != ActorUser || m.Text == "" {
			continue
		}
		if i+1 < len(msgs) && isSummaryReply(msgs[i+1]) {
			continue
		}
		prompts = append(prompts, m.Text)
	}
	return prompts
}

func isSummaryReply(m Message) bool {
	return m.Actor == ActorSystem && m.ExploreURL == "" && m.Text != ""
}
