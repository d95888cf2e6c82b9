package session

import (
	"sync"
	"time"

	"github.com/deepscifi/guide/internal/schema"
)

// Conversation holds one client's history and view state across turns.
// Long-lived transports (WebSocket, MCP) keep one per connection; the
// stateless SSE endpoint rebuilds both from each request instead.
type Conversation struct {
	Key       string
	CreatedAt time.Time
	UpdatedAt time.Time

	mu       sync.Mutex
	messages schema.Messages
	state    State
	turn     sync.Mutex
}

// NewConversation returns an empty conversation.
func NewConversation(key string) *Conversation {
	now := time.Now()
	return &Conversation{
		Key:       key,
		CreatedAt: now,
		UpdatedAt: now,
		messages:  schema.NewMessages(),
		state:     New(),
	}
}

// BeginTurn serialises turns: it blocks until no other turn is running on
// this conversation. The returned func ends the turn.
func (c *Conversation) BeginTurn() (end func()) {
	c.turn.Lock()
	return c.turn.Unlock
}

// AddUser appends a user message.
func (c *Conversation) AddUser(content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages.AddUser(content)
	c.UpdatedAt = time.Now()
}

// AddAssistant appends the guide's closing narration.
func (c *Conversation) AddAssistant(content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages.AddAssistant(content, nil, "")
	c.UpdatedAt = time.Now()
}

// History returns the last maxMessages messages.
func (c *Conversation) History(maxMessages int) schema.Messages {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messages.Tail(maxMessages)
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messages.Len()
}

// State returns a copy of the current view state.
func (c *Conversation) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// SetState stores the state a finished turn left behind.
func (c *Conversation) SetState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s.Clone()
	c.UpdatedAt = time.Now()
}

// Clear resets history and view state.
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = schema.NewMessages()
	c.state = New()
	c.UpdatedAt = time.Now()
}
