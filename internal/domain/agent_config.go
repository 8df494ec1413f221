package domain

import (
	"fmt"
	"strings"
	"time"
)

// AgentConfig holds a user's AI persona configuration. The core reads only
// the composed system prompt and the temperature; the remaining fields are
// surfaced to the configuration UI.
type AgentConfig struct {
	UserID           string    `json:"user_id"`
	Prompt           string    `json:"prompt"`
	Context1         string    `json:"context1,omitempty"`
	Context2         string    `json:"context2,omitempty"`
	Context3         string    `json:"context3,omitempty"`
	Context4         string    `json:"context4,omitempty"`
	Temperature      float64   `json:"temperature"`
	Voice            string    `json:"voice,omitempty"`
	WorkStart        string    `json:"work_start,omitempty"`
	WorkEnd          string    `json:"work_end,omitempty"`
	AutoReply        bool      `json:"auto_reply"`
	ReplyDelay       int       `json:"reply_delay"`
	MaxConversations int       `json:"max_conversations"`
	Language         string    `json:"language,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Validate checks the fields the backend depends on.
func (c *AgentConfig) Validate() error {
	if strings.TrimSpace(c.Prompt) == "" {
		return fmt.Errorf("prompt cannot be empty")
	}
	if c.Temperature < 0.0 || c.Temperature > 1.0 {
		return fmt.Errorf("temperature must be between 0.0 and 1.0, got %v", c.Temperature)
	}
	if c.ReplyDelay < 0 {
		return fmt.Errorf("reply_delay cannot be negative")
	}
	if c.MaxConversations < 0 {
		return fmt.Errorf("max_conversations cannot be negative")
	}
	return nil
}

// SystemPrompt composes the persona prompt with the optional context
// strings into the single system prompt passed to the reply generator.
func (c *AgentConfig) SystemPrompt() string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(c.Prompt))
	for _, ctx := range []string{c.Context1, c.Context2, c.Context3, c.Context4} {
		if s := strings.TrimSpace(ctx); s != "" {
			b.WriteString("\n\n")
			b.WriteString(s)
		}
	}
	return b.String()
}
