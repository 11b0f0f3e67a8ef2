package sessions

import (
	"encoding/json"
	"fmt"
	"time"
)

// ContentBlock is one element of a structured message body. Supports text,
// tool_use, and tool_result blocks, mirroring the provider wire format.
type ContentBlock struct {
	Type      string         `json:"type"`
	Text      string         `json:"text,omitempty"`
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`
	Content   string         `json:"content,omitempty"`
}

// Content is a message body: either plain text or an ordered list of
// content blocks. It serializes to a JSON string or array accordingly.
type Content struct {
	Text   string
	Blocks []ContentBlock
}

// TextContent wraps a plain string into a Content.
func TextContent(s string) Content { return Content{Text: s} }

// String flattens the content to plain text. Block lists concatenate
// their text blocks.
func (c Content) String() string {
	if c.Blocks == nil {
		return c.Text
	}
	var out string
	for _, b := range c.Blocks {
		if b.Type == "text" {
			out += b.Text
		}
	}
	return out
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.Blocks != nil {
		return json.Marshal(c.Blocks)
	}
	return json.Marshal(c.Text)
}

func (c *Content) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		c.Text = s
		c.Blocks = nil
		return nil
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(data, &blocks); err != nil {
		return fmt.Errorf("sessions: content is neither string nor block list: %w", err)
	}
	c.Text = ""
	c.Blocks = blocks
	return nil
}

// Message is one conversational turn, persisted as a single JSONL line.
type Message struct {
	Role      string  `json:"role"` // "user" or "assistant"
	Content   Content `json:"content"`
	Timestamp int64   `json:"timestamp"` // unix ms
}

// NewMessage builds a message with the current timestamp.
func NewMessage(role, text string) Message {
	return Message{
		Role:      role,
		Content:   TextContent(text),
		Timestamp: time.Now().UnixMilli(),
	}
}
