package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrStateRegression is returned when a tool part would move to an earlier state.
var ErrStateRegression = errors.New("tool part state regression")

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

const (
	PartText      = "text"
	PartReasoning = "reasoning"
	PartSourceURL = "source-url"
	PartStepStart = "step-start"
	// PartToolPrefix prefixes tool part types, e.g. "tool-documentSearch".
	PartToolPrefix = "tool-"
)

type ToolState string

const (
	ToolInputStreaming  ToolState = "input-streaming"
	ToolInputAvailable  ToolState = "input-available"
	ToolOutputAvailable ToolState = "output-available"
	ToolOutputError     ToolState = "output-error"
)

func (s ToolState) rank() int {
	switch s {
	case ToolInputStreaming:
		return 0
	case ToolInputAvailable:
		return 1
	case ToolOutputAvailable, ToolOutputError:
		return 2
	default:
		return -1
	}
}

// Terminal reports whether no further transition is allowed.
func (s ToolState) Terminal() bool { return s.rank() == 2 }

// UIMessage mirrors the chat client's message shape.
type UIMessage struct {
	ID       string          `json:"id"`
	Role     string          `json:"role"`
	Parts    []UIPart        `json:"parts"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

type UIPart struct {
	Type string `json:"type"`

	// text, reasoning
	Text string `json:"text,omitempty"`

	// tool-*
	ToolCallID string          `json:"toolCallId,omitempty"`
	State      ToolState       `json:"state,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	ErrorText  string          `json:"errorText,omitempty"`

	// source-url
	SourceID string `json:"sourceId,omitempty"`
	URL      string `json:"url,omitempty"`
	Title    string `json:"title,omitempty"`
}

// IsTool reports whether the part is a tool invocation.
func (p UIPart) IsTool() bool {
	return strings.HasPrefix(p.Type, PartToolPrefix) || p.Type == "dynamic-tool"
}

// ToolName extracts the tool name from a "tool-<name>" part type.
func (p UIPart) ToolName() string {
	return strings.TrimPrefix(p.Type, PartToolPrefix)
}

// Advance moves a tool part to next. Terminal parts and backward moves are rejected.
func (p *UIPart) Advance(next ToolState) error {
	if next.rank() < 0 {
		return fmt.Errorf("unknown tool state %q", next)
	}
	if p.State != "" && (p.State.Terminal() || next.rank() < p.State.rank()) {
		return fmt.Errorf("%w: %s -> %s", ErrStateRegression, p.State, next)
	}
	p.State = next
	return nil
}

// Text joins the text parts of the message.
func (m UIMessage) Text() string {
	var sb strings.Builder
	for _, p := range m.Parts {
		if p.Type == PartText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}
