// Package uistream writes an agent run to the client as a UI message stream:
// server-sent events carrying typed JSON chunks, terminated by [DONE].
package uistream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/cloudwego/eino/schema"

	"github.com/telo-ai/server/internal/agent/graph/tools"
	"github.com/telo-ai/server/internal/agent/model"
	"github.com/telo-ai/server/internal/agent/turn"
	logx "github.com/telo-ai/server/pkg/logger"
)

// HeaderName marks the response as a UI message stream for the client SDK.
const (
	HeaderName    = "x-vercel-ai-ui-message-stream"
	HeaderVersion = "v1"
)

// Chunk is one stream event. Only the fields of its type are set.
type Chunk struct {
	Type string `json:"type"`

	MessageID       string `json:"messageId,omitempty"`
	MessageMetadata any    `json:"messageMetadata,omitempty"`

	ID    string `json:"id,omitempty"`
	Delta string `json:"delta,omitempty"`

	ToolCallID string          `json:"toolCallId,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	ErrorText  string          `json:"errorText,omitempty"`

	SourceID string `json:"sourceId,omitempty"`
	URL      string `json:"url,omitempty"`
	Title    string `json:"title,omitempty"`
}

// Writer streams one assistant message and assembles the same message for
// persistence. Headers are sent with the first chunk, so a request that fails
// before producing output can still answer with a plain JSON error.
type Writer struct {
	mu sync.Mutex

	w       http.ResponseWriter
	flusher http.Flusher

	started  bool
	done     bool
	stepOpen bool
	seq      int
	sources  map[string]bool
	msg      model.UIMessage
	writeErr error
}

var _ turn.Observer = (*Writer)(nil)

func NewWriter(w http.ResponseWriter, messageID string) *Writer {
	flusher, _ := w.(http.Flusher)
	return &Writer{
		w:       w,
		flusher: flusher,
		sources: map[string]bool{},
		msg:     model.UIMessage{ID: messageID, Role: model.RoleAssistant, Parts: []model.UIPart{}},
	}
}

// Started reports whether any byte of the stream has been written.
func (s *Writer) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Message returns a copy of the assistant message assembled so far.
func (s *Writer) Message() model.UIMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.msg
	out.Parts = append([]model.UIPart(nil), s.msg.Parts...)
	return out
}

func (s *Writer) StepStarted(ctx context.Context, _ int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openStep(ctx)
}

func (s *Writer) AssistantMessage(ctx context.Context, _ int, msg *schema.Message) {
	if msg == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stepOpen {
		s.openStep(ctx)
	}
	if r := strings.TrimSpace(msg.ReasoningContent); r != "" {
		s.textBlock(ctx, "reasoning", msg.ReasoningContent)
		s.msg.Parts = append(s.msg.Parts, model.UIPart{Type: model.PartReasoning, Text: msg.ReasoningContent})
	}
	if strings.TrimSpace(msg.Content) != "" {
		s.textBlock(ctx, "text", msg.Content)
		s.msg.Parts = append(s.msg.Parts, model.UIPart{Type: model.PartText, Text: msg.Content})
	}
}

func (s *Writer) ToolCallRequested(ctx context.Context, call schema.ToolCall) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stepOpen {
		s.openStep(ctx)
	}
	input := rawJSON(call.Function.Arguments, json.RawMessage(`{}`))
	s.send(ctx, Chunk{Type: "tool-input-available", ToolCallID: call.ID, ToolName: call.Function.Name, Input: input})

	part := model.UIPart{Type: model.PartToolPrefix + call.Function.Name, ToolCallID: call.ID, Input: input}
	_ = part.Advance(model.ToolInputAvailable)
	s.msg.Parts = append(s.msg.Parts, part)
}

func (s *Writer) ToolCallCompleted(ctx context.Context, callID, toolName, output string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	part := s.toolPart(callID)
	if part == nil {
		s.msg.Parts = append(s.msg.Parts, model.UIPart{Type: model.PartToolPrefix + toolName, ToolCallID: callID})
		part = &s.msg.Parts[len(s.msg.Parts)-1]
	}

	if failure, ok := tools.ParseFailure(output); ok {
		if err := part.Advance(model.ToolOutputError); err != nil {
			logx.Ctx(ctx).Warn().Err(err).Str("tool_call_id", callID).Msg("Ignoring tool result")
			return
		}
		part.ErrorText = failure.Message
		s.send(ctx, Chunk{Type: "tool-output-error", ToolCallID: callID, ErrorText: failure.Message})
		return
	}

	if err := part.Advance(model.ToolOutputAvailable); err != nil {
		logx.Ctx(ctx).Warn().Err(err).Str("tool_call_id", callID).Msg("Ignoring tool result")
		return
	}
	out := rawJSON(output, nil)
	part.Output = out
	s.send(ctx, Chunk{Type: "tool-output-available", ToolCallID: callID, Output: out})
	s.emitSources(ctx, output)
}

func (s *Writer) StepFinished(ctx context.Context, _ int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeStep(ctx)
}

// Finish closes the stream with the run metadata.
func (s *Writer) Finish(ctx context.Context, metadata any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	s.closeStep(ctx)
	if metadata != nil {
		if b, err := json.Marshal(metadata); err == nil {
			s.msg.Metadata = b
		}
	}
	s.send(ctx, Chunk{Type: "finish", MessageMetadata: metadata})
	s.done = true
	s.writeRaw(ctx, "[DONE]")
}

// Fail reports a request-level error inside an already started stream.
func (s *Writer) Fail(ctx context.Context, errorText string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	s.send(ctx, Chunk{Type: "error", ErrorText: errorText})
	s.done = true
	s.writeRaw(ctx, "[DONE]")
}

func (s *Writer) openStep(ctx context.Context) {
	s.closeStep(ctx)
	s.send(ctx, Chunk{Type: "start-step"})
	s.msg.Parts = append(s.msg.Parts, model.UIPart{Type: model.PartStepStart})
	s.stepOpen = true
}

func (s *Writer) closeStep(ctx context.Context) {
	if !s.stepOpen {
		return
	}
	s.send(ctx, Chunk{Type: "finish-step"})
	s.stepOpen = false
}

// textBlock emits a start/delta/end triple for kind "text" or "reasoning".
func (s *Writer) textBlock(ctx context.Context, kind, text string) {
	s.seq++
	id := fmt.Sprintf("%s-%d", kind, s.seq)
	s.send(ctx, Chunk{Type: kind + "-start", ID: id})
	s.send(ctx, Chunk{Type: kind + "-delta", ID: id, Delta: text})
	s.send(ctx, Chunk{Type: kind + "-end", ID: id})
}

// emitSources turns search hits carrying a public link into source-url parts.
func (s *Writer) emitSources(ctx context.Context, output string) {
	var res struct {
		Data []struct {
			Filename string `json:"filename"`
			Link     string `json:"link"`
		} `json:"data"`
	}
	if err := json.Unmarshal([]byte(output), &res); err != nil {
		return
	}
	for _, d := range res.Data {
		if d.Link == "" || s.sources[d.Link] {
			continue
		}
		s.sources[d.Link] = true
		id := fmt.Sprintf("source-%d", len(s.sources))
		s.send(ctx, Chunk{Type: "source-url", SourceID: id, URL: d.Link, Title: d.Filename})
		s.msg.Parts = append(s.msg.Parts, model.UIPart{Type: model.PartSourceURL, SourceID: id, URL: d.Link, Title: d.Filename})
	}
}

func (s *Writer) toolPart(callID string) *model.UIPart {
	for i := len(s.msg.Parts) - 1; i >= 0; i-- {
		p := &s.msg.Parts[i]
		if p.IsTool() && p.ToolCallID == callID {
			return p
		}
	}
	return nil
}

func (s *Writer) start(ctx context.Context) {
	if s.started {
		return
	}
	s.started = true
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	h.Set(HeaderName, HeaderVersion)
	s.w.WriteHeader(http.StatusOK)

	b, _ := json.Marshal(Chunk{Type: "start", MessageID: s.msg.ID})
	s.writeRaw(ctx, string(b))
}

func (s *Writer) send(ctx context.Context, c Chunk) {
	if s.done {
		return
	}
	s.start(ctx)
	b, err := json.Marshal(c)
	if err != nil {
		logx.Ctx(ctx).Error().Err(err).Str("chunk", c.Type).Msg("Failed to encode stream chunk")
		return
	}
	s.writeRaw(ctx, string(b))
}

func (s *Writer) writeRaw(ctx context.Context, data string) {
	if s.writeErr != nil {
		return
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		// the client went away; keep assembling the message but stop writing
		s.writeErr = err
		logx.Ctx(ctx).Debug().Err(err).Msg("Stream write failed")
		return
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
}

// rawJSON returns s as raw JSON, quoting it as a string when it is not valid JSON.
func rawJSON(s string, empty json.RawMessage) json.RawMessage {
	t := strings.TrimSpace(s)
	if t == "" {
		return empty
	}
	if json.Valid([]byte(t)) {
		return json.RawMessage(t)
	}
	b, _ := json.Marshal(s)
	return b
}
