// Package thoughts keeps the sequential-thinking log of a conversation.
package thoughts

import (
	"context"
	"slices"
	"sync"

	"github.com/telo-ai/server/internal/agent/model"
)

// Log is an append-only list of thoughts safe for concurrent use.
type Log struct {
	mu       sync.Mutex
	thoughts []model.Thought
}

func NewLog() *Log { return &Log{} }

// Add appends t and returns the number of stored thoughts.
func (l *Log) Add(t model.Thought) int {
	t.Tags = slices.Clone(t.Tags)
	t.AxiomsUsed = slices.Clone(t.AxiomsUsed)
	t.AssumptionsChallenged = slices.Clone(t.AssumptionsChallenged)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.thoughts = append(l.thoughts, t)
	return len(l.thoughts)
}

// All returns a snapshot that later mutations do not affect.
func (l *Log) All() []model.Thought {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.Thought, len(l.thoughts))
	for i, t := range l.thoughts {
		t.Tags = slices.Clone(t.Tags)
		t.AxiomsUsed = slices.Clone(t.AxiomsUsed)
		t.AssumptionsChallenged = slices.Clone(t.AssumptionsChallenged)
		out[i] = t
	}
	return out
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.thoughts)
}

func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.thoughts = nil
}

// Summarize projects the log; stages are listed once in first-seen order.
func (l *Log) Summarize() model.ThoughtSummary {
	all := l.All()
	sum := model.ThoughtSummary{
		TotalThoughts: len(all),
		Stages:        []string{},
		Thoughts:      make([]model.ThoughtDigest, 0, len(all)),
	}
	seen := make(map[string]struct{})
	for _, t := range all {
		if _, ok := seen[t.Stage]; !ok {
			seen[t.Stage] = struct{}{}
			sum.Stages = append(sum.Stages, t.Stage)
		}
		sum.Thoughts = append(sum.Thoughts, model.ThoughtDigest{
			ThoughtNumber: t.ThoughtNumber,
			Stage:         t.Stage,
			Thought:       t.Thought,
		})
	}
	return sum
}

// Book hands out one Log per conversation. A log lives while at least one
// turn of its conversation holds it.
type Book struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	log  *Log
	refs int
}

func NewBook() *Book {
	return &Book{entries: make(map[string]*entry)}
}

// Acquire returns the log for conversationID and a release func that must be
// called exactly once when the turn ends. An empty id gets a private log.
func (b *Book) Acquire(conversationID string) (*Log, func()) {
	if conversationID == "" {
		return NewLog(), func() {}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[conversationID]
	if !ok {
		e = &entry{log: NewLog()}
		b.entries[conversationID] = e
	}
	e.refs++

	var once sync.Once
	return e.log, func() {
		once.Do(func() { b.release(conversationID) })
	}
}

func (b *Book) release(conversationID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[conversationID]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(b.entries, conversationID)
	}
}

// Active is the number of conversations currently holding a log.
func (b *Book) Active() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

type ctxKey struct{}

func WithLog(ctx context.Context, l *Log) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the log bound to ctx, or nil.
func FromContext(ctx context.Context) *Log {
	l, _ := ctx.Value(ctxKey{}).(*Log)
	return l
}
