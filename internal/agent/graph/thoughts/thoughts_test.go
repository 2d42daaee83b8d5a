package thoughts

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telo-ai/server/internal/agent/model"
)

func thought(n int, stage string) model.Thought {
	return model.Thought{
		Thought:       fmt.Sprintf("thought %d", n),
		ThoughtNumber: n,
		TotalThoughts: 3,
		Stage:         stage,
		Tags:          []string{"perda"},
	}
}

func TestLog_AddAllClear(t *testing.T) {
	l := NewLog()
	assert.Equal(t, 1, l.Add(thought(1, "analysis")))
	assert.Equal(t, 2, l.Add(thought(2, "planning")))

	all := l.All()
	require.Len(t, all, 2)
	assert.Equal(t, "thought 1", all[0].Thought)

	l.Clear()
	assert.Empty(t, l.All())
	assert.Equal(t, 0, l.Len())
}

func TestLog_AllIsSnapshot(t *testing.T) {
	l := NewLog()
	l.Add(thought(1, "analysis"))

	snap := l.All()
	snap[0].Thought = "mutated"
	snap[0].Tags[0] = "mutated"
	l.Add(thought(2, "analysis"))

	again := l.All()
	assert.Equal(t, "thought 1", again[0].Thought)
	assert.Equal(t, "perda", again[0].Tags[0])
	assert.Len(t, snap, 1)
}

func TestLog_Summarize(t *testing.T) {
	l := NewLog()
	empty := l.Summarize()
	assert.Equal(t, 0, empty.TotalThoughts)
	assert.NotNil(t, empty.Stages)

	l.Add(thought(1, "analysis"))
	l.Add(thought(2, "planning"))
	l.Add(thought(3, "analysis"))
	l.Add(thought(4, "synthesis"))

	sum := l.Summarize()
	assert.Equal(t, 4, sum.TotalThoughts)
	assert.Equal(t, []string{"analysis", "planning", "synthesis"}, sum.Stages)
	require.Len(t, sum.Thoughts, 4)
	assert.Equal(t, model.ThoughtDigest{ThoughtNumber: 3, Stage: "analysis", Thought: "thought 3"}, sum.Thoughts[2])
}

func TestLog_ConcurrentAdd(t *testing.T) {
	l := NewLog()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			l.Add(thought(n, "analysis"))
			_ = l.All()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, l.Len())
}

func TestBook_IsolatesConversations(t *testing.T) {
	b := NewBook()
	a, releaseA := b.Acquire("conv-a")
	c, releaseC := b.Acquire("conv-b")
	defer releaseA()
	defer releaseC()

	a.Add(thought(1, "analysis"))
	assert.Equal(t, 1, a.Len())
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 2, b.Active())
}

func TestBook_SharesLogWhileHeld(t *testing.T) {
	b := NewBook()
	first, release1 := b.Acquire("conv")
	second, release2 := b.Acquire("conv")
	assert.Same(t, first, second)

	first.Add(thought(1, "analysis"))
	release1()
	release1()
	assert.Equal(t, 1, b.Active())

	third, release3 := b.Acquire("conv")
	assert.Same(t, first, third)
	release2()
	release3()
	assert.Equal(t, 0, b.Active())

	fresh, release4 := b.Acquire("conv")
	defer release4()
	assert.NotSame(t, first, fresh)
	assert.Equal(t, 0, fresh.Len())
}

func TestBook_EmptyIDIsPrivate(t *testing.T) {
	b := NewBook()
	x, rx := b.Acquire("")
	y, ry := b.Acquire("")
	defer rx()
	defer ry()
	assert.NotSame(t, x, y)
	assert.Equal(t, 0, b.Active())
}

func TestContext(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))
	l := NewLog()
	assert.Same(t, l, FromContext(WithLog(context.Background(), l)))
}
