package nodes

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errx "github.com/telo-ai/server/internal/core/error"
)

// streamModel replays chunks and then streamErr, and keeps the context it was called with.
type streamModel struct {
	chunks    []*schema.Message
	streamErr error
	block     bool
	ctx       context.Context
}

func (m *streamModel) Generate(ctx context.Context, _ []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	m.ctx = ctx
	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return schema.AssistantMessage("ok", nil), nil
}

func (m *streamModel) Stream(ctx context.Context, _ []*schema.Message, _ ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	m.ctx = ctx
	r, w := schema.Pipe[*schema.Message](len(m.chunks) + 1)
	go func() {
		defer w.Close()
		for _, c := range m.chunks {
			w.Send(c, nil)
		}
		if m.block {
			<-ctx.Done()
			w.Send(nil, ctx.Err())
			return
		}
		if m.streamErr != nil {
			w.Send(nil, m.streamErr)
		}
	}()
	return r, nil
}

func drain(t *testing.T, sr *schema.StreamReader[*schema.Message]) ([]string, error) {
	t.Helper()
	defer sr.Close()
	var out []string
	for {
		msg, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, msg.Content)
	}
}

func TestWithCallTimeout_GenerateHasDeadline(t *testing.T) {
	inner := &streamModel{block: true}
	cm := WithCallTimeout(inner, 20*time.Millisecond)

	_, err := cm.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.Error(t, err)
	assert.Equal(t, errx.CodeUpstreamInference, errx.CodeOf(err))
	_, ok := inner.ctx.Deadline()
	assert.True(t, ok)
}

func TestWithCallTimeout_StreamRelaysChunks(t *testing.T) {
	inner := &streamModel{chunks: []*schema.Message{
		schema.AssistantMessage("Perda ", nil),
		schema.AssistantMessage("1/2020", nil),
	}}
	cm := WithCallTimeout(inner, time.Second)

	sr, err := cm.Stream(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.NoError(t, err)
	got, err := drain(t, sr)
	require.NoError(t, err)
	assert.Equal(t, []string{"Perda ", "1/2020"}, got)

	_, ok := inner.ctx.Deadline()
	assert.True(t, ok)
	assert.Eventually(t, func() bool { return inner.ctx.Err() != nil }, time.Second, 5*time.Millisecond)
}

func TestWithCallTimeout_StreamIsBounded(t *testing.T) {
	inner := &streamModel{chunks: []*schema.Message{schema.AssistantMessage("a", nil)}, block: true}
	cm := WithCallTimeout(inner, 20*time.Millisecond)

	sr, err := cm.Stream(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.NoError(t, err)
	got, err := drain(t, sr)
	assert.Equal(t, []string{"a"}, got)
	require.Error(t, err)
	assert.Equal(t, errx.CodeUpstreamInference, errx.CodeOf(err))
}

func TestWithCallTimeout_StreamErrorIsClassified(t *testing.T) {
	inner := &streamModel{streamErr: errors.New("429 resource exhausted")}
	cm := WithCallTimeout(inner, time.Second)

	ctx, failure := CaptureUpstream(context.Background())
	sr, err := cm.Stream(ctx, []*schema.Message{schema.UserMessage("hi")})
	require.NoError(t, err)
	_, err = drain(t, sr)
	require.Error(t, err)
	assert.Equal(t, errx.CodeUpstreamInference, errx.CodeOf(err))
	assert.Equal(t, errx.CodeUpstreamInference, errx.CodeOf(failure()))
}
