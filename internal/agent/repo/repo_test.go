package repo

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telo-ai/server/internal/agent/model"
	errx "github.com/telo-ai/server/internal/core/error"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestSessionSaveAndLoad(t *testing.T) {
	mr, rdb := newClient(t)
	repo := NewRedisSessionRepository(rdb, time.Hour)
	fixed := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }

	msgs := []model.UIMessage{
		{ID: "u1", Role: model.RoleUser, Parts: []model.UIPart{{Type: model.PartText, Text: "apa isi perda 1 2020?"}}},
		{ID: "a1", Role: model.RoleAssistant, Parts: []model.UIPart{
			{Type: model.PartStepStart},
			{Type: "tool-documentSearch", ToolCallID: "call_1", State: model.ToolOutputAvailable},
		}},
	}
	require.NoError(t, repo.Save(context.Background(), "abc", msgs))

	assert.True(t, mr.Exists("session:abc"))
	assert.Equal(t, time.Hour, mr.TTL("session:abc"))

	got, err := repo.Load(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", got.ID)
	assert.Equal(t, fixed, got.UpdatedAt)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "apa isi perda 1 2020?", got.Messages[0].Text())
	assert.Equal(t, "documentSearch", got.Messages[1].Parts[1].ToolName())
}

func TestSessionSaveReplacesPrevious(t *testing.T) {
	_, rdb := newClient(t)
	repo := NewRedisSessionRepository(rdb, time.Hour)
	ctx := context.Background()

	first := []model.UIMessage{{ID: "u1", Role: model.RoleUser, Parts: []model.UIPart{{Type: model.PartText, Text: "a"}}}}
	require.NoError(t, repo.Save(ctx, "s", first))
	second := append(first, model.UIMessage{ID: "a1", Role: model.RoleAssistant, Parts: []model.UIPart{{Type: model.PartText, Text: "b"}}})
	require.NoError(t, repo.Save(ctx, "s", second))

	got, err := repo.Load(ctx, "s")
	require.NoError(t, err)
	assert.Len(t, got.Messages, 2)
}

func TestSessionLoadMissingIsNotFound(t *testing.T) {
	_, rdb := newClient(t)
	repo := NewRedisSessionRepository(rdb, time.Hour)

	_, err := repo.Load(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, errx.StatusOf(err))
	assert.Equal(t, errx.CodeNotFound, errx.CodeOf(err))
}

func TestSessionSaveRequiresID(t *testing.T) {
	_, rdb := newClient(t)
	repo := NewRedisSessionRepository(rdb, time.Hour)

	err := repo.Save(context.Background(), "", nil)
	assert.Equal(t, http.StatusBadRequest, errx.StatusOf(err))
}

func TestSessionDelete(t *testing.T) {
	mr, rdb := newClient(t)
	repo := NewRedisSessionRepository(rdb, time.Hour)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, "gone", nil))
	require.NoError(t, repo.Delete(ctx, "gone"))
	assert.False(t, mr.Exists("session:gone"))
}

func TestDocumentTextGetPut(t *testing.T) {
	mr, rdb := newClient(t)
	repo := NewRedisDocumentTextRepository(rdb)
	ctx := context.Background()

	_, ok, err := repo.Get(ctx, "perda-1-2020.pdf")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.Put(ctx, "perda-1-2020.pdf", "BUPATI TRENGGALEK"))
	text, ok, err := repo.Get(ctx, "perda-1-2020.pdf")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "BUPATI TRENGGALEK", text)

	assert.Equal(t, time.Duration(0), mr.TTL("doc:perda-1-2020.pdf"))
}

func TestDocumentTextRedisFailure(t *testing.T) {
	mr, rdb := newClient(t)
	repo := NewRedisDocumentTextRepository(rdb)
	mr.Close()

	_, _, err := repo.Get(context.Background(), "x")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadGateway, errx.StatusOf(err))
}
