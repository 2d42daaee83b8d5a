package httpapi

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/telo-ai/server/internal/agent/model"
	"github.com/telo-ai/server/internal/agent/turn"
	errx "github.com/telo-ai/server/internal/core/error"
	"github.com/telo-ai/server/internal/uistream"
	logx "github.com/telo-ai/server/pkg/logger"
)

type chatRequest struct {
	// ID names the session the finished transcript is saved under; optional.
	ID       string            `json:"id,omitempty"`
	Messages []model.UIMessage `json:"messages"`
}

// runMetadata is attached to the streamed assistant message.
type runMetadata struct {
	StepCount          int     `json:"stepCount"`
	StepCeilingReached bool    `json:"stepCeilingReached"`
	CostUSD            float64 `json:"costUsd,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logx.Ctx(ctx)

	var req chatRequest
	if err := decodeJSON(w, r, s.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.ID != "" {
		if _, err := uuid.Parse(req.ID); err != nil {
			writeError(w, errx.BadRequest("id must be a UUID"))
			return
		}
	}
	if err := s.deps.Messages.Validate(req.Messages); err != nil {
		writeError(w, err)
		return
	}

	stream := uistream.NewWriter(w, newID())
	res, err := s.deps.Runner.Invoke(turn.WithObserver(ctx, stream), model.QueryInput{
		ConversationID: req.ID,
		Messages:       req.Messages,
	})
	if err != nil {
		log.Error().Err(err).Str("code", string(errx.CodeOf(err))).Msg("Agent run failed")
		if !stream.Started() {
			writeError(w, err)
			return
		}
		stream.Fail(ctx, errx.PublicMessage(err))
		return
	}

	stream.Finish(ctx, runMetadata{
		StepCount:          res.Steps,
		StepCeilingReached: res.StepCeilingReached,
		CostUSD:            res.CostUSD,
	})
	log.Info().
		Int("steps", res.Steps).
		Bool("step_ceiling_reached", res.StepCeilingReached).
		Float64("cost_usd", res.CostUSD).
		Msg("Chat turn completed")

	if req.ID == "" {
		return
	}
	transcript := append(append([]model.UIMessage(nil), req.Messages...), stream.Message())
	// the client may already be gone; the finished turn is still saved
	if err := s.deps.Messages.SaveSession(context.WithoutCancel(ctx), req.ID, transcript); err != nil {
		log.Error().Err(err).Str("session_id", req.ID).Msg("Failed to save session")
	}
}
