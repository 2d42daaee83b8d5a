// Package ingest extracts plain text from bucket documents and caches it in
// the document text store, either on demand or as a bulk back-fill.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/telo-ai/server/internal/agent/model"
	errx "github.com/telo-ai/server/internal/core/error"
	logx "github.com/telo-ai/server/pkg/logger"
	"github.com/telo-ai/server/pkg/storage"
	"github.com/telo-ai/server/pkg/tracing"
)

const defaultMimeType = "application/pdf"

// ObjectStore is the subset of the document bucket the ingester needs.
type ObjectStore interface {
	Walk(ctx context.Context, fn func(storage.Object) error) error
	Get(ctx context.Context, key string) ([]byte, string, error)
}

// Report summarises one back-fill run.
type Report struct {
	Total   int      `json:"total"`
	Parsed  int      `json:"parsed"`
	Skipped int      `json:"skipped"`
	Failed  []string `json:"failed"`
}

type Service struct {
	store       ObjectStore
	cache       model.DocumentTextRepository
	extractor   Extractor
	concurrency int
	timeout     time.Duration

	group singleflight.Group
}

func NewService(store ObjectStore, cache model.DocumentTextRepository, extractor Extractor, cfg model.ParserConfig) *Service {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Service{
		store:       store,
		cache:       cache,
		extractor:   extractor,
		concurrency: concurrency,
		timeout:     cfg.Timeout,
	}
}

// Ensure returns the text of filename from the cache, extracting and storing
// it first when missing. Concurrent calls for the same key share one extraction.
func (s *Service) Ensure(ctx context.Context, filename string) (string, bool, error) {
	text, ok, err := s.cache.Get(ctx, filename)
	if err != nil {
		return "", false, err
	}
	if ok {
		return text, true, nil
	}

	// The shared extraction outlives any single caller; each caller only
	// stops waiting when its own context ends.
	ch := s.group.DoChan(filename, func() (any, error) {
		return s.parse(context.WithoutCancel(ctx), filename)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", false, res.Err
		}
		return res.Val.(string), false, nil
	case <-ctx.Done():
		return "", false, ctx.Err()
	}
}

// Backfill walks the whole bucket and extracts every object that has no
// cached text yet. Failures of single objects are reported, not returned.
func (s *Service) Backfill(ctx context.Context) (*Report, error) {
	ctx, span := tracing.Tracer().Start(ctx, "ingest.backfill")
	defer span.End()

	var keys []string
	if err := s.store.Walk(ctx, func(obj storage.Object) error {
		keys = append(keys, obj.Key)
		return nil
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, errx.WrapStorage(err)
	}

	report := &Report{Total: len(keys), Failed: []string{}}
	skipped := make([]bool, len(keys))
	failed := make([]bool, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, key := range keys {
		g.Go(func() error {
			if _, ok, err := s.cache.Get(gctx, key); err != nil {
				// a broken cache fails the whole run
				return err
			} else if ok {
				logx.Ctx(gctx).Debug().Str("key", key).Msg("Document already parsed")
				skipped[i] = true
				return nil
			}
			if _, err := s.parse(gctx, key); err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				logx.Ctx(gctx).Warn().Err(err).Str("key", key).Msg("Document parse failed")
				failed[i] = true
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	for i, key := range keys {
		switch {
		case skipped[i]:
			report.Skipped++
		case failed[i]:
			report.Failed = append(report.Failed, key)
		default:
			report.Parsed++
		}
	}
	sort.Strings(report.Failed)

	span.SetAttributes(
		attribute.Int("ingest.total", report.Total),
		attribute.Int("ingest.parsed", report.Parsed),
		attribute.Int("ingest.skipped", report.Skipped),
		attribute.Int("ingest.failed", len(report.Failed)),
	)
	logx.Ctx(ctx).Info().
		Int("total", report.Total).
		Int("parsed", report.Parsed).
		Int("skipped", report.Skipped).
		Int("failed", len(report.Failed)).
		Msg("Back-fill finished")
	return report, nil
}

func (s *Service) parse(ctx context.Context, key string) (string, error) {
	ctx, span := tracing.Tracer().Start(ctx, "ingest.parse")
	defer span.End()
	span.SetAttributes(attribute.String("ingest.key", key))

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	text, err := s.extract(ctx, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	if err := s.cache.Put(ctx, key, text); err != nil {
		return "", err
	}
	logx.Ctx(ctx).Info().Str("key", key).Int("chars", len(text)).Msg("Document parsed")
	return text, nil
}

func (s *Service) extract(ctx context.Context, key string) (string, error) {
	data, contentType, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return "", errx.NotFound(fmt.Sprintf("document %q not found", key))
		}
		return "", errx.WrapStorage(err)
	}
	return s.extractor.Extract(ctx, key, data, mimeTypeOf(key, contentType))
}

func mimeTypeOf(key, contentType string) string {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil && mt != "" && mt != "application/octet-stream" {
		return mt
	}
	if mt := mime.TypeByExtension(path.Ext(key)); mt != "" {
		if base, _, err := mime.ParseMediaType(mt); err == nil {
			return base
		}
	}
	return defaultMimeType
}
