// Package imgsource decides when the image cache needs new pictures and pulls
// them from an image search page.
package imgsource

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultRateLimit   = time.Hour
	DefaultConcurrency = 4
)

var tracer = otel.Tracer("telegram-image-reply-bot/imgsource")

// Store is the part of the image cache the source works with.
type Store interface {
	IsStale() bool
	Count() uint32
	AddImage(ctx context.Context, data []byte) (bool, error)
	RandomImage(ctx context.Context) ([]byte, error)
}

// RefreshResult tells how a refresh went for its candidates.
type RefreshResult struct {
	Candidates int
	Added      int
	Duplicates int
	Failed     int
}

// RefreshObserver is notified after every refresh attempt.
type RefreshObserver func(result RefreshResult, err error)

type Source struct {
	store       Store
	fetcher     Fetcher
	extract     Extractor
	rateLimit   time.Duration
	concurrency int
	now         func() time.Time
	validate    *validator.Validate
	observer    RefreshObserver

	mu          sync.RWMutex
	attemptTime time.Time

	refreshing atomic.Bool
}

type Option func(*Source)

func WithExtractor(extract Extractor) Option {
	return func(s *Source) {
		s.extract = extract
	}
}

// WithRateLimit sets the minimum time between two refresh attempts.
func WithRateLimit(rateLimit time.Duration) Option {
	return func(s *Source) {
		s.rateLimit = rateLimit
	}
}

// WithConcurrency sets how many candidates are downloaded at once.
func WithConcurrency(n int) Option {
	return func(s *Source) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Source) {
		s.now = now
	}
}

func WithRefreshObserver(observer RefreshObserver) Option {
	return func(s *Source) {
		s.observer = observer
	}
}

func New(store Store, fetcher Fetcher, opts ...Option) *Source {
	s := &Source{
		store:       store,
		fetcher:     fetcher,
		extract:     QueryParamExtractor,
		rateLimit:   DefaultRateLimit,
		concurrency: DefaultConcurrency,
		now:         time.Now,
		validate:    validator.New(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// GetImage returns a random cached image, refreshing the cache first when it
// is stale and no refresh was attempted within the rate limit window.
//
// Only the decision to refresh is serialised. The refresh runs without any
// lock held, and callers that lose the claim are served the current cache.
func (s *Source) GetImage(ctx context.Context) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "imgsource.GetImage")
	defer span.End()

	s.mu.RLock()
	observed := s.attemptTime
	s.mu.RUnlock()

	var refreshErr error

	now := s.now()
	if s.store.IsStale() && now.Sub(observed) > s.rateLimit {
		if s.claim(observed, now) {
			span.AddEvent("refresh claimed")

			// the claim is already spent, so the refresh must outlive this caller
			_, refreshErr = s.Refresh(context.WithoutCancel(ctx))
			if refreshErr != nil && s.store.Count() > 0 {
				slog.Warn("imgsource: Refresh failed, serving stale cache", "error", refreshErr)

				refreshErr = nil
			}
		} else {
			slog.Info("imgsource: Refresh already claimed by another request")
		}
	}

	img, err := s.store.RandomImage(ctx)
	if err != nil {
		if refreshErr != nil {
			err = errors.Join(refreshErr, err)
		}

		span.RecordError(err)
		span.SetStatus(codes.Error, "no image")

		return nil, err
	}

	span.SetAttributes(attribute.Int("image.size", len(img)))

	return img, nil
}

// claim moves attemptTime to now if nobody else did since it was observed.
func (s *Source) claim(observed, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.attemptTime.Equal(observed) {
		return false
	}

	s.attemptTime = now

	return true
}

// Refresh fetches the search page and offers every candidate found there to
// the store. Failures of single candidates are logged and counted, they do not
// fail the refresh.
//
// Only one refresh runs at a time; an overlapping call returns
// ErrRefreshInProgress without touching the search. A refresh also counts as
// an attempt for the rate limit of GetImage.
func (s *Source) Refresh(ctx context.Context) (result RefreshResult, err error) {
	if !s.refreshing.CompareAndSwap(false, true) {
		slog.Info("imgsource: Refresh already in progress")

		return result, ErrRefreshInProgress
	}
	defer s.refreshing.Store(false)

	s.mu.Lock()
	s.attemptTime = s.now()
	s.mu.Unlock()

	ctx, span := tracer.Start(ctx, "imgsource.Refresh")
	defer func() {
		span.SetAttributes(
			attribute.Int("refresh.candidates", result.Candidates),
			attribute.Int("refresh.added", result.Added),
			attribute.Int("refresh.duplicates", result.Duplicates),
			attribute.Int("refresh.failed", result.Failed),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()

		if s.observer != nil {
			s.observer(result, err)
		}
	}()

	slog.Info("imgsource: Refreshing image cache", "count", s.store.Count())

	body, err := s.fetcher.Search(ctx)
	if err != nil {
		slog.Error("imgsource: Cannot reach image search", "error", err)
		sentry.CaptureException(err)

		return result, errors.Join(ErrSearchUnreachable, err)
	}

	candidates := s.extract(body)
	result.Candidates = len(candidates)

	if len(candidates) == 0 {
		if s.store.Count() > 0 {
			slog.Warn("imgsource: No candidates found in search result, keeping cached images", "body_size", len(body))
			sentry.CaptureMessage("No image candidates found in search result")

			return result, nil
		}

		slog.Error("imgsource: No candidates found in search result and cache is empty", "body_size", len(body))
		sentry.CaptureException(ErrNoCandidatesFound)

		return result, ErrNoCandidatesFound
	}

	slog.Info("imgsource: Candidates found", "count", len(candidates))

	var added, duplicates, failed atomic.Int32

	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for _, candidate := range candidates {
		g.Go(func() error {
			stored, err := s.processCandidate(ctx, candidate)
			switch {
			case err != nil:
				failed.Add(1)
				slog.Warn("imgsource: Skipping candidate", "url", candidate, "error", err)
			case stored:
				added.Add(1)
			default:
				duplicates.Add(1)
			}

			return nil
		})
	}

	_ = g.Wait()

	result.Added = int(added.Load())
	result.Duplicates = int(duplicates.Load())
	result.Failed = int(failed.Load())

	slog.Info(
		"imgsource: Refresh finished",
		"candidates", result.Candidates,
		"added", result.Added,
		"duplicates", result.Duplicates,
		"failed", result.Failed,
		"count", s.store.Count(),
	)

	return result, nil
}

func (s *Source) processCandidate(ctx context.Context, candidate string) (bool, error) {
	ctx, span := tracer.Start(ctx, "imgsource.Candidate",
		trace.WithAttributes(attribute.String("candidate.url", candidate)),
	)
	defer span.End()

	if err := s.validate.Var(candidate, "required,http_url"); err != nil {
		return false, errors.Join(ErrInvalidCandidate, err)
	}

	data, err := s.fetcher.Download(ctx, candidate)
	if err != nil {
		span.RecordError(err)
		return false, errors.Join(ErrDownload, err)
	}

	stored, err := s.store.AddImage(ctx, data)
	if err != nil {
		span.RecordError(err)
		return false, err
	}

	span.SetAttributes(attribute.Bool("candidate.added", stored))

	return stored, nil
}
