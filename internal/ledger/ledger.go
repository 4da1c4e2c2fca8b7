// Package ledger owns every user's score.
//
// THE SOLE WRITER:
// Project uploads, badge awards, likes, views and admin adjustments all end up
// here as a model.ScoreEvent. Nothing else in the module writes to the
// user_scores table. The ranking package and the leaderboard feed only read
// snapshots that the ledger hands out.
//
// READ-MODIFY-WRITE PER USER:
// Applying an event means loading the current record, adding the delta and
// saving it back. Two events for the same user running at the same time would
// both read the old score and one increment would be lost. The ledger takes a
// per-user lock (keyedMutex) around the whole sequence, so:
//
//	same user       → events run one after the other, in arrival order
//	different users → events run in parallel
//
// NEVER NEGATIVE:
// A delta that would push a score below zero clamps it to zero. Admins can
// take points away, but they can't put anyone in debt.
//
// BOUNDED TIME:
// Every store call runs under Config.StoreTimeout. A slow or unreachable
// database surfaces as apperror.ErrTransient instead of a hung request.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sakif/skillboard/internal/apperror"
	"github.com/sakif/skillboard/internal/metrics"
	"github.com/sakif/skillboard/internal/model"
	"github.com/sakif/skillboard/internal/repository"
	"github.com/sakif/skillboard/internal/telemetry"
)

// DefaultStoreTimeout bounds each call into the score store.
const DefaultStoreTimeout = 5 * time.Second

// Identity is the slice of the user store the ledger needs: does this user
// exist, and which leaderboard category do they belong to.
type Identity interface {
	UserExists(ctx context.Context, id string) (bool, error)
	UserCategory(ctx context.Context, id string) (string, error)
}

// Notifier is told which leaderboard scopes changed after a successful write.
// The leaderboard feed implements it.
//
// ScoreChanged is called while the user's lock is held, so calls for one
// user arrive in the order the events were applied. Implementations must
// return quickly and must not call back into the ledger's write path.
type Notifier interface {
	ScoreChanged(ctx context.Context, categories ...string)
}

type Config struct {
	// RequireKnownUser rejects events for users the Identity store does not
	// know with apperror.UnknownUser. When false, a record is created for any
	// user ID on first event. It has no effect without an Identity.
	RequireKnownUser bool

	// StoreTimeout bounds each store call. Zero means DefaultStoreTimeout.
	StoreTimeout time.Duration
}

type Ledger struct {
	store    repository.ScoreRepository
	identity Identity
	cfg      Config
	locks    *keyedMutex

	mu        sync.RWMutex
	notifiers []Notifier

	metrics *metrics.Metrics
	tracer  trace.Tracer
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a Ledger. identity may be nil, in which case new records get
// no category. m may be nil for tests that don't look at metrics.
func New(store repository.ScoreRepository, identity Identity, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Ledger {
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultStoreTimeout
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &Ledger{
		store:    store,
		identity: identity,
		cfg:      cfg,
		locks:    newKeyedMutex(),
		metrics:  m,
		tracer:   otel.Tracer(telemetry.TracerName),
		logger:   logger,
		now:      time.Now,
	}
}

// OnChange registers n to hear about every successful write.
func (l *Ledger) OnChange(n Notifier) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notifiers = append(l.notifiers, n)
}

// ApplyEvent applies one score event and returns the updated record.
//
// Errors:
//   - apperror.ErrValidation: empty user ID or unknown reason
//   - apperror.ErrNotFound: RequireKnownUser is on and the user doesn't exist
//   - apperror.ErrTransient: the store failed or timed out; nothing was written
func (l *Ledger) ApplyEvent(ctx context.Context, ev model.ScoreEvent) (*model.UserScore, error) {
	ctx, span := l.tracer.Start(ctx, "ledger.ApplyEvent", trace.WithAttributes(
		attribute.String("user.id", ev.UserID),
		attribute.String("score.reason", string(ev.Reason)),
		attribute.Int64("score.delta", ev.Delta),
	))
	defer span.End()

	start := time.Now()
	score, err := l.apply(ctx, ev)
	l.metrics.ApplyDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		l.metrics.EventsRejected.WithLabelValues(errorKind(err)).Inc()
		return nil, err
	}

	l.metrics.EventsApplied.WithLabelValues(string(ev.Reason)).Inc()
	span.SetAttributes(attribute.Int64("score.total", score.Score))
	return score, nil
}

func (l *Ledger) apply(ctx context.Context, ev model.ScoreEvent) (*model.UserScore, error) {
	if ev.UserID == "" {
		return nil, apperror.ValidationFailed("userId", "score event needs a user ID")
	}
	if !ev.Reason.Valid() {
		return nil, apperror.ValidationFailed("reason", "unknown score event reason "+string(ev.Reason))
	}

	ctx, cancel := context.WithTimeout(ctx, l.cfg.StoreTimeout)
	defer cancel()

	if l.cfg.RequireKnownUser && l.identity != nil {
		ok, err := l.identity.UserExists(ctx, ev.UserID)
		if err != nil {
			return nil, l.transient("checking user", ev.UserID, err)
		}
		if !ok {
			return nil, apperror.UnknownUser(ev.UserID)
		}
	}

	unlock, err := l.locks.Lock(ctx, ev.UserID)
	if err != nil {
		return nil, l.transient("waiting for user lock", ev.UserID, err)
	}
	defer unlock()

	current, err := l.load(ctx, ev.UserID)
	if err != nil {
		return nil, err
	}

	next := *current
	next.Score = addClamped(next.Score, ev.Delta)
	if ev.Delta < 0 && current.Score+ev.Delta < 0 {
		l.metrics.ScoreClamps.Inc()
		l.logger.Debug("score clamped at zero",
			slog.String("user_id", ev.UserID),
			slog.Int64("previous", current.Score),
			slog.Int64("delta", ev.Delta),
		)
	}
	applyReason(&next, ev.Reason)
	next.UpdatedAt = l.now()

	if err := l.store.UpsertScore(ctx, &next); err != nil {
		return nil, l.transient("saving score", ev.UserID, err)
	}

	l.notify(ctx, next.Category)
	return &next, nil
}

// load returns the user's record, or a fresh all-zero one when they have
// none yet.
func (l *Ledger) load(ctx context.Context, userID string) (*model.UserScore, error) {
	current, err := l.store.GetScore(ctx, userID)
	switch {
	case err == nil:
		return current, nil
	case errors.Is(err, apperror.ErrNotFound):
	default:
		return nil, l.transient("loading score", userID, err)
	}

	fresh := &model.UserScore{UserID: userID}
	if l.identity != nil {
		category, err := l.identity.UserCategory(ctx, userID)
		switch {
		case err == nil:
			fresh.Category = category
		case errors.Is(err, apperror.ErrNotFound):
			// unknown to identity and allowed through: no category
		default:
			return nil, l.transient("loading category", userID, err)
		}
	}
	return fresh, nil
}

// addClamped adds delta to score, flooring at zero and saturating at
// math.MaxInt64 instead of wrapping.
func addClamped(score, delta int64) int64 {
	if delta > 0 && score > math.MaxInt64-delta {
		return math.MaxInt64
	}
	if sum := score + delta; sum > 0 {
		return sum
	}
	return 0
}

// applyReason bumps the counter that belongs to the event's reason.
func applyReason(s *model.UserScore, reason model.Reason) {
	switch reason {
	case model.ReasonProjectUpload:
		s.Projects++
	case model.ReasonBadgeAward:
		s.Badges++
	case model.ReasonProjectLike:
		s.Likes++
	case model.ReasonProjectView:
		s.Views++
	case model.ReasonAdminAdjustment:
		// score only
	}
}

// GetScore returns the stored record for userID, or apperror.ErrNotFound.
func (l *Ledger) GetScore(ctx context.Context, userID string) (*model.UserScore, error) {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.StoreTimeout)
	defer cancel()

	s, err := l.store.GetScore(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		return nil, l.transient("loading score", userID, err)
	}
	return s, nil
}

// ScoreOrZero is the read-path policy for profile pages: a user without a
// record simply has zero points.
func (l *Ledger) ScoreOrZero(ctx context.Context, userID string) (*model.UserScore, error) {
	s, err := l.GetScore(ctx, userID)
	if errors.Is(err, apperror.ErrNotFound) {
		return &model.UserScore{UserID: userID}, nil
	}
	return s, err
}

// Snapshot returns every record in category, or all records when category
// is empty. The order is unspecified; ranking.Rank imposes one.
func (l *Ledger) Snapshot(ctx context.Context, category string) ([]model.UserScore, error) {
	ctx, span := l.tracer.Start(ctx, "ledger.Snapshot",
		trace.WithAttributes(attribute.String("leaderboard.category", category)))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, l.cfg.StoreTimeout)
	defer cancel()

	scores, err := l.store.ListScores(ctx, category)
	if err != nil {
		err = l.transient("listing scores", "", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("leaderboard.size", len(scores)))
	return scores, nil
}

// Recategorize moves a user's record to another category board. Users with
// no record are left alone; their category is read from Identity when their
// first event arrives.
func (l *Ledger) Recategorize(ctx context.Context, userID, category string) error {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.StoreTimeout)
	defer cancel()

	unlock, err := l.locks.Lock(ctx, userID)
	if err != nil {
		return l.transient("waiting for user lock", userID, err)
	}
	defer unlock()

	current, err := l.store.GetScore(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil
		}
		return l.transient("loading score", userID, err)
	}
	if current.Category == category {
		return nil
	}

	previous := current.Category
	current.Category = category
	current.UpdatedAt = l.now()
	if err := l.store.UpsertScore(ctx, current); err != nil {
		return l.transient("saving score", userID, err)
	}

	l.logger.Info("user moved to another leaderboard",
		slog.String("user_id", userID),
		slog.String("from", previous),
		slog.String("to", category),
	)
	l.notify(ctx, previous, category)
	return nil
}

func (l *Ledger) notify(ctx context.Context, categories ...string) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, n := range l.notifiers {
		n.ScoreChanged(ctx, categories...)
	}
}

func (l *Ledger) transient(op, userID string, err error) error {
	l.logger.Error("score store failure",
		slog.String("op", op),
		slog.String("user_id", userID),
		slog.String("error", err.Error()),
	)
	return apperror.Transient(op, err)
}

// errorKind is the metrics label for a rejected event.
func errorKind(err error) string {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return "validation"
	case errors.Is(err, apperror.ErrNotFound):
		return "unknown_user"
	case errors.Is(err, apperror.ErrTransient):
		return "transient"
	default:
		return "other"
	}
}
