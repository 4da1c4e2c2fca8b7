// Package feed serves ranked leaderboards, on demand and live.
//
// HOW A CHANGE REACHES A SUBSCRIBER:
//
//	ledger.ApplyEvent ──► Feed.ScoreChanged("ai-ml")
//	                         │  marks scopes "" (global) and "ai-ml" dirty
//	                         ▼
//	                   scope refresher goroutine
//	                         │  Snapshot → ranking.Rank → Top(Ceiling)
//	                         ▼
//	                   Subscription queue ──► callback
//
// ScoreChanged runs while the ledger holds a user's lock, so it only flips a
// flag and returns. The expensive part (snapshot and sort) happens on one
// goroutine per scope. Several changes that land while a refresh is running
// collapse into a single follow-up refresh; the board it produces already
// contains all of them.
//
// EVENTUAL CONSISTENCY:
// A delivered board may lag the very latest event by one refresh. It never
// goes backwards for a given subscriber: each scope computes and pushes one
// board at a time, and each subscription delivers in push order.
//
// STALE FALLBACK:
// Every successful ranking is remembered per scope. When the store is having
// a bad moment, HTTP handlers can call Cached to show the last good board
// instead of an error page.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sakif/skillboard/internal/apperror"
	"github.com/sakif/skillboard/internal/metrics"
	"github.com/sakif/skillboard/internal/model"
	"github.com/sakif/skillboard/internal/ranking"
	"github.com/sakif/skillboard/internal/repository"
	"github.com/sakif/skillboard/internal/telemetry"
)

const (
	DefaultCeiling          = 50
	DefaultSubscriberBuffer = 64
)

// Snapshotter is the read side of the ledger.
type Snapshotter interface {
	Snapshot(ctx context.Context, category string) ([]model.UserScore, error)
}

type Config struct {
	// Ceiling is how many entries each subscriber receives per update.
	Ceiling int
	// SubscriberBuffer is how many undelivered boards a subscription may
	// hold before the oldest is dropped.
	SubscriberBuffer int
}

// cachedBoard is the last ranking of a scope and the number of the snapshot
// it was computed from.
type cachedBoard struct {
	entries []model.LeaderboardEntry
	seq     uint64
}

// afterFunc is context.AfterFunc. Tests swap it to watch registrations.
var afterFunc = context.AfterFunc

// scope is one leaderboard: the global one (category "") or a category.
type scope struct {
	category string
	wake     chan struct{}
	subs     map[*Subscription]struct{} // guarded by Feed.mu

	// refreshMu makes "compute a board and push it" atomic per scope, so a
	// newer board can never be queued ahead of an older one.
	refreshMu sync.Mutex
}

type Feed struct {
	source Snapshotter
	ranks  repository.RankWriter
	cfg    Config

	mu     sync.Mutex
	scopes map[string]*scope
	closed bool

	// snapshots numbers every Snapshot call, so a ranking that finishes late
	// can tell it was taken before the one already cached.
	snapshots atomic.Uint64
	cacheMu   sync.RWMutex
	cache     map[string]cachedBoard

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics *metrics.Metrics
	tracer  trace.Tracer
	logger  *slog.Logger
}

// New creates a Feed reading from source. ranks is optional: when set, every
// global recompute writes each user's rank back for cheap point lookups.
// Call Close to stop the background goroutines.
func New(source Snapshotter, ranks repository.RankWriter, cfg Config, m *metrics.Metrics, logger *slog.Logger) *Feed {
	if cfg.Ceiling <= 0 {
		cfg.Ceiling = DefaultCeiling
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = DefaultSubscriberBuffer
	}
	if m == nil {
		m = metrics.New(nil)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Feed{
		source:  source,
		ranks:   ranks,
		cfg:     cfg,
		scopes:  make(map[string]*scope),
		cache:   make(map[string]cachedBoard),
		ctx:     ctx,
		cancel:  cancel,
		metrics: m,
		tracer:  otel.Tracer(telemetry.TracerName),
		logger:  logger,
	}
}

// GetTop ranks the current snapshot and returns the first n entries.
// n == 0 returns an empty board without reading the store. Errors from the
// ledger come back unchanged.
func (f *Feed) GetTop(ctx context.Context, n int, category string) ([]model.LeaderboardEntry, error) {
	if n < 0 {
		return nil, apperror.ValidationFailed("limit", "limit must not be negative")
	}
	if n == 0 {
		return []model.LeaderboardEntry{}, nil
	}
	entries, err := f.rank(ctx, category)
	if err != nil {
		return nil, err
	}
	return ranking.Top(entries, n), nil
}

// RankOf returns userID's fresh position on the board for category.
func (f *Feed) RankOf(ctx context.Context, userID, category string) (model.LeaderboardEntry, error) {
	entries, err := f.rank(ctx, category)
	if err != nil {
		return model.LeaderboardEntry{}, err
	}
	e, ok := ranking.Position(entries, userID)
	if !ok {
		return model.LeaderboardEntry{}, apperror.NotFound("leaderboard entry", userID)
	}
	return e, nil
}

// Cached returns the first n entries of the last board successfully ranked
// for category. ok is false if that scope has never been ranked.
func (f *Feed) Cached(category string, n int) (entries []model.LeaderboardEntry, ok bool) {
	f.cacheMu.RLock()
	defer f.cacheMu.RUnlock()
	board, ok := f.cache[category]
	if !ok {
		return nil, false
	}
	f.metrics.StaleServed.Inc()
	return ranking.Top(board.entries, n), true
}

// Subscribe registers fn for live updates of the category board (empty
// category means the global board). fn first receives the current top
// Ceiling entries, then a fresh board after every change in scope.
//
// fn runs on the subscription's own goroutine, never concurrently with
// itself. The subscription is cancelled when ctx is done or Cancel is called.
// If the initial ranking fails, the error is returned and nothing is
// registered.
func (f *Feed) Subscribe(ctx context.Context, category string, fn func([]model.LeaderboardEntry)) (*Subscription, error) {
	if fn == nil {
		return nil, apperror.ValidationFailed("callback", "subscription callback is required")
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, apperror.Transient("subscribing", context.Canceled)
	}
	sc := f.scopeLocked(category)
	f.mu.Unlock()

	sc.refreshMu.Lock()
	defer sc.refreshMu.Unlock()

	entries, err := f.rank(ctx, category)
	if err != nil {
		return nil, err
	}

	sub := newSubscription(f, sc, fn, f.cfg.SubscriberBuffer)

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, apperror.Transient("subscribing", context.Canceled)
	}
	sc.subs[sub] = struct{}{}
	f.wg.Add(1)
	f.mu.Unlock()

	f.metrics.Subscribers.Inc()
	go sub.run()
	sub.push(ranking.Top(entries, f.cfg.Ceiling))

	sub.setStop(afterFunc(ctx, sub.Cancel))

	f.logger.Debug("leaderboard subscription added", slog.String("category", category))
	return sub, nil
}

// ScoreChanged implements ledger.Notifier. It marks the global board and
// each named category dirty and returns without doing any I/O.
func (f *Feed) ScoreChanged(_ context.Context, categories ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}

	f.markLocked("")
	for _, c := range categories {
		if c != "" {
			f.markLocked(c)
		}
	}
}

// markLocked wakes the refresher for category. Scopes nobody watches are
// skipped, except the global one when rank write-back is on.
func (f *Feed) markLocked(category string) {
	sc, ok := f.scopes[category]
	if !ok {
		if category != "" || f.ranks == nil {
			return
		}
		sc = f.scopeLocked(category)
	}
	select {
	case sc.wake <- struct{}{}:
	default:
		// a refresh is already pending and will see this change
	}
}

// scopeLocked returns the scope for category, starting its refresher on
// first use. f.mu must be held.
func (f *Feed) scopeLocked(category string) *scope {
	if sc, ok := f.scopes[category]; ok {
		return sc
	}
	sc := &scope{
		category: category,
		wake:     make(chan struct{}, 1),
		subs:     make(map[*Subscription]struct{}),
	}
	f.scopes[category] = sc
	f.wg.Add(1)
	go f.refreshLoop(sc)
	return sc
}

func (f *Feed) refreshLoop(sc *scope) {
	defer f.wg.Done()
	for {
		select {
		case <-f.ctx.Done():
			return
		case <-sc.wake:
		}
		f.refresh(sc)
	}
}

func (f *Feed) refresh(sc *scope) {
	sc.refreshMu.Lock()
	defer sc.refreshMu.Unlock()

	f.mu.Lock()
	watched := len(sc.subs) > 0
	f.mu.Unlock()
	writeBack := sc.category == "" && f.ranks != nil
	if !watched && !writeBack {
		return
	}

	f.metrics.Recomputes.WithLabelValues(scopeLabel(sc.category)).Inc()
	entries, err := f.rank(f.ctx, sc.category)
	if err != nil {
		f.metrics.RecomputeErrors.Inc()
		f.logger.Warn("leaderboard refresh failed",
			slog.String("category", sc.category),
			slog.String("error", err.Error()),
		)
		return
	}

	if writeBack {
		if err := f.ranks.SaveRanks(f.ctx, entries); err != nil {
			f.logger.Warn("rank write-back failed", slog.String("error", err.Error()))
		}
	}

	top := ranking.Top(entries, f.cfg.Ceiling)

	f.mu.Lock()
	defer f.mu.Unlock()
	for sub := range sc.subs {
		if sub.push(slices.Clone(top)) {
			f.metrics.UpdatesDropped.Inc()
		}
	}
}

// rank snapshots and ranks one scope, remembering the result for Cached.
// GetTop, RankOf and the refresher can rank the same scope concurrently; the
// cache only moves forward to a ranking of a later snapshot.
func (f *Feed) rank(ctx context.Context, category string) ([]model.LeaderboardEntry, error) {
	ctx, span := f.tracer.Start(ctx, "feed.rank",
		trace.WithAttributes(attribute.String("leaderboard.category", category)))
	defer span.End()

	seq := f.snapshots.Add(1)
	snapshot, err := f.source.Snapshot(ctx, category)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	entries, err := ranking.Rank(snapshot)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		f.logger.Error("ranking rejected snapshot",
			slog.String("category", category),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	f.storeCached(category, entries, seq)
	return entries, nil
}

// storeCached replaces the cached board for category unless it already holds
// a ranking of a newer snapshot. It reports whether it replaced it.
func (f *Feed) storeCached(category string, entries []model.LeaderboardEntry, seq uint64) bool {
	f.cacheMu.Lock()
	defer f.cacheMu.Unlock()
	if cur, ok := f.cache[category]; ok && cur.seq > seq {
		return false
	}
	f.cache[category] = cachedBoard{entries: entries, seq: seq}
	return true
}

func (f *Feed) unsubscribe(s *Subscription) {
	f.mu.Lock()
	_, ok := s.scope.subs[s]
	delete(s.scope.subs, s)
	f.mu.Unlock()
	if ok {
		f.metrics.Subscribers.Dec()
		f.logger.Debug("leaderboard subscription removed", slog.String("category", s.scope.category))
	}
}

// Subscribers reports how many live subscriptions category has.
func (f *Feed) Subscribers(category string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sc, ok := f.scopes[category]; ok {
		return len(sc.subs)
	}
	return 0
}

// Close cancels every subscription and waits for the background goroutines
// to exit. A callback that never returns will block Close.
func (f *Feed) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	var subs []*Subscription
	for _, sc := range f.scopes {
		for sub := range sc.subs {
			subs = append(subs, sub)
		}
	}
	f.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
	f.cancel()
	f.wg.Wait()
}

func scopeLabel(category string) string {
	if category == "" {
		return "all"
	}
	return fmt.Sprintf("category:%s", category)
}
