package feed

import (
	"sync"

	"github.com/sakif/skillboard/internal/model"
)

// Subscription is a live leaderboard listener returned by Feed.Subscribe.
//
// DELIVERY:
// Each subscription has its own goroutine and its own FIFO queue. The feed
// pushes rankings onto the queue and the goroutine calls the callback with
// them one at a time, oldest first. A slow callback only delays itself; it
// never blocks the ledger or other subscribers.
//
// FALLING BEHIND:
// The queue holds at most Config.SubscriberBuffer rankings. When it is full
// the oldest pending one is thrown away. Every ranking is a complete board,
// so skipping an intermediate one loses nothing a newer one doesn't show.
type Subscription struct {
	feed  *Feed
	scope *scope
	fn    func([]model.LeaderboardEntry)
	limit int

	mu      sync.Mutex
	queue   [][]model.LeaderboardEntry
	closed  bool
	dropped int

	// stop releases the Subscribe context's AfterFunc registration. Guarded
	// by mu.
	stop func() bool

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

func newSubscription(f *Feed, sc *scope, fn func([]model.LeaderboardEntry), limit int) *Subscription {
	return &Subscription{
		feed:  f,
		scope: sc,
		fn:    fn,
		limit: limit,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Category is the scope this subscription listens to. Empty means the
// global board.
func (s *Subscription) Category() string {
	return s.scope.category
}

// Done is closed once the subscription is cancelled, whether by Cancel, by
// the Subscribe context ending, or by Feed.Close.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Cancel stops delivery. It is safe to call more than once and from inside
// the callback. After Cancel returns no new callback starts; one that was
// already running (or just dequeued) may still finish, so delivery after
// cancel is at most once, never exactly zero.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.queue = nil
		stop := s.stop
		s.stop = nil
		s.mu.Unlock()

		// A long-lived request context would otherwise keep this
		// subscription reachable until it ends.
		if stop != nil {
			stop()
		}
		close(s.done)
		s.feed.unsubscribe(s)
	})
}

// setStop records the context registration to release on Cancel. If the
// subscription is already cancelled it is released right away.
func (s *Subscription) setStop(stop func() bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		stop()
		return
	}
	s.stop = stop
	s.mu.Unlock()
}

// push queues entries for delivery, dropping the oldest pending ranking
// when the queue is full. It reports whether something was dropped.
func (s *Subscription) push(entries []model.LeaderboardEntry) (dropped bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	if len(s.queue) >= s.limit {
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.dropped++
		dropped = true
	}
	s.queue = append(s.queue, entries)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return dropped
}

// next pops the oldest pending ranking. ok is false when the queue is empty
// or the subscription is cancelled.
func (s *Subscription) next() (entries []model.LeaderboardEntry, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || len(s.queue) == 0 {
		return nil, false
	}
	entries = s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	return entries, true
}

func (s *Subscription) run() {
	defer s.feed.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		for {
			entries, ok := s.next()
			if !ok {
				break
			}
			s.fn(entries)
		}
	}
}
