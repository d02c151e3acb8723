// Package session binds job trackers and live channels to the active
// session id and tears everything down on switch.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/jfrid/logsleuth/internal/client"
	"github.com/jfrid/logsleuth/internal/config"
	"github.com/jfrid/logsleuth/internal/jobs"
	"github.com/jfrid/logsleuth/internal/live"
	"github.com/jfrid/logsleuth/pkg/models"
)

// ErrNoSession is returned when an operation needs an active session.
var ErrNoSession = errors.New("no active session")

// ErrPrimaryNotCompleted rejects an AI sub-analysis start before the
// primary job has completed. Checked before any network call is made.
var ErrPrimaryNotCompleted = errors.New("primary analysis is not completed")

// Subscriber receives a consistent job snapshot after every transition of
// either job. Subscribers must not call back into the binding's trackers.
type Subscriber func(kind models.JobKind, job models.Job)

// Binding owns one job tracker and live channel per job kind for the
// active session. Switching sessions is a hard cancellation boundary: all
// channels are closed and all job state is discarded before the new
// session's state exists, so a stale channel can never mutate the wrong
// session's view.
type Binding struct {
	client *client.Client
	cfg    config.Config
	logger *slog.Logger

	mu       sync.Mutex
	session  string
	trackers map[models.JobKind]*jobs.Tracker
	subs     map[int]Subscriber
	nextSub  int

	// subsList is a copy-on-write snapshot of subs, read by notify without
	// taking mu. Tracker callbacks run under the tracker's own lock, and
	// taking mu there would invert the Switch lock order.
	subsList atomic.Value // []Subscriber
}

// NewBinding creates a binding with no active session.
func NewBinding(c *client.Client, cfg config.Config, logger *slog.Logger) *Binding {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	b := &Binding{
		client:   c,
		cfg:      cfg,
		logger:   logger,
		trackers: make(map[models.JobKind]*jobs.Tracker),
		subs:     make(map[int]Subscriber),
	}
	b.subsList.Store([]Subscriber(nil))
	return b
}

// Switch activates a new session id. A no-op when the id is unchanged.
func (b *Binding) Switch(session string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if session == b.session {
		return
	}

	b.teardownLocked()
	b.session = session
	if session == "" {
		return
	}

	b.logger.Info("session activated", "session", session)
	for _, kind := range []models.JobKind{models.KindPrimary, models.KindAISubanalysis} {
		tracker := jobs.NewTracker(session, kind, b.client, b.channelFactory(session, kind))
		k := kind
		tracker.OnUpdate(func(job models.Job) {
			b.notify(k, job)
		})
		b.trackers[kind] = tracker
	}
}

// Session returns the active session id, empty when none.
func (b *Binding) Session() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.session
}

// Tracker returns the tracker for one job kind, nil without an active
// session.
func (b *Binding) Tracker(kind models.JobKind) *jobs.Tracker {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.trackers[kind]
}

// StartPrimary starts the primary analysis job.
func (b *Binding) StartPrimary(ctx context.Context) error {
	tracker := b.Tracker(models.KindPrimary)
	if tracker == nil {
		return ErrNoSession
	}
	return tracker.Start(ctx, nil)
}

// StartAISubanalysis starts the AI job scoped to the selected pattern
// indices (nil means all). Rejected locally unless the primary job is
// completed.
func (b *Binding) StartAISubanalysis(ctx context.Context, indices []int) error {
	primary := b.Tracker(models.KindPrimary)
	ai := b.Tracker(models.KindAISubanalysis)
	if primary == nil || ai == nil {
		return ErrNoSession
	}
	if primary.Snapshot().Status != models.StatusCompleted {
		return ErrPrimaryNotCompleted
	}
	return ai.Start(ctx, &models.StartRequest{SelectedIndices: indices})
}

// Subscribe registers a callback for job updates. The returned func removes
// it; all subscriptions are dropped on teardown.
func (b *Binding) Subscribe(fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = fn
	b.refreshSubsLocked()
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
		b.refreshSubsLocked()
	}
}

// Close tears down the active session and drops all subscribers.
func (b *Binding) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.teardownLocked()
	b.session = ""
	b.subs = make(map[int]Subscriber)
	b.refreshSubsLocked()
}

// teardownLocked closes every tracker and discards per-session state.
func (b *Binding) teardownLocked() {
	for _, tracker := range b.trackers {
		tracker.Close()
	}
	if len(b.trackers) > 0 {
		b.logger.Info("session state discarded", "session", b.session)
	}
	b.trackers = make(map[models.JobKind]*jobs.Tracker)
}

// channelFactory builds the live channel opener for one (session, kind)
// pair.
func (b *Binding) channelFactory(session string, kind models.JobKind) jobs.ChannelFactory {
	ch := b.cfg.Channel(kind)
	return func(apply func(models.StatusSnapshot)) jobs.Channel {
		return live.Open(live.Config{
			URL:               b.client.StreamURL(session, kind),
			ReconnectDelay:    ch.ReconnectDelay,
			MaxReconnectDelay: ch.MaxReconnectDelay,
			MaxPushFailures:   ch.MaxPushFailures,
			PollInterval:      ch.PollInterval,
			Logger:            b.logger,
		}, apply, func(ctx context.Context) (*models.StatusSnapshot, error) {
			return b.client.JobStatus(ctx, session, kind)
		})
	}
}

// refreshSubsLocked rebuilds the copy-on-write subscriber snapshot.
func (b *Binding) refreshSubsLocked() {
	subs := make([]Subscriber, 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.subsList.Store(subs)
}

// notify fans a job update out to the current subscribers. Runs under the
// originating tracker's lock, so it must not take b.mu.
func (b *Binding) notify(kind models.JobKind, job models.Job) {
	for _, fn := range b.subsList.Load().([]Subscriber) {
		fn(kind, job)
	}
}
