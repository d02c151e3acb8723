// Package jobs tracks the lifecycle of one server-side analysis job.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jfrid/logsleuth/pkg/models"
)

// ErrNotRetryable is returned by Retry when the job is not in a failed or
// partial state.
var ErrNotRetryable = errors.New("job is not in a retryable state")

// Backend is the slice of the HTTP client the tracker needs.
type Backend interface {
	StartJob(ctx context.Context, session string, kind models.JobKind, req *models.StartRequest) (*models.StartResponse, error)
	ClearJob(ctx context.Context, session string, kind models.JobKind) error
}

// Channel is an open live-update transport. Closing it stops push and
// polling for the job.
type Channel interface {
	Close()
}

// ChannelFactory opens a live-update channel that feeds snapshots into the
// given apply function.
type ChannelFactory func(apply func(models.StatusSnapshot)) Channel

// Tracker is the finite-state machine for one job:
//
//	not_started -> processing -> {completed | failed | partial}
//
// failed and partial may go back to processing via Retry; any state resets
// to not_started via Clear. Consumers only ever observe one consistent
// snapshot per transition.
type Tracker struct {
	kind    models.JobKind
	session string
	backend Backend
	open    ChannelFactory

	mu       sync.Mutex
	job      models.Job
	gen      int
	ch       Channel
	starting bool
	onUpdate func(models.Job)
}

// NewTracker creates a tracker in the not_started state. The factory is
// invoked whenever a transition to processing needs a live channel.
func NewTracker(session string, kind models.JobKind, backend Backend, open ChannelFactory) *Tracker {
	return &Tracker{
		kind:    kind,
		session: session,
		backend: backend,
		open:    open,
		job:     models.Job{Kind: kind, Status: models.StatusNotStarted},
	}
}

// OnUpdate registers a callback invoked with a consistent job snapshot
// after every transition. The callback must not call back into the tracker.
func (t *Tracker) OnUpdate(fn func(models.Job)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onUpdate = fn
}

// Snapshot returns a copy of the current job state. The Result pointer is
// shared but the payload is immutable once received.
func (t *Tracker) Snapshot() models.Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.job
}

// Kind returns the tracked job kind.
func (t *Tracker) Kind() models.JobKind { return t.kind }

// Session returns the session id the tracker is bound to.
func (t *Tracker) Session() string { return t.session }

// Start issues the start request unless the job is already running or
// completed. A backend answer of already_completed transitions straight to
// completed with the cached result; already_running attaches to the
// existing job's channel instead of starting a duplicate.
func (t *Tracker) Start(ctx context.Context, req *models.StartRequest) error {
	t.mu.Lock()
	if t.starting || t.job.Status == models.StatusProcessing || t.job.Status == models.StatusCompleted {
		t.mu.Unlock()
		return nil
	}
	t.starting = true
	gen := t.gen
	t.mu.Unlock()

	resp, err := t.backend.StartJob(ctx, t.session, t.kind, req)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.starting = false
	if gen != t.gen {
		// Cleared or superseded while the request was in flight.
		return nil
	}
	if err != nil {
		t.job.Status = models.StatusFailed
		t.job.Error = err.Error()
		t.job.Message = "start request failed"
		t.notifyLocked()
		return fmt.Errorf("starting %s job: %w", t.kind, err)
	}

	switch resp.Status {
	case models.StartAlreadyCompleted:
		t.job.Status = models.StatusCompleted
		t.job.Progress = 100
		t.job.Result = resp.Results
		t.job.Error = ""
	case models.StartAlreadyRunning:
		t.job.Status = models.StatusProcessing
		t.openChannelLocked()
	default:
		t.job.Status = models.StatusProcessing
		t.job.Progress = resp.Progress
		t.job.Message = resp.Message
		t.openChannelLocked()
	}
	t.notifyLocked()
	return nil
}

// Apply merges one status snapshot into the job. Keepalives are ignored. A
// terminal snapshot closes the live channel, so anything delivered after it
// is dropped at the channel boundary.
func (t *Tracker) Apply(snap models.StatusSnapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.applyLocked(snap)
}

// applyGen is the fenced entry point handed to live channels: deliveries
// from a channel opened before the last Clear are dropped.
func (t *Tracker) applyGen(gen int, snap models.StatusSnapshot) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen {
		return
	}
	t.applyLocked(snap)
}

func (t *Tracker) applyLocked(snap models.StatusSnapshot) {
	if snap.Keepalive() {
		return
	}
	// A terminal snapshot wins: anything arriving after it is ignored until
	// an explicit Clear or Retry.
	if t.job.Status.Terminal() {
		return
	}

	t.job.Status = snap.Status
	t.job.Progress = snap.Progress
	if snap.Message != "" {
		t.job.Message = snap.Message
	}
	if snap.Results != nil {
		t.job.Result = snap.Results
	}
	if snap.Error != "" {
		t.job.Error = snap.Error
	}
	if len(snap.Extra) > 0 {
		// Snapshot() hands the Extra map out by reference; merging into a
		// fresh map keeps already-published snapshots immutable.
		merged := make(map[string]json.RawMessage, len(t.job.Extra)+len(snap.Extra))
		for k, v := range t.job.Extra {
			merged[k] = v
		}
		for k, v := range snap.Extra {
			merged[k] = v
		}
		t.job.Extra = merged
	}

	if snap.Status.Terminal() {
		t.closeChannelLocked()
	}
	t.notifyLocked()
}

// Clear cancels the live channel, discards result and error, resets to
// not_started and asks the backend to drop its stored state. The generation
// bump guarantees that no in-flight delivery or start response can mutate
// the tracker afterwards.
func (t *Tracker) Clear(ctx context.Context) error {
	t.mu.Lock()
	t.gen++
	t.closeChannelLocked()
	t.job = models.Job{Kind: t.kind, Status: models.StatusNotStarted}
	t.starting = false
	t.notifyLocked()
	t.mu.Unlock()

	if err := t.backend.ClearJob(ctx, t.session, t.kind); err != nil {
		return fmt.Errorf("clearing %s job: %w", t.kind, err)
	}
	return nil
}

// Retry is only valid from failed or partial and is equivalent to Clear
// followed by Start.
func (t *Tracker) Retry(ctx context.Context, req *models.StartRequest) error {
	t.mu.Lock()
	status := t.job.Status
	t.mu.Unlock()
	if status != models.StatusFailed && status != models.StatusPartial {
		return ErrNotRetryable
	}
	if err := t.Clear(ctx); err != nil {
		return err
	}
	return t.Start(ctx, req)
}

// Close tears the tracker down without touching backend state. Used on
// session switch.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gen++
	t.closeChannelLocked()
}

func (t *Tracker) openChannelLocked() {
	if t.ch != nil || t.open == nil {
		return
	}
	gen := t.gen
	t.ch = t.open(func(snap models.StatusSnapshot) {
		t.applyGen(gen, snap)
	})
}

// closeChannelLocked detaches the channel and closes it without waiting.
// Channel Close is non-blocking; stale deliveries racing the close are
// fenced by the generation check or by the terminal state having already
// stopped the channel's own loop.
func (t *Tracker) closeChannelLocked() {
	if t.ch == nil {
		return
	}
	ch := t.ch
	t.ch = nil
	go ch.Close()
}

func (t *Tracker) notifyLocked() {
	if t.onUpdate != nil {
		t.onUpdate(t.job)
	}
}
