// Package stub is an in-process analysis backend implementing the engine's
// HTTP and websocket contract with scripted job progress. It backs the
// --stub development mode and the transport tests.
package stub

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/jfrid/logsleuth/pkg/models"
)

// Scenario scripts one job kind's lifecycle: the progress frames pushed in
// order, then the terminal frame.
type Scenario struct {
	Steps        []models.StatusSnapshot
	Final        models.StatusSnapshot
	StepInterval time.Duration
	// PingInterval inserts keepalive frames on the push channel; zero
	// disables them.
	PingInterval time.Duration
}

// CompletedScenario scripts a short run ending in completed with the given
// result.
func CompletedScenario(result *models.AnalysisResult) Scenario {
	return Scenario{
		Steps: []models.StatusSnapshot{
			{Status: models.StatusProcessing, Progress: 30, Message: "parsing archive"},
			{Status: models.StatusProcessing, Progress: 70, Message: "mining patterns"},
		},
		Final:        models.StatusSnapshot{Status: models.StatusCompleted, Progress: 100, Message: "analysis complete", Results: result},
		StepInterval: 20 * time.Millisecond,
		PingInterval: 15 * time.Millisecond,
	}
}

// FailedScenario scripts a run that dies with the given error.
func FailedScenario(errMsg string) Scenario {
	return Scenario{
		Steps:        []models.StatusSnapshot{{Status: models.StatusProcessing, Progress: 40, Message: "parsing archive"}},
		Final:        models.StatusSnapshot{Status: models.StatusFailed, Message: "analysis failed", Error: errMsg},
		StepInterval: 20 * time.Millisecond,
	}
}

// PartialScenario scripts an AI run where some chunks failed but a usable
// result exists.
func PartialScenario(result *models.AnalysisResult, errMsg string) Scenario {
	return Scenario{
		Steps:        []models.StatusSnapshot{{Status: models.StatusProcessing, Progress: 50, Message: "analyzing patterns"}},
		Final:        models.StatusSnapshot{Status: models.StatusPartial, Progress: 100, Message: "some chunks failed", Results: result, Error: errMsg},
		StepInterval: 20 * time.Millisecond,
	}
}

// job is one scripted backend task.
type job struct {
	mu   sync.Mutex
	id   string
	snap models.StatusSnapshot
	subs map[chan models.StatusSnapshot]struct{}
	stop chan struct{}

	// selected records the AI start request body for test assertions.
	selected []int
}

func (j *job) current() models.StatusSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.snap
}

func (j *job) update(snap models.StatusSnapshot) {
	j.mu.Lock()
	j.snap = snap
	subs := make([]chan models.StatusSnapshot, 0, len(j.subs))
	for ch := range j.subs {
		subs = append(subs, ch)
	}
	j.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- snap:
		default:
			// Slow subscriber; it will catch up from the stored snapshot.
		}
	}
}

func (j *job) subscribe() chan models.StatusSnapshot {
	ch := make(chan models.StatusSnapshot, 16)
	j.mu.Lock()
	j.subs[ch] = struct{}{}
	j.mu.Unlock()
	return ch
}

func (j *job) unsubscribe(ch chan models.StatusSnapshot) {
	j.mu.Lock()
	delete(j.subs, ch)
	j.mu.Unlock()
}

// Server hosts the stub contract. Zero-value scenarios complete instantly
// with an empty result.
type Server struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu        sync.Mutex
	jobs      map[string]*job
	scenarios map[models.JobKind]Scenario
}

// NewServer creates a stub backend. The logger may be nil.
func NewServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		logger:    logger,
		jobs:      make(map[string]*job),
		scenarios: make(map[models.JobKind]Scenario),
	}
	s.scenarios[models.KindPrimary] = CompletedScenario(&models.AnalysisResult{})
	s.scenarios[models.KindAISubanalysis] = CompletedScenario(&models.AnalysisResult{})
	return s
}

// SetScenario overrides the script for one job kind.
func (s *Server) SetScenario(kind models.JobKind, sc Scenario) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scenarios[kind] = sc
}

// SelectedIndices returns the indices of the last AI start for a session,
// nil when the request asked for all patterns.
func (s *Server) SelectedIndices(session string) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[jobKey(session, models.KindAISubanalysis)]; ok {
		return j.selected
	}
	return nil
}

// Router builds the chi handler implementing the contract.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/analysis/{session}", func(r chi.Router) {
		r.Post("/", s.handleStart(models.KindPrimary))
		r.Get("/", s.handleStatus(models.KindPrimary))
		r.Delete("/", s.handleClear(models.KindPrimary))
	})
	r.Route("/ai-analysis/{session}", func(r chi.Router) {
		r.Post("/", s.handleStart(models.KindAISubanalysis))
		r.Get("/", s.handleStatus(models.KindAISubanalysis))
		r.Delete("/", s.handleClear(models.KindAISubanalysis))
	})

	r.Get("/ws/analysis/{session}", s.handleStream(models.KindPrimary))
	r.Get("/ws/ai-analysis/{session}", s.handleStream(models.KindAISubanalysis))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}

func jobKey(session string, kind models.JobKind) string {
	return session + "|" + string(kind)
}

func (s *Server) handleStart(kind models.JobKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := chi.URLParam(r, "session")

		var selected []int
		if kind == models.KindAISubanalysis {
			var req models.StartRequest
			if r.Body != nil {
				// An empty or malformed body means "all patterns".
				json.NewDecoder(r.Body).Decode(&req)
			}
			selected = req.SelectedIndices

			s.mu.Lock()
			primary, ok := s.jobs[jobKey(session, models.KindPrimary)]
			s.mu.Unlock()
			if !ok || primary.current().Status != models.StatusCompleted {
				respondError(w, http.StatusConflict, "primary analysis is not completed")
				return
			}
		}

		s.mu.Lock()
		key := jobKey(session, kind)
		if existing, ok := s.jobs[key]; ok {
			s.mu.Unlock()
			snap := existing.current()
			if snap.Status == models.StatusCompleted {
				respondJSON(w, http.StatusOK, models.StartResponse{
					Status:  models.StartAlreadyCompleted,
					Results: snap.Results,
				})
				return
			}
			respondJSON(w, http.StatusOK, models.StartResponse{Status: models.StartAlreadyRunning})
			return
		}

		sc := s.scenarios[kind]
		j := &job{
			id:       uuid.NewString(),
			snap:     models.StatusSnapshot{Status: models.StatusProcessing, Progress: 0, Message: "queued"},
			subs:     make(map[chan models.StatusSnapshot]struct{}),
			stop:     make(chan struct{}),
			selected: selected,
		}
		s.jobs[key] = j
		s.mu.Unlock()

		s.logger.Info("job started", "session", session, "kind", kind, "id", j.id)
		go s.runScript(j, sc)

		respondJSON(w, http.StatusOK, models.StartResponse{
			Status:   models.StartProcessing,
			Progress: 0,
			Message:  "queued",
		})
	}
}

// runScript plays the scenario's frames into the job until done or cleared.
func (s *Server) runScript(j *job, sc Scenario) {
	for _, step := range sc.Steps {
		select {
		case <-j.stop:
			return
		case <-time.After(sc.StepInterval):
		}
		j.update(step)
	}
	select {
	case <-j.stop:
		return
	case <-time.After(sc.StepInterval):
	}
	j.update(sc.Final)
}

func (s *Server) handleStatus(kind models.JobKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := chi.URLParam(r, "session")
		s.mu.Lock()
		j, ok := s.jobs[jobKey(session, kind)]
		s.mu.Unlock()
		if !ok {
			respondJSON(w, http.StatusOK, models.StatusSnapshot{Status: models.StatusNotStarted})
			return
		}
		respondJSON(w, http.StatusOK, j.current())
	}
}

func (s *Server) handleClear(kind models.JobKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := chi.URLParam(r, "session")
		s.mu.Lock()
		key := jobKey(session, kind)
		j, ok := s.jobs[key]
		delete(s.jobs, key)
		s.mu.Unlock()
		if ok {
			close(j.stop)
			s.logger.Info("job cleared", "session", session, "kind", kind)
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
	}
}

func (s *Server) handleStream(kind models.JobKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session := chi.URLParam(r, "session")
		s.mu.Lock()
		j, ok := s.jobs[jobKey(session, kind)]
		sc := s.scenarios[kind]
		s.mu.Unlock()
		if !ok {
			respondError(w, http.StatusNotFound, "no job for session")
			return
		}

		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		updates := j.subscribe()
		defer j.unsubscribe(updates)

		// Reader goroutine only to detect the peer going away.
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		var pings <-chan time.Time
		if sc.PingInterval > 0 {
			ticker := time.NewTicker(sc.PingInterval)
			defer ticker.Stop()
			pings = ticker.C
		}

		// Send the current state so late attachers catch up immediately.
		current := j.current()
		if err := conn.WriteJSON(current); err != nil {
			return
		}
		if current.Status.Terminal() {
			return
		}

		for {
			select {
			case snap := <-updates:
				if err := conn.WriteJSON(snap); err != nil {
					return
				}
				if snap.Status.Terminal() {
					return
				}
			case <-pings:
				if err := conn.WriteJSON(map[string]string{"type": "ping"}); err != nil {
					return
				}
			case <-j.stop:
				return
			case <-gone:
				return
			}
		}
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
