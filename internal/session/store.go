package session

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mosaic-crm/prospector/internal/lead"
)

// ErrNotFound is returned for operations against a session id the store
// does not recognize — expired or never created. Callers must handle it
// explicitly; it is never a silent no-op.
var ErrNotFound = errors.New("session not found")

// ErrTerminal is returned when a mutation targets a session that already
// reached completed or error.
var ErrTerminal = errors.New("session already terminal")

// Session is the mutable, ephemeral record of one generation request.
// Snapshots handed out by the store are deep enough copies that callers
// can read them without holding the store lock.
type Session struct {
	ID            string                    `json:"id"`
	Params        lead.GenerationParameters `json:"params"`
	Status        lead.SessionStatus        `json:"status"`
	Leads         []lead.Lead               `json:"leads"`
	ProvidersUsed []string                  `json:"providersUsed"`
	Error         string                    `json:"error,omitempty"`
	CreatedAt     time.Time                 `json:"createdAt"`
	UpdatedAt     time.Time                 `json:"updatedAt"`
}

// Event is one unit of session activity delivered to subscribers: either
// a batch of appended leads or a status change, never both.
type Event struct {
	Leads   []lead.Lead
	Status  lead.SessionStatus
	Message string
}

// subscriberBuffer bounds how far a subscriber may fall behind before the
// store drops it. The SSE writer drains fast; 64 batches of slack is
// plenty for the handful of providers a session fans out to.
const subscriberBuffer = 64

type sessionState struct {
	session Session
	subs    map[int]chan Event
	nextSub int
}

// Options configures a Store.
type Options struct {
	// TTL is how long a session survives after its last update before the
	// janitor evicts it. Zero disables eviction.
	TTL time.Duration
	// Ceiling forces a running session with no activity past this bound to
	// error, so a hung provider cannot pin memory forever. Zero disables.
	Ceiling time.Duration
	// SweepInterval overrides the janitor tick, mainly for tests.
	SweepInterval time.Duration
	Logger        *slog.Logger
}

// Store is the concurrency-safe registry of in-flight generation
// sessions. It is an explicit injectable component: construct one per
// process (or per test) and Close it when done.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*sessionState

	ttl     time.Duration
	ceiling time.Duration
	logger  *slog.Logger

	done chan struct{}
	wg   sync.WaitGroup
}

func NewStore(opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		sessions: make(map[string]*sessionState),
		ttl:      opts.TTL,
		ceiling:  opts.Ceiling,
		logger:   logger,
		done:     make(chan struct{}),
	}
	if opts.TTL > 0 || opts.Ceiling > 0 {
		interval := opts.SweepInterval
		if interval <= 0 {
			interval = time.Minute
		}
		s.wg.Add(1)
		go s.janitor(interval)
	}
	return s
}

// Close stops the eviction janitor. Sessions still registered remain
// readable until the process exits.
func (s *Store) Close() {
	close(s.done)
	s.wg.Wait()
}

// Create allocates a new queued session for params and returns a snapshot.
func (s *Store) Create(params lead.GenerationParameters) Session {
	now := time.Now().UTC()
	sess := Session{
		ID:        "sess_" + uuid.NewString(),
		Params:    params,
		Status:    lead.StatusQueued,
		Leads:     []lead.Lead{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	s.sessions[sess.ID] = &sessionState{
		session: sess,
		subs:    make(map[int]chan Event),
	}
	s.mu.Unlock()

	return sess
}

// Get returns a snapshot of the session, or ErrNotFound.
func (s *Store) Get(id string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.sessions[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return snapshot(st), nil
}

// AppendLeads atomically adds a batch to the session and notifies
// subscribers. Safe for concurrent use by multiple providers. Appends to
// a terminal session are rejected so lead counts stay monotonic-final.
func (s *Store) AppendLeads(id string, leads []lead.Lead) error {
	if len(leads) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if st.session.Status.Terminal() {
		return ErrTerminal
	}

	st.session.Leads = append(st.session.Leads, leads...)
	st.session.UpdatedAt = time.Now().UTC()

	batch := make([]lead.Lead, len(leads))
	copy(batch, leads)
	s.broadcast(st, Event{Leads: batch})
	return nil
}

// AddProviders records provider identifiers that contributed to the
// session, keeping the set free of duplicates.
func (s *Store) AddProviders(id string, providers ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	for _, p := range providers {
		if !contains(st.session.ProvidersUsed, p) {
			st.session.ProvidersUsed = append(st.session.ProvidersUsed, p)
		}
	}
	return nil
}

// SetStatus atomically transitions the session. Transitions out of a
// terminal state are rejected. On reaching a terminal state subscribers
// receive the final status event and their channels are closed.
func (s *Store) SetStatus(id string, status lead.SessionStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if st.session.Status.Terminal() {
		return ErrTerminal
	}

	st.session.Status = status
	st.session.UpdatedAt = time.Now().UTC()
	if errMsg != "" {
		st.session.Error = errMsg
	}

	s.broadcast(st, Event{Status: status, Message: errMsg})
	if status.Terminal() {
		s.closeSubs(st)
	}
	return nil
}

// Subscribe registers a listener for session activity. The returned
// snapshot and channel are consistent: every lead batch appended after
// the snapshot arrives exactly once on the channel. The channel is closed
// after the terminal status event (immediately, for sessions that are
// already terminal). cancel is idempotent and safe after close.
func (s *Store) Subscribe(id string) (Session, <-chan Event, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[id]
	if !ok {
		return Session{}, nil, nil, ErrNotFound
	}

	snap := snapshot(st)
	ch := make(chan Event, subscriberBuffer)

	if st.session.Status.Terminal() {
		close(ch)
		return snap, ch, func() {}, nil
	}

	key := st.nextSub
	st.nextSub++
	st.subs[key] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if cur, ok := st.subs[key]; ok && cur == ch {
			delete(st.subs, key)
			close(ch)
		}
	}
	return snap, ch, cancel, nil
}

// broadcast delivers ev to every subscriber. Called with s.mu held. A
// subscriber whose buffer is full is dropped rather than blocking the
// writer path.
func (s *Store) broadcast(st *sessionState, ev Event) {
	for key, ch := range st.subs {
		select {
		case ch <- ev:
		default:
			delete(st.subs, key)
			close(ch)
			s.logger.Warn("dropping slow session subscriber", "session_id", st.session.ID)
		}
	}
}

// closeSubs closes and removes every subscriber. Called with s.mu held.
func (s *Store) closeSubs(st *sessionState) {
	for key, ch := range st.subs {
		delete(st.subs, key)
		close(ch)
	}
}

func (s *Store) janitor(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep(time.Now().UTC())
		}
	}
}

// sweep evicts stale sessions and forces hung ones to error.
func (s *Store) sweep(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, st := range s.sessions {
		idle := now.Sub(st.session.UpdatedAt)

		if s.ceiling > 0 && !st.session.Status.Terminal() && idle > s.ceiling {
			st.session.Status = lead.StatusError
			st.session.Error = "session timed out"
			st.session.UpdatedAt = now
			s.broadcast(st, Event{Status: lead.StatusError, Message: "session timed out"})
			s.closeSubs(st)
			s.logger.Warn("forced hung session to error", "session_id", id, "idle", idle)
			continue
		}

		if s.ttl > 0 && st.session.Status.Terminal() && idle > s.ttl {
			s.closeSubs(st)
			delete(s.sessions, id)
			s.logger.Info("evicted session", "session_id", id, "idle", idle)
		}
	}
}

func snapshot(st *sessionState) Session {
	snap := st.session
	snap.Leads = make([]lead.Lead, len(st.session.Leads))
	copy(snap.Leads, st.session.Leads)
	snap.ProvidersUsed = append([]string(nil), st.session.ProvidersUsed...)
	return snap
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
