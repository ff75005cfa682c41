// Package orchestrator drives one generation session from queued to a
// terminal state: it fans out to every supporting provider concurrently,
// funnels their normalized leads through scoring into the session store,
// and settles the session once all providers have finished.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mosaic-crm/prospector/internal/lead"
	"github.com/mosaic-crm/prospector/internal/provider"
	"github.com/mosaic-crm/prospector/internal/scoring"
	"github.com/mosaic-crm/prospector/internal/session"
)

// EventSink receives terminal-session notifications. Optional.
type EventSink interface {
	PublishCompleted(sess session.Session) error
	PublishFailed(sess session.Session) error
}

// Archiver persists terminal sessions for the surrounding application.
// Optional.
type Archiver interface {
	ArchiveSession(ctx context.Context, sess session.Session) error
}

type Orchestrator struct {
	sessions  *session.Store
	providers []provider.Provider
	events    EventSink
	archive   Archiver
	ceiling   time.Duration
	logger    *slog.Logger

	wg sync.WaitGroup
}

// New wires the orchestrator. events and archive may be nil; the session
// engine is complete without them.
func New(sessions *session.Store, providers []provider.Provider, events EventSink, archive Archiver, ceiling time.Duration, logger *slog.Logger) *Orchestrator {
	if ceiling <= 0 {
		ceiling = 5 * time.Minute
	}
	return &Orchestrator{
		sessions:  sessions,
		providers: providers,
		events:    events,
		archive:   archive,
		ceiling:   ceiling,
		logger:    logger,
	}
}

// Start submits the session to a tracked goroutine and returns
// immediately. The session id is the correlation token; progress is
// observable through the session store.
func (o *Orchestrator) Start(sessionID string) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), o.ceiling)
		defer cancel()
		o.run(ctx, sessionID)
	}()
}

// Shutdown waits for in-flight sessions to settle or ctx to expire.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Providers returns the ids of all registered providers.
func (o *Orchestrator) Providers() []string {
	ids := make([]string, len(o.providers))
	for i, p := range o.providers {
		ids[i] = p.ID()
	}
	return ids
}

func (o *Orchestrator) run(ctx context.Context, sessionID string) {
	sess, err := o.sessions.Get(sessionID)
	if err != nil {
		o.logger.Error("session vanished before start", "session_id", sessionID, "error", err)
		return
	}
	params := sess.Params

	if err := o.sessions.SetStatus(sessionID, lead.StatusRunning, ""); err != nil {
		o.logger.Error("failed to mark session running", "session_id", sessionID, "error", err)
		return
	}

	active := provider.Active(o.providers, params)
	if len(active) == 0 {
		o.settle(sessionID, 0, []string{"no provider supports the requested parameters"})
		return
	}

	o.logger.Info("session running",
		"session_id", sessionID,
		"providers", len(active),
		"depth", string(params.Depth),
	)

	// One goroutine per provider, each with its own timeout. A provider
	// failure is recorded and swallowed; it never aborts its siblings.
	var (
		mu        sync.Mutex
		succeeded int
		failures  []string
		wg        sync.WaitGroup
	)
	for _, p := range active {
		wg.Add(1)
		go func(p provider.Provider) {
			defer wg.Done()

			fetchCtx, cancel := context.WithTimeout(ctx, p.Timeout())
			defer cancel()

			leads, err := p.Fetch(fetchCtx, params)
			if err != nil {
				o.logger.Warn("provider failed", "session_id", sessionID, "provider", p.ID(), "error", err)
				mu.Lock()
				failures = append(failures, fmt.Sprintf("%s: %v", p.ID(), err))
				mu.Unlock()
				return
			}

			leads = scoring.Finalize(leads, p.Provenance(params))
			if len(leads) > 0 {
				if err := o.sessions.AppendLeads(sessionID, leads); err != nil {
					o.logger.Error("append failed", "session_id", sessionID, "provider", p.ID(), "error", err)
					return
				}
				if err := o.sessions.AddProviders(sessionID, p.ID()); err != nil {
					o.logger.Error("record provider failed", "session_id", sessionID, "provider", p.ID(), "error", err)
				}
			}

			o.logger.Info("provider finished", "session_id", sessionID, "provider", p.ID(), "leads", len(leads))
			mu.Lock()
			succeeded++
			mu.Unlock()
		}(p)
	}
	wg.Wait()

	o.settle(sessionID, succeeded, failures)
}

// settle drives the session to its terminal state and notifies the
// optional collaborators. Only a total failure — every provider errored —
// escalates to session error.
func (o *Orchestrator) settle(sessionID string, succeeded int, failures []string) {
	if succeeded == 0 {
		msg := "all providers failed"
		if len(failures) > 0 {
			msg = fmt.Sprintf("all providers failed: %s", strings.Join(failures, "; "))
		}
		if err := o.sessions.SetStatus(sessionID, lead.StatusError, msg); err != nil {
			o.logger.Error("failed to mark session error", "session_id", sessionID, "error", err)
		}
	} else {
		if err := o.sessions.SetStatus(sessionID, lead.StatusCompleted, ""); err != nil {
			o.logger.Error("failed to mark session completed", "session_id", sessionID, "error", err)
		}
	}

	sess, err := o.sessions.Get(sessionID)
	if err != nil {
		return
	}

	o.logger.Info("session settled",
		"session_id", sessionID,
		"status", string(sess.Status),
		"leads", len(sess.Leads),
		"providers_used", sess.ProvidersUsed,
		"failures", len(failures),
	)

	if o.events != nil {
		var pubErr error
		if sess.Status == lead.StatusCompleted {
			pubErr = o.events.PublishCompleted(sess)
		} else {
			pubErr = o.events.PublishFailed(sess)
		}
		if pubErr != nil {
			o.logger.Warn("failed to publish session event", "session_id", sessionID, "error", pubErr)
		}
	}

	if o.archive != nil {
		// The run context may already be past its ceiling; archiving gets
		// its own bound.
		archiveCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := o.archive.ArchiveSession(archiveCtx, sess); err != nil {
			o.logger.Warn("failed to archive session", "session_id", sessionID, "error", err)
		}
	}
}
