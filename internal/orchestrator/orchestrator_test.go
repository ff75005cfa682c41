package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mosaic-crm/prospector/internal/lead"
	"github.com/mosaic-crm/prospector/internal/provider"
	"github.com/mosaic-crm/prospector/internal/scoring"
	"github.com/mosaic-crm/prospector/internal/session"
)

type fakeProvider struct {
	id       string
	leads    []lead.Lead
	err      error
	family   scoring.Family
	supports bool
	delay    time.Duration
}

func (f *fakeProvider) ID() string                                { return f.id }
func (f *fakeProvider) Supports(_ lead.GenerationParameters) bool { return f.supports }
func (f *fakeProvider) Timeout() time.Duration                    { return 5 * time.Second }
func (f *fakeProvider) Provenance(_ lead.GenerationParameters) scoring.Provenance {
	return scoring.Provenance{Provider: f.id, Family: f.family}
}

func (f *fakeProvider) Fetch(ctx context.Context, _ lead.GenerationParameters) ([]lead.Lead, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make([]lead.Lead, len(f.leads))
	copy(out, f.leads)
	return out, nil
}

type fakeSink struct {
	mu        sync.Mutex
	completed []session.Session
	failed    []session.Session
}

func (f *fakeSink) PublishCompleted(sess session.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, sess)
	return nil
}

func (f *fakeSink) PublishFailed(sess session.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, sess)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fakeLead(name string) lead.Lead {
	return lead.Lead{
		ID:              "lead_" + name,
		Name:            name,
		Title:           "CTO",
		Company:         "Acme",
		ConfidenceScore: 80,
		Status:          lead.StatusNew,
		CreatedAt:       time.Now().UTC(),
	}
}

func runSession(t *testing.T, store *session.Store, providers []provider.Provider, sink EventSink) session.Session {
	t.Helper()

	params := lead.GenerationParameters{TargetRole: "CTO"}
	params.Normalize()
	sess := store.Create(params)

	orch := New(store, providers, sink, nil, time.Minute, testLogger())
	orch.Start(sess.ID)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := orch.Shutdown(ctx); err != nil {
		t.Fatalf("session did not settle: %v", err)
	}

	settled, err := store.Get(sess.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return settled
}

func TestRun_PartialFailureStillCompletes(t *testing.T) {
	store := session.NewStore(session.Options{Logger: testLogger()})
	defer store.Close()

	good := &fakeProvider{
		id:       "good",
		supports: true,
		family:   scoring.FamilyGenerative,
		leads:    []lead.Lead{fakeLead("a"), fakeLead("b")},
	}
	bad := &fakeProvider{
		id:       "bad",
		supports: true,
		err:      errors.New("upstream down"),
	}

	sink := &fakeSink{}
	sess := runSession(t, store, []provider.Provider{good, bad}, sink)

	if sess.Status != lead.StatusCompleted {
		t.Errorf("expected completed, got %q (%s)", sess.Status, sess.Error)
	}
	if len(sess.Leads) != 2 {
		t.Errorf("expected 2 leads from the surviving provider, got %d", len(sess.Leads))
	}
	if len(sess.ProvidersUsed) != 1 || sess.ProvidersUsed[0] != "good" {
		t.Errorf("expected only the contributing provider recorded, got %v", sess.ProvidersUsed)
	}
	if len(sink.completed) != 1 || len(sink.failed) != 0 {
		t.Errorf("expected one completed event, got %d completed / %d failed", len(sink.completed), len(sink.failed))
	}
}

func TestRun_TotalFailure(t *testing.T) {
	store := session.NewStore(session.Options{Logger: testLogger()})
	defer store.Close()

	sink := &fakeSink{}
	sess := runSession(t, store, []provider.Provider{
		&fakeProvider{id: "one", supports: true, err: errors.New("quota exceeded")},
		&fakeProvider{id: "two", supports: true, err: errors.New("timeout")},
	}, sink)

	if sess.Status != lead.StatusError {
		t.Errorf("expected error status, got %q", sess.Status)
	}
	if len(sess.Leads) != 0 {
		t.Errorf("expected no leads, got %d", len(sess.Leads))
	}
	if !strings.Contains(sess.Error, "quota exceeded") || !strings.Contains(sess.Error, "timeout") {
		t.Errorf("expected aggregated failure message, got %q", sess.Error)
	}
	if len(sink.failed) != 1 || len(sink.completed) != 0 {
		t.Errorf("expected one failed event, got %d failed / %d completed", len(sink.failed), len(sink.completed))
	}
}

func TestRun_NoSupportingProviders(t *testing.T) {
	store := session.NewStore(session.Options{Logger: testLogger()})
	defer store.Close()

	sess := runSession(t, store, []provider.Provider{
		&fakeProvider{id: "narrow", supports: false},
	}, nil)

	if sess.Status != lead.StatusError {
		t.Errorf("expected error status, got %q", sess.Status)
	}
	if !strings.Contains(sess.Error, "no provider supports") {
		t.Errorf("unexpected error message: %q", sess.Error)
	}
}

func TestRun_ScoringAppliedPerProviderFamily(t *testing.T) {
	store := session.NewStore(session.Options{Logger: testLogger()})
	defer store.Close()

	proxyLead := fakeLead("scraped")
	proxyLead.ConfidenceScore = 95

	sess := runSession(t, store, []provider.Provider{
		&fakeProvider{id: "proxy", supports: true, family: scoring.FamilyProxy, leads: []lead.Lead{proxyLead}},
	}, nil)

	if len(sess.Leads) != 1 {
		t.Fatalf("expected 1 lead, got %d", len(sess.Leads))
	}
	if sess.Leads[0].ConfidenceScore != scoring.ProxyBaseline {
		t.Errorf("expected proxy baseline applied, got %v", sess.Leads[0].ConfidenceScore)
	}
}

func TestRun_SlowProviderDoesNotBlockFastOne(t *testing.T) {
	store := session.NewStore(session.Options{Logger: testLogger()})
	defer store.Close()

	params := lead.GenerationParameters{TargetRole: "CTO"}
	params.Normalize()
	sess := store.Create(params)

	fast := &fakeProvider{id: "fast", supports: true, leads: []lead.Lead{fakeLead("a")}}
	slow := &fakeProvider{id: "slow", supports: true, delay: 200 * time.Millisecond, leads: []lead.Lead{fakeLead("b")}}

	orch := New(store, []provider.Provider{fast, slow}, nil, nil, time.Minute, testLogger())

	_, events, cancel, err := store.Subscribe(sess.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer cancel()

	orch.Start(sess.ID)

	// The fast provider's batch must arrive before the session settles.
	var batches int
	var sawTerminal bool
	deadline := time.After(5 * time.Second)
	for !sawTerminal {
		select {
		case ev, open := <-events:
			if !open {
				sawTerminal = true
				break
			}
			if len(ev.Leads) > 0 {
				batches++
			}
			if ev.Status.Terminal() {
				sawTerminal = true
			}
		case <-deadline:
			t.Fatal("session never settled")
		}
	}

	if batches != 2 {
		t.Errorf("expected 2 incremental batches, got %d", batches)
	}

	ctx, cancelWait := context.WithTimeout(context.Background(), time.Second)
	defer cancelWait()
	orch.Shutdown(ctx)

	settled, _ := store.Get(sess.ID)
	if settled.Status != lead.StatusCompleted {
		t.Errorf("expected completed, got %q", settled.Status)
	}
	if len(settled.Leads) != 2 {
		t.Errorf("expected 2 leads, got %d", len(settled.Leads))
	}
}

func TestProviders(t *testing.T) {
	store := session.NewStore(session.Options{Logger: testLogger()})
	defer store.Close()

	orch := New(store, []provider.Provider{
		&fakeProvider{id: "generative"},
		&fakeProvider{id: "brightdata"},
	}, nil, nil, time.Minute, testLogger())

	ids := orch.Providers()
	if len(ids) != 2 || ids[0] != "generative" || ids[1] != "brightdata" {
		t.Errorf("unexpected provider ids: %v", ids)
	}
}
