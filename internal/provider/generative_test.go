package provider

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mosaic-crm/prospector/internal/gemini"
	"github.com/mosaic-crm/prospector/internal/lead"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// geminiResponse wraps raw lead JSON in the candidate envelope the API
// returns.
func geminiResponse(t *testing.T, leads any) []byte {
	t.Helper()
	text, err := json.Marshal(leads)
	if err != nil {
		t.Fatalf("marshal leads: %v", err)
	}
	resp := map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"parts": []map[string]string{{"text": string(text)}}}},
		},
	}
	body, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return body
}

func newGenerativeForTest(t *testing.T, handler http.HandlerFunc) *Generative {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	llm := gemini.NewClient("test-key", 5*time.Second)
	llm.SetBaseURL(server.URL)
	return NewGenerative(llm, "gemini-2.5-flash", "gemini-3-pro-preview", 5*time.Second, testLogger())
}

func TestGenerative_Fetch(t *testing.T) {
	var gotPath string
	var gotPrompt string

	g := newGenerativeForTest(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		var req struct {
			Contents []struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"contents"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		gotPrompt = req.Contents[0].Parts[0].Text

		w.Write(geminiResponse(t, []map[string]any{
			{"name": "Jane Doe", "title": "CTO", "company": "Acme", "email": "jane@acme.com", "confidenceScore": 88, "tags": []string{"saas"}},
			{"name": "Joe Bloggs", "title": "CTO", "company": "", "confidenceScore": 70},
		}))
	})

	params := lead.GenerationParameters{TargetRole: "CTO", IncludeEmail: true}
	params.Normalize()

	leads, err := g.Fetch(context.Background(), params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(leads) != 1 {
		t.Fatalf("expected record without company dropped, got %d leads", len(leads))
	}

	l := leads[0]
	if l.Name != "Jane Doe" || l.Company != "Acme" {
		t.Errorf("unexpected lead: %+v", l)
	}
	if l.Email == nil || *l.Email != "jane@acme.com" {
		t.Errorf("expected requested email kept, got %v", l.Email)
	}
	if l.ConfidenceScore != 88 {
		t.Errorf("expected self-reported score, got %v", l.ConfidenceScore)
	}
	if l.Status != lead.StatusNew {
		t.Errorf("expected status new, got %q", l.Status)
	}
	if l.Source != "generic" {
		t.Errorf("expected source from platform, got %q", l.Source)
	}
	if !strings.HasPrefix(l.ID, "lead_") {
		t.Errorf("unexpected id %q", l.ID)
	}

	if gotPath != "/models/gemini-2.5-flash:generateContent" {
		t.Errorf("unexpected model path: %q", gotPath)
	}
	if !strings.Contains(gotPrompt, "list of 5") {
		t.Errorf("expected standard batch size in prompt: %q", gotPrompt)
	}
	if !strings.Contains(gotPrompt, "Target Role: CTO") {
		t.Errorf("target role missing from prompt: %q", gotPrompt)
	}
}

func TestGenerative_ContactFieldGating(t *testing.T) {
	g := newGenerativeForTest(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(geminiResponse(t, []map[string]any{
			{"name": "Jane Doe", "title": "CTO", "company": "Acme", "email": "jane@acme.com", "phone": "", "confidenceScore": 80},
		}))
	})

	// Email not requested: stripped even though the model produced one.
	// Phone requested but absent: explicit sentinel, never fabricated.
	params := lead.GenerationParameters{TargetRole: "CTO", IncludeEmail: false, IncludePhone: true}
	params.Normalize()

	leads, err := g.Fetch(context.Background(), params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(leads) != 1 {
		t.Fatalf("expected 1 lead, got %d", len(leads))
	}

	if leads[0].Email != nil {
		t.Errorf("expected unrequested email stripped, got %v", *leads[0].Email)
	}
	if leads[0].Phone == nil || *leads[0].Phone != lead.NotAvailable {
		t.Errorf("expected %q sentinel for missing phone, got %v", lead.NotAvailable, leads[0].Phone)
	}
}

func TestGenerative_ComprehensiveUsesProModel(t *testing.T) {
	var gotPath, gotPrompt string
	g := newGenerativeForTest(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotPrompt = string(body)
		w.Write(geminiResponse(t, []map[string]any{}))
	})

	params := lead.GenerationParameters{TargetRole: "CTO", Depth: lead.DepthComprehensive}
	params.Normalize()

	if _, err := g.Fetch(context.Background(), params); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/models/gemini-3-pro-preview:generateContent" {
		t.Errorf("expected pro model for comprehensive depth, got %q", gotPath)
	}
	if !strings.Contains(gotPrompt, "list of 5") {
		t.Errorf("expected standard batch size for comprehensive depth: %q", gotPrompt)
	}
}

func TestGenerative_DeepDiveBatchSize(t *testing.T) {
	var gotPath string
	var gotPrompt string
	g := newGenerativeForTest(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotPrompt = string(body)
		w.Write(geminiResponse(t, []map[string]any{}))
	})

	params := lead.GenerationParameters{TargetRole: "CTO", Depth: lead.DepthDeepDive}
	params.Normalize()

	if _, err := g.Fetch(context.Background(), params); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/models/gemini-2.5-flash:generateContent" {
		t.Errorf("expected default model for deep dive, got %q", gotPath)
	}
	if !strings.Contains(gotPrompt, "list of 8") {
		t.Errorf("expected deep dive batch size 8: %q", gotPrompt)
	}
}

func TestGenerative_MalformedModelOutput(t *testing.T) {
	g := newGenerativeForTest(t, func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]string{{"text": "not json"}}}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	})

	params := lead.GenerationParameters{TargetRole: "CTO"}
	params.Normalize()

	if _, err := g.Fetch(context.Background(), params); err == nil {
		t.Fatal("expected error for unparseable model output")
	}
}

func TestGenerative_SupportsEverything(t *testing.T) {
	g := NewGenerative(gemini.NewClient("k", time.Second), "m", "pm", time.Second, testLogger())
	if !g.Supports(lead.GenerationParameters{}) {
		t.Error("generative provider should support any parameters")
	}
}
