package lead

import "testing"

func TestNormalize_Defaults(t *testing.T) {
	p := GenerationParameters{TargetRole: "Marketing Manager"}
	p.Normalize()

	if p.Platform != "generic" {
		t.Errorf("expected default platform generic, got %q", p.Platform)
	}
	if p.Industry != "General" {
		t.Errorf("expected default industry General, got %q", p.Industry)
	}
	if p.Depth != DepthStandard {
		t.Errorf("expected default depth Standard, got %q", p.Depth)
	}
}

func TestNormalize_FiltersProfileURLs(t *testing.T) {
	p := GenerationParameters{
		TargetRole: "CTO",
		ProfileURLs: []string{
			"https://example.com/in/jane",
			"ftp://example.com/nope",
			"not-a-url",
			"http://example.com/in/joe",
		},
	}
	p.Normalize()

	if len(p.ProfileURLs) != 2 {
		t.Fatalf("expected 2 urls to survive, got %d: %v", len(p.ProfileURLs), p.ProfileURLs)
	}
	if p.ProfileURLs[0] != "https://example.com/in/jane" || p.ProfileURLs[1] != "http://example.com/in/joe" {
		t.Errorf("unexpected surviving urls: %v", p.ProfileURLs)
	}
}

func TestValidate(t *testing.T) {
	p := GenerationParameters{TargetRole: "CTO", Depth: DepthDeepDive}
	if err := p.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	p = GenerationParameters{Depth: DepthStandard}
	if err := p.Validate(); err == nil {
		t.Error("expected error for missing targetRole")
	}

	p = GenerationParameters{TargetRole: "CTO", Depth: "Exhaustive"}
	if err := p.Validate(); err == nil {
		t.Error("expected error for unknown depth")
	}
}

func TestSessionStatus_Terminal(t *testing.T) {
	for _, tc := range []struct {
		status   SessionStatus
		terminal bool
	}{
		{StatusQueued, false},
		{StatusRunning, false},
		{StatusCompleted, true},
		{StatusError, true},
	} {
		if tc.status.Terminal() != tc.terminal {
			t.Errorf("%s: expected terminal=%v", tc.status, tc.terminal)
		}
	}
}

func TestClampScore(t *testing.T) {
	if got := ClampScore(150); got != 100 {
		t.Errorf("expected 100, got %v", got)
	}
	if got := ClampScore(-3); got != 0 {
		t.Errorf("expected 0, got %v", got)
	}
	if got := ClampScore(87.5); got != 87.5 {
		t.Errorf("expected 87.5, got %v", got)
	}
}

func TestStrPtr(t *testing.T) {
	if StrPtr("") != nil {
		t.Error("expected nil for empty string")
	}
	if v := StrPtr("x"); v == nil || *v != "x" {
		t.Errorf("expected pointer to x, got %v", v)
	}
}
