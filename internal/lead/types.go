package lead

import (
	"fmt"
	"strings"
	"time"
)

// Depth controls result volume and which providers are consulted.
type Depth string

const (
	DepthStandard      Depth = "Standard"
	DepthDeepDive      Depth = "Deep Dive"
	DepthComprehensive Depth = "Comprehensive"
)

// SessionStatus is the session state machine:
// queued -> running -> (completed | error).
type SessionStatus string

const (
	StatusQueued    SessionStatus = "queued"
	StatusRunning   SessionStatus = "running"
	StatusCompleted SessionStatus = "completed"
	StatusError     SessionStatus = "error"
)

// Terminal reports whether no further transition is allowed from s.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// StatusNew is the initial pipeline status of a freshly normalized lead.
// Distinct from SessionStatus — this travels with the lead into the CRM.
const StatusNew = "new"

// NotAvailable marks a contact field the caller asked for but the
// upstream could not supply. Never used when the flag was off.
const NotAvailable = "n/a"

// GenerationParameters is the immutable input of a generation session.
type GenerationParameters struct {
	Keywords     string   `json:"keywords"`
	TargetRole   string   `json:"targetRole"`
	Industry     string   `json:"industry"`
	Location     string   `json:"location"`
	Platform     string   `json:"platform"`
	Depth        Depth    `json:"depth"`
	IncludeEmail bool     `json:"includeEmail"`
	IncludePhone bool     `json:"includePhone"`
	ProfileURLs  []string `json:"profileUrls,omitempty"`
}

// Normalize fills defaults and drops profile URLs that are not http(s).
func (p *GenerationParameters) Normalize() {
	if p.Platform == "" {
		p.Platform = "generic"
	}
	if p.Industry == "" {
		p.Industry = "General"
	}
	if p.Depth == "" {
		p.Depth = DepthStandard
	}
	var urls []string
	for _, u := range p.ProfileURLs {
		lc := strings.ToLower(u)
		if strings.HasPrefix(lc, "http://") || strings.HasPrefix(lc, "https://") {
			urls = append(urls, u)
		}
	}
	p.ProfileURLs = urls
}

// Validate rejects malformed input before a session is created.
func (p GenerationParameters) Validate() error {
	if strings.TrimSpace(p.TargetRole) == "" {
		return fmt.Errorf("targetRole is required")
	}
	switch p.Depth {
	case DepthStandard, DepthDeepDive, DepthComprehensive:
	default:
		return fmt.Errorf("unknown depth %q", p.Depth)
	}
	return nil
}

// Lead is the canonical normalized output record. Name, Title and Company
// are always non-empty; providers that cannot supply one must not emit the
// record. Email and Phone are present only when the corresponding include
// flag was set.
type Lead struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Title           string    `json:"title"`
	Company         string    `json:"company"`
	Email           *string   `json:"email"`
	Phone           *string   `json:"phone"`
	Location        *string   `json:"location"`
	SourceURL       string    `json:"sourceUrl,omitempty"`
	ConfidenceScore float64   `json:"confidenceScore"`
	Tags            []string  `json:"tags"`
	Source          string    `json:"source"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"createdAt"`
}

// ClampScore bounds a confidence score to [0, 100].
func ClampScore(score float64) float64 {
	if score > 100 {
		return 100
	}
	if score < 0 {
		return 0
	}
	return score
}

// StrPtr returns a pointer to s, or nil when s is empty. Lead contact
// fields use nil (not "") for absent values on the wire.
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
