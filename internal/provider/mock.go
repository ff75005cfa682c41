package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mosaic-crm/prospector/internal/lead"
	"github.com/mosaic-crm/prospector/internal/scoring"
)

// Mock emits deterministic sample leads for UI and demo sessions.
// Enabled by config flag only; never active in production.
type Mock struct {
	count int
}

func NewMock(count int) *Mock {
	if count <= 0 {
		count = 25
	}
	return &Mock{count: count}
}

func (m *Mock) ID() string { return "mock" }

func (m *Mock) Supports(_ lead.GenerationParameters) bool { return true }

func (m *Mock) Timeout() time.Duration { return 5 * time.Second }

func (m *Mock) Provenance(_ lead.GenerationParameters) scoring.Provenance {
	return scoring.Provenance{Provider: m.ID(), Family: scoring.FamilyProxy}
}

func (m *Mock) Fetch(_ context.Context, params lead.GenerationParameters) ([]lead.Lead, error) {
	leads := make([]lead.Lead, 0, m.count)
	for i := 1; i <= m.count; i++ {
		l := lead.Lead{
			ID:              "lead_" + uuid.NewString(),
			Name:            fmt.Sprintf("Jane Doe %d", i),
			Title:           params.TargetRole,
			Company:         fmt.Sprintf("ExampleCorp %d", i),
			Location:        lead.StrPtr(params.Location),
			SourceURL:       fmt.Sprintf("https://example.com/profile/%d", i),
			ConfidenceScore: float64(70 + i%10),
			Tags:            []string{strings.ToLower(params.Industry), "sample"},
			Source:          params.Platform,
			Status:          lead.StatusNew,
			CreatedAt:       time.Now().UTC(),
		}
		if params.IncludeEmail {
			l.Email = lead.StrPtr(fmt.Sprintf("jane.doe%d@example.com", i))
		}
		if params.IncludePhone {
			l.Phone = lead.StrPtr(fmt.Sprintf("+1-555-000%d", i%10))
		}
		leads = append(leads, l)
	}
	return leads, nil
}
