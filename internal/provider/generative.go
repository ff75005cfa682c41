package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mosaic-crm/prospector/internal/gemini"
	"github.com/mosaic-crm/prospector/internal/lead"
	"github.com/mosaic-crm/prospector/internal/scoring"
)

// Generative produces leads from a structured-generation model. It is the
// only adapter whose confidence scores are self-reported: the output
// schema constrains them to 0-100 at generation time.
type Generative struct {
	llm      *gemini.Client
	model    string
	proModel string
	timeout  time.Duration
	logger   *slog.Logger
}

func NewGenerative(llm *gemini.Client, model, proModel string, timeout time.Duration, logger *slog.Logger) *Generative {
	return &Generative{
		llm:      llm,
		model:    model,
		proModel: proModel,
		timeout:  timeout,
		logger:   logger,
	}
}

func (g *Generative) ID() string { return "generative" }

func (g *Generative) Supports(_ lead.GenerationParameters) bool { return true }

func (g *Generative) Timeout() time.Duration { return g.timeout }

func (g *Generative) Provenance(params lead.GenerationParameters) scoring.Provenance {
	return scoring.Provenance{
		Provider: g.ID(),
		Family:   scoring.FamilyGenerative,
		Model:    g.modelFor(params.Depth),
	}
}

// modelFor selects the model variant: Comprehensive depth pays for the
// higher-capability model, everything else uses the default.
func (g *Generative) modelFor(depth lead.Depth) string {
	if depth == lead.DepthComprehensive && g.proModel != "" {
		return g.proModel
	}
	return g.model
}

func batchSize(depth lead.Depth) int {
	if depth == lead.DepthDeepDive {
		return 8
	}
	return 5
}

// rawLead is the model's output record, pre-normalization.
type rawLead struct {
	Name            string   `json:"name"`
	Title           string   `json:"title"`
	Company         string   `json:"company"`
	Email           string   `json:"email"`
	Phone           string   `json:"phone"`
	Location        string   `json:"location"`
	ConfidenceScore float64  `json:"confidenceScore"`
	Tags            []string `json:"tags"`
}

func (g *Generative) Fetch(ctx context.Context, params lead.GenerationParameters) ([]lead.Lead, error) {
	model := g.modelFor(params.Depth)
	prompt := buildBrief(params, batchSize(params.Depth))

	g.logger.Info("generating leads",
		"model", model,
		"depth", string(params.Depth),
		"platform", params.Platform,
	)

	raw, err := g.llm.GenerateJSON(ctx, model, prompt, leadListSchema(), 0.7)
	if err != nil {
		return nil, fmt.Errorf("llm generation: %w", err)
	}

	var rawLeads []rawLead
	if err := json.Unmarshal([]byte(raw), &rawLeads); err != nil {
		g.logger.Error("failed to parse generation response", "error", err, "raw", raw)
		return nil, fmt.Errorf("parse generation: %w", err)
	}

	leads := make([]lead.Lead, 0, len(rawLeads))
	for _, r := range rawLeads {
		l, ok := g.normalize(r, params)
		if !ok {
			continue
		}
		leads = append(leads, l)
	}

	g.logger.Info("generation complete", "model", model, "leads", len(leads), "raw", len(rawLeads))
	return leads, nil
}

// normalize maps one model record to a canonical lead. Records missing
// any of the required identity fields are dropped. Contact fields obey
// the include flags: an unrequested field is stripped even if the model
// produced one, and a requested-but-missing field becomes the explicit
// "not available" sentinel rather than a fabricated value.
func (g *Generative) normalize(r rawLead, params lead.GenerationParameters) (lead.Lead, bool) {
	name := strings.TrimSpace(r.Name)
	title := strings.TrimSpace(r.Title)
	company := strings.TrimSpace(r.Company)
	if name == "" || title == "" || company == "" {
		return lead.Lead{}, false
	}

	l := lead.Lead{
		ID:              "lead_" + uuid.NewString(),
		Name:            name,
		Title:           title,
		Company:         company,
		Location:        lead.StrPtr(strings.TrimSpace(r.Location)),
		ConfidenceScore: lead.ClampScore(r.ConfidenceScore),
		Tags:            r.Tags,
		Source:          params.Platform,
		Status:          lead.StatusNew,
		CreatedAt:       time.Now().UTC(),
	}

	if params.IncludeEmail {
		if email := strings.TrimSpace(r.Email); email != "" {
			l.Email = &email
		} else {
			l.Email = lead.StrPtr(lead.NotAvailable)
		}
	}
	if params.IncludePhone {
		if phone := strings.TrimSpace(r.Phone); phone != "" {
			l.Phone = &phone
		} else {
			l.Phone = lead.StrPtr(lead.NotAvailable)
		}
	}

	return l, true
}

func leadListSchema() gemini.Schema {
	leadSchema := gemini.Schema{
		Type: "object",
		Properties: map[string]gemini.Schema{
			"name":            {Type: "string"},
			"title":           {Type: "string"},
			"company":         {Type: "string"},
			"email":           {Type: "string"},
			"phone":           {Type: "string"},
			"location":        {Type: "string"},
			"confidenceScore": {Type: "number"},
			"tags":            {Type: "array", Items: &gemini.Schema{Type: "string"}},
		},
		Required: []string{"name", "title", "company", "location", "confidenceScore", "tags"},
	}
	return gemini.Schema{Type: "array", Items: &leadSchema}
}

func buildBrief(params lead.GenerationParameters, count int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are an elite B2B lead generation engine. Generate a list of %d realistic, high-quality leads.\n", count)
	fmt.Fprintf(&sb, "Target Role: %s\n", params.TargetRole)
	fmt.Fprintf(&sb, "Industry: %s\n", params.Industry)
	fmt.Fprintf(&sb, "Keywords: %s\n", params.Keywords)
	fmt.Fprintf(&sb, "Location: %s\n", params.Location)
	fmt.Fprintf(&sb, "Platform Source Context: %s\n", params.Platform)
	if params.IncludeEmail {
		sb.WriteString("Generate plausible business email addresses.\n")
	}
	if params.IncludePhone {
		sb.WriteString("Generate plausible business phone numbers.\n")
	}
	sb.WriteString("Ensure realistic varied data. Confidence score = match quality.")
	return sb.String()
}
