package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mosaic-crm/prospector/internal/lead"
	"github.com/mosaic-crm/prospector/internal/scoring"
)

const defaultBrightDataURL = "https://api.brightdata.com"

// Mode selects which BrightData surface a fetch goes through. The mode is
// an explicit discriminator decided before the call, and each mode has
// its own typed payload mapping.
type Mode int

const (
	// ModeCollector encodes the query parameters onto a pre-configured
	// collector endpoint and proxies the request through /request.
	ModeCollector Mode = iota
	// ModeDataset scrapes an explicit list of profile URLs through the
	// dataset batch API.
	ModeDataset
)

// BrightDataConfig configures the scraping-proxy adapter.
type BrightDataConfig struct {
	Token        string
	Zone         string
	CollectorURL string
	DatasetID    string
	Timeout      time.Duration
}

// BrightData forwards normalized query parameters to an external scraping
// proxy and maps its item records into canonical leads. Proxy data is
// unverified, so every lead it emits gets the fixed baseline score.
type BrightData struct {
	cfg     BrightDataConfig
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func NewBrightData(cfg BrightDataConfig, logger *slog.Logger) *BrightData {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &BrightData{
		cfg:     cfg,
		baseURL: defaultBrightDataURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// SetBaseURL points the adapter at a test server.
func (b *BrightData) SetBaseURL(url string) {
	b.baseURL = url
}

func (b *BrightData) ID() string { return "brightdata" }

func (b *BrightData) Timeout() time.Duration { return b.cfg.Timeout }

func (b *BrightData) Provenance(_ lead.GenerationParameters) scoring.Provenance {
	return scoring.Provenance{Provider: b.ID(), Family: scoring.FamilyProxy}
}

// mode picks the surface for the given parameters.
func (b *BrightData) mode(params lead.GenerationParameters) (Mode, bool) {
	if b.cfg.Token == "" {
		return 0, false
	}
	if b.cfg.DatasetID != "" && len(params.ProfileURLs) > 0 {
		return ModeDataset, true
	}
	if b.cfg.CollectorURL != "" {
		return ModeCollector, true
	}
	return 0, false
}

func (b *BrightData) Supports(params lead.GenerationParameters) bool {
	_, ok := b.mode(params)
	return ok
}

func (b *BrightData) Fetch(ctx context.Context, params lead.GenerationParameters) ([]lead.Lead, error) {
	mode, ok := b.mode(params)
	if !ok {
		return nil, fmt.Errorf("brightdata not configured for these parameters")
	}
	switch mode {
	case ModeDataset:
		return b.fetchDataset(ctx, params)
	default:
		return b.fetchCollector(ctx, params)
	}
}

// --- dataset mode ---

// datasetItem is one record of a dataset scrape response. Upstream item
// shapes vary by dataset, so identity fields fall back through the
// aliases observed in practice: name or first+last, position or title,
// flat or nested company.
type datasetItem struct {
	Name           string `json:"name"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Position       string `json:"position"`
	Title          string `json:"title"`
	Company        string `json:"company"`
	CurrentCompany struct {
		Name string `json:"name"`
	} `json:"current_company"`
	CurrentCompanyName string `json:"current_company_name"`
	Email              string `json:"email"`
	Phone              string `json:"phone"`
	Location           string `json:"location"`
	City               string `json:"city"`
	URL                string `json:"url"`
	InputURL           string `json:"input_url"`
}

func (it datasetItem) name() string {
	if it.Name != "" {
		return it.Name
	}
	if it.FirstName != "" && it.LastName != "" {
		return it.FirstName + " " + it.LastName
	}
	return ""
}

func (it datasetItem) title() string {
	if it.Position != "" {
		return it.Position
	}
	return it.Title
}

func (it datasetItem) company() string {
	if it.CurrentCompanyName != "" {
		return it.CurrentCompanyName
	}
	if it.CurrentCompany.Name != "" {
		return it.CurrentCompany.Name
	}
	return it.Company
}

func (it datasetItem) location() string {
	if it.Location != "" {
		return it.Location
	}
	return it.City
}

func (it datasetItem) sourceURL() string {
	if it.URL != "" {
		return it.URL
	}
	return it.InputURL
}

// datasetResponse covers the two envelope shapes the dataset API returns:
// a bare array, or an object carrying a results/items array.
type datasetEnvelope struct {
	Results []datasetItem `json:"results"`
	Items   []datasetItem `json:"items"`
}

func decodeDatasetItems(body []byte) []datasetItem {
	var items []datasetItem
	if err := json.Unmarshal(body, &items); err == nil {
		return items
	}
	var env datasetEnvelope
	if err := json.Unmarshal(body, &env); err == nil {
		if len(env.Results) > 0 {
			return env.Results
		}
		return env.Items
	}
	return nil
}

func (b *BrightData) fetchDataset(ctx context.Context, params lead.GenerationParameters) ([]lead.Lead, error) {
	input := make([]map[string]string, len(params.ProfileURLs))
	for i, u := range params.ProfileURLs {
		input[i] = map[string]string{"url": u}
	}
	payload, err := json.Marshal(map[string]any{"input": input})
	if err != nil {
		return nil, fmt.Errorf("marshal dataset request: %w", err)
	}

	reqURL := fmt.Sprintf("%s/datasets/v3/scrape?dataset_id=%s&notify=false&include_errors=true",
		b.baseURL, url.QueryEscape(b.cfg.DatasetID))

	body, err := b.post(ctx, reqURL, payload)
	if err != nil {
		return nil, fmt.Errorf("dataset scrape: %w", err)
	}

	items := decodeDatasetItems(body)
	b.logger.Info("dataset scrape returned", "items", len(items), "urls", len(params.ProfileURLs))

	leads := make([]lead.Lead, 0, len(items))
	for _, it := range items {
		l, ok := b.normalizeDataset(it, params)
		if !ok {
			continue
		}
		leads = append(leads, l)
	}
	return leads, nil
}

func (b *BrightData) normalizeDataset(it datasetItem, params lead.GenerationParameters) (lead.Lead, bool) {
	name := strings.TrimSpace(it.name())
	title := strings.TrimSpace(it.title())
	if title == "" {
		title = params.TargetRole
	}
	company := strings.TrimSpace(it.company())
	if name == "" || title == "" || company == "" {
		return lead.Lead{}, false
	}

	l := lead.Lead{
		ID:              "lead_" + uuid.NewString(),
		Name:            name,
		Title:           title,
		Company:         company,
		Location:        lead.StrPtr(strings.TrimSpace(it.location())),
		SourceURL:       it.sourceURL(),
		ConfidenceScore: scoring.ProxyBaseline,
		Source:          params.Platform,
		Status:          lead.StatusNew,
		CreatedAt:       time.Now().UTC(),
	}
	if params.IncludeEmail {
		l.Email = lead.StrPtr(strings.TrimSpace(it.Email))
	}
	if params.IncludePhone {
		l.Phone = lead.StrPtr(strings.TrimSpace(it.Phone))
	}
	return l, true
}

// --- collector mode ---

// collectorLead is one record of a collector response. Collectors are
// configured to emit lead-shaped objects directly.
type collectorLead struct {
	Name     string `json:"name"`
	Title    string `json:"title"`
	Company  string `json:"company"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Location string `json:"location"`
	URL      string `json:"url"`
}

// collectorEnvelope is the object form of a collector response.
type collectorEnvelope struct {
	Leads []collectorLead `json:"leads"`
}

func decodeCollectorLeads(body []byte) []collectorLead {
	var items []collectorLead
	if err := json.Unmarshal(body, &items); err == nil {
		return items
	}
	var env collectorEnvelope
	if err := json.Unmarshal(body, &env); err == nil {
		return env.Leads
	}
	return nil
}

func (b *BrightData) fetchCollector(ctx context.Context, params lead.GenerationParameters) ([]lead.Lead, error) {
	qs := url.Values{}
	qs.Set("keywords", params.Keywords)
	qs.Set("role", params.TargetRole)
	qs.Set("industry", params.Industry)
	qs.Set("location", params.Location)
	qs.Set("depth", string(params.Depth))
	qs.Set("includeEmail", strconv.FormatBool(params.IncludeEmail))
	qs.Set("includePhone", strconv.FormatBool(params.IncludePhone))
	qs.Set("platform", params.Platform)

	target := b.cfg.CollectorURL
	if strings.Contains(target, "?") {
		target += "&" + qs.Encode()
	} else {
		target += "?" + qs.Encode()
	}

	payload, err := json.Marshal(map[string]string{
		"zone":   b.cfg.Zone,
		"url":    target,
		"format": "json",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal collector request: %w", err)
	}

	body, err := b.post(ctx, b.baseURL+"/request", payload)
	if err != nil {
		return nil, fmt.Errorf("collector request: %w", err)
	}

	items := decodeCollectorLeads(body)
	b.logger.Info("collector returned", "items", len(items))

	leads := make([]lead.Lead, 0, len(items))
	for _, it := range items {
		l, ok := b.normalizeCollector(it, params)
		if !ok {
			continue
		}
		leads = append(leads, l)
	}
	return leads, nil
}

func (b *BrightData) normalizeCollector(it collectorLead, params lead.GenerationParameters) (lead.Lead, bool) {
	name := strings.TrimSpace(it.Name)
	title := strings.TrimSpace(it.Title)
	if title == "" {
		title = params.TargetRole
	}
	company := strings.TrimSpace(it.Company)
	if name == "" || title == "" || company == "" {
		return lead.Lead{}, false
	}

	l := lead.Lead{
		ID:              "lead_" + uuid.NewString(),
		Name:            name,
		Title:           title,
		Company:         company,
		Location:        lead.StrPtr(strings.TrimSpace(it.Location)),
		SourceURL:       it.URL,
		ConfidenceScore: scoring.ProxyBaseline,
		Source:          params.Platform,
		Status:          lead.StatusNew,
		CreatedAt:       time.Now().UTC(),
	}
	if params.IncludeEmail {
		l.Email = lead.StrPtr(strings.TrimSpace(it.Email))
	}
	if params.IncludePhone {
		l.Phone = lead.StrPtr(strings.TrimSpace(it.Phone))
	}
	return l, true
}

func (b *BrightData) post(ctx context.Context, url string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+b.cfg.Token)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("api error %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
