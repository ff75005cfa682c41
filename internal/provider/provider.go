// Package provider contains the source adapters that translate external
// data-source payloads into canonical leads. Each adapter normalizes its
// own payload shape; final confidence scores and provenance tags are
// applied by the scoring package.
package provider

import (
	"context"
	"time"

	"github.com/mosaic-crm/prospector/internal/lead"
	"github.com/mosaic-crm/prospector/internal/scoring"
)

// Provider is one external lead source. Fetch returns zero or more
// normalized leads; records the source cannot fully identify (missing
// name, title or company) must be dropped, not emitted.
type Provider interface {
	ID() string
	// Supports reports whether this provider should run for the given
	// parameters. Unsupported providers are skipped, not failed.
	Supports(params lead.GenerationParameters) bool
	Fetch(ctx context.Context, params lead.GenerationParameters) ([]lead.Lead, error)
	// Provenance describes how scoring treats this provider's output for
	// the given parameters.
	Provenance(params lead.GenerationParameters) scoring.Provenance
	// Timeout bounds one Fetch call.
	Timeout() time.Duration
}

// Active filters the registry down to the providers that support params,
// preserving registration order.
func Active(registry []Provider, params lead.GenerationParameters) []Provider {
	var active []Provider
	for _, p := range registry {
		if p.Supports(params) {
			active = append(active, p)
		}
	}
	return active
}
