package scoring

import (
	"strings"

	"github.com/mosaic-crm/prospector/internal/lead"
)

// ProxyBaseline is the fixed confidence score for scraped leads. Proxy
// data has not been schema-validated upstream, so it never keeps a
// self-reported score.
const ProxyBaseline = 60

// Family distinguishes how a provider's confidence is treated.
type Family int

const (
	// FamilyGenerative leads keep the model's self-reported score.
	FamilyGenerative Family = iota
	// FamilyProxy leads get the fixed baseline.
	FamilyProxy
)

// Provenance identifies the adapter a batch of leads came from.
type Provenance struct {
	Provider string
	Family   Family
	// Model is the generative model variant, tagged onto generative leads.
	Model string
}

// Finalize assigns the definitive confidence score and provenance tags to
// each lead in place and returns the slice. It is deterministic and
// per-lead — no cross-lead comparison — so each adapter's batch can be
// finalized independently.
func Finalize(leads []lead.Lead, prov Provenance) []lead.Lead {
	for i := range leads {
		switch prov.Family {
		case FamilyProxy:
			leads[i].ConfidenceScore = ProxyBaseline
		default:
			leads[i].ConfidenceScore = lead.ClampScore(leads[i].ConfidenceScore)
		}

		leads[i].Tags = addTag(leads[i].Tags, prov.Provider)
		if prov.Family == FamilyGenerative && prov.Model != "" {
			leads[i].Tags = addTag(leads[i].Tags, prov.Model)
		}
		if leads[i].Source != "" {
			leads[i].Tags = addTag(leads[i].Tags, strings.ToLower(leads[i].Source))
		}
	}
	return leads
}

func addTag(tags []string, tag string) []string {
	if tag == "" {
		return tags
	}
	for _, t := range tags {
		if t == tag {
			return tags
		}
	}
	return append(tags, tag)
}
