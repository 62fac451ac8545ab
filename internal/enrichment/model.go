package enrichment

import (
	"encoding/json"
	"time"
)

// Data sources feeding the enrichment cache.
const (
	SourceRegistry   = "business_registry"
	SourceAIResearch = "ai_research"
)

// Confidence scores per source. Registry data is authoritative; AI research
// is plausible but unverified.
const (
	ConfidenceRegistry   = 95
	ConfidenceAIResearch = 60
)

// Per-field confidence classes. Verified is reserved for registry-corroborated
// fields; owner-declared hints rank high, AI inference medium, and expected
// fields nothing produced are low.
const (
	FieldVerified = "verified"
	FieldHigh     = "high"
	FieldMedium   = "medium"
	FieldLow      = "low"
)

// ReviewThreshold is the overall confidence below which collected data should
// be confirmed by the owner before the materials lean on it.
const ReviewThreshold = 70

// CacheEntry is one immutable snapshot of data fetched for a job. The cache
// is append-only: re-collection adds entries, never rewrites them, so the
// trail of what was known when survives.
type CacheEntry struct {
	ID              string
	JobID           string
	CompanyID       string
	Source          string
	Payload         json.RawMessage
	ConfidenceScore int
	CreatedAt       time.Time
}

// Result summarizes one collection run.
type Result struct {
	Entries          int
	FinancialPeriods int
	ConfidenceScore  int
	FieldConfidence  map[string]string
	Warnings         []string
}
