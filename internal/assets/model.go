package assets

import (
	"encoding/json"
	"time"
)

// Asset kinds. Financial documents are user uploads; generated kinds are
// pipeline artifacts.
const (
	KindFinancialDocument  = "financial_document"
	KindGeneratedTeaser    = "generated_teaser"
	KindGeneratedIM        = "generated_im"
	KindGeneratedPitchDeck = "generated_pitch_deck"
)

// GeneratedKindFor maps an output name to its artifact asset kind.
func GeneratedKindFor(output string) string {
	switch output {
	case "teaser":
		return KindGeneratedTeaser
	case "im":
		return KindGeneratedIM
	case "pitch_deck":
		return KindGeneratedPitchDeck
	}
	return ""
}

// Asset is a stored binary object tied to a company, and usually to a job.
type Asset struct {
	ID               string
	OrgID            string
	CompanyID        string
	JobID            string
	Kind             string
	FileName         string
	MimeType         string
	SizeBytes        int64
	StorageKey       string
	ExtractedTextKey *string
	ExtractedAt      *time.Time
	Metadata         json.RawMessage
	CreatedAt        time.Time
}
