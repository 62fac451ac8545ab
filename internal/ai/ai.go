package ai

import (
	"context"
	"encoding/json"
	"errors"
)

// Tasks the generation backend understands.
const (
	TaskCompanyProfile = "company_profile"
	TaskTeaser         = "teaser"
	TaskIM             = "im"
	TaskPitchDeck      = "pitch_deck"
)

// Generator abstracts the AI text-generation backend. Implementations are
// treated as unreliable: calls may fail or time out, and callers decide
// whether that is fatal.
type Generator interface {
	Generate(ctx context.Context, input GenerateInput) (json.RawMessage, error)
}

// GenerateInput captures the consolidated data handed to the backend.
type GenerateInput struct {
	Task            string
	CompanyName     string
	Industry        string
	Website         string
	RegistryFacts   map[string]any
	FieldConfidence map[string]string
	DocumentsText   string
	Answers         map[string]string
}

type fixJSONKey struct{}

// WithFixJSON returns a context signaling a fix-JSON retry with the given raw output.
func WithFixJSON(ctx context.Context, raw string) context.Context {
	return context.WithValue(ctx, fixJSONKey{}, raw)
}

// FixJSONFromContext returns the raw JSON to repair, if any.
func FixJSONFromContext(ctx context.Context) (string, bool) {
	val := ctx.Value(fixJSONKey{})
	raw, ok := val.(string)
	return raw, ok
}

// ErrNotImplemented is returned by the placeholder client.
var ErrNotImplemented = errors.New("AI generator not implemented")

// PlaceholderClient is a stub implementation until provider wiring is added.
type PlaceholderClient struct{}

// Generate returns ErrNotImplemented.
func (PlaceholderClient) Generate(ctx context.Context, input GenerateInput) (json.RawMessage, error) {
	_ = ctx
	_ = input
	return nil, ErrNotImplemented
}
