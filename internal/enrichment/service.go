package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dealroom-backend/internal/ai"
	"dealroom-backend/internal/companies"
	"dealroom-backend/internal/registry"
	"dealroom-backend/internal/shared/metrics"
	"dealroom-backend/internal/shared/telemetry"
)

// Service collects public data about a company into the enrichment cache.
// Upstream failures degrade the result with warnings instead of failing the
// collection; only cache storage errors are fatal.
type Service struct {
	Repo     Repo
	Registry registry.Lookup
	AI       ai.Generator
}

// Collect fetches registry facts and AI research for a company and appends
// whatever succeeded to the job's cache.
func (s *Service) Collect(ctx context.Context, jobID string, c companies.Company) (Result, error) {
	var res Result
	var confidenceSum int
	var collected []CacheEntry

	facts, ok, warning := s.lookupRegistry(ctx, c)
	if warning != "" {
		res.Warnings = append(res.Warnings, warning)
	}
	if ok {
		payload, err := json.Marshal(facts)
		if err != nil {
			return Result{}, fmt.Errorf("marshal registry facts: %w", err)
		}
		entry, err := s.append(ctx, jobID, c.ID, SourceRegistry, payload, ConfidenceRegistry)
		if err != nil {
			return Result{}, err
		}
		collected = append(collected, entry)
		res.Entries++
		confidenceSum += ConfidenceRegistry
		res.FinancialPeriods = len(facts.FinancialPeriods)
		if res.FinancialPeriods == 0 {
			res.Warnings = append(res.Warnings, "registry returned no financial periods")
		}
	}

	research, warning := s.aiResearch(ctx, c, facts, ok)
	if warning != "" {
		res.Warnings = append(res.Warnings, warning)
	}
	if research != nil {
		entry, err := s.append(ctx, jobID, c.ID, SourceAIResearch, research, ConfidenceAIResearch)
		if err != nil {
			return Result{}, err
		}
		collected = append(collected, entry)
		res.Entries++
		confidenceSum += ConfidenceAIResearch
	}

	res.FieldConfidence = FieldConfidence(c, collected)
	if res.Entries > 0 {
		res.ConfidenceScore = confidenceSum / res.Entries
		if res.ConfidenceScore < ReviewThreshold {
			res.Warnings = append(res.Warnings, "collected data confidence is below the review threshold; confirm key figures in the questionnaire")
		}
	} else {
		res.Warnings = append(res.Warnings, "no public data sources available; materials will rely on uploads and questionnaire")
	}
	telemetry.Info("enrichment.collected", map[string]any{
		"job_id":            jobID,
		"company_id":        c.ID,
		"entries":           res.Entries,
		"financial_periods": res.FinancialPeriods,
		"warnings":          len(res.Warnings),
	})
	return res, nil
}

func (s *Service) lookupRegistry(ctx context.Context, c companies.Company) (registry.CompanyFacts, bool, string) {
	if c.BusinessID == "" {
		return registry.CompanyFacts{}, false, "company has no business ID; registry lookup skipped"
	}
	metrics.IncRegistryLookups()
	facts, err := s.Registry.Lookup(ctx, c.BusinessID)
	if err != nil {
		metrics.IncRegistryLookupsFailed()
		if errors.Is(err, registry.ErrNotFound) {
			return registry.CompanyFacts{}, false, fmt.Sprintf("business ID %s not found in registry", c.BusinessID)
		}
		telemetry.Warn("enrichment.registry_lookup_failed", map[string]any{
			"company_id": c.ID, "business_id": c.BusinessID, "error": err.Error(),
		})
		return registry.CompanyFacts{}, false, "registry lookup failed; proceeding without registry data"
	}
	return facts, true, ""
}

func (s *Service) aiResearch(ctx context.Context, c companies.Company, facts registry.CompanyFacts, haveFacts bool) (json.RawMessage, string) {
	input := ai.GenerateInput{
		Task:        ai.TaskCompanyProfile,
		CompanyName: c.Name,
		Industry:    c.Industry,
		Website:     c.Website,
	}
	if haveFacts {
		input.RegistryFacts = factsAsMap(facts)
	}
	research, err := s.AI.Generate(ctx, input)
	if err != nil {
		telemetry.Warn("enrichment.ai_research_failed", map[string]any{
			"company_id": c.ID, "error": err.Error(),
		})
		return nil, "ai research unavailable; proceeding with registry data only"
	}
	return research, ""
}

func (s *Service) append(ctx context.Context, jobID, companyID, source string, payload json.RawMessage, confidence int) (CacheEntry, error) {
	entry := CacheEntry{
		ID:              uuid.NewString(),
		JobID:           jobID,
		CompanyID:       companyID,
		Source:          source,
		Payload:         payload,
		ConfidenceScore: confidence,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.Repo.Append(ctx, entry); err != nil {
		return CacheEntry{}, err
	}
	return entry, nil
}

func factsAsMap(facts registry.CompanyFacts) map[string]any {
	raw, err := json.Marshal(facts)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

// Profile fields every set of materials is expected to cover. Anything here
// that no source produced is classified low.
var profileFields = []string{"legalName", "industry", "financialPeriods", "description"}

// FieldConfidence grades each profile field by the best source that produced
// it: registry fields are verified, owner-declared company data high, AI
// research medium.
func FieldConfidence(c companies.Company, entries []CacheEntry) map[string]string {
	fc := make(map[string]string)
	if c.Name != "" {
		fc["legalName"] = FieldHigh
	}
	if c.Industry != "" {
		fc["industry"] = FieldHigh
	}
	if c.Website != "" {
		fc["website"] = FieldHigh
	}
	latest := LatestBySource(entries)
	if e, ok := latest[SourceAIResearch]; ok {
		for k := range presentFields(e.Payload) {
			if _, exists := fc[k]; !exists {
				fc[k] = FieldMedium
			}
		}
	}
	if e, ok := latest[SourceRegistry]; ok {
		for k := range presentFields(e.Payload) {
			fc[k] = FieldVerified
		}
	}
	for _, k := range profileFields {
		if _, ok := fc[k]; !ok {
			fc[k] = FieldLow
		}
	}
	return fc
}

// presentFields returns the top-level keys of a payload that carry a usable
// value: non-null, and not an empty string, array or object.
func presentFields(payload json.RawMessage) map[string]struct{} {
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil
	}
	fields := make(map[string]struct{}, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			if val == "" {
				continue
			}
		case []any:
			if len(val) == 0 {
				continue
			}
		case map[string]any:
			if len(val) == 0 {
				continue
			}
		case float64:
			if val == 0 {
				continue
			}
		}
		fields[k] = struct{}{}
	}
	return fields
}

// LatestBySource reduces a job's cache to the most recent entry per source.
func LatestBySource(entries []CacheEntry) map[string]CacheEntry {
	latest := make(map[string]CacheEntry)
	for _, e := range entries {
		if cur, ok := latest[e.Source]; !ok || e.CreatedAt.After(cur.CreatedAt) {
			latest[e.Source] = e
		}
	}
	return latest
}
