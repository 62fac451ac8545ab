package openai

import (
	"encoding/json"
	"fmt"
	"strings"

	"dealroom-backend/internal/ai"
)

// Message is one chat message handed to the completions API.
type Message struct {
	Role    string
	Content string
}

const profileSystemPrompt = `You are a business analyst. Given a company name and any known facts,
infer a structured company profile. Respond with a single JSON object:
{"description": string, "industry": string, "employee_range": string,
"business_model": string, "key_products": [string], "competitors": [string]}.
Only include facts you can reasonably infer; use null for unknown fields.
Respond with JSON only.`

const teaserSystemPrompt = `You are an M&A advisor writing an anonymous sale teaser.
Using the provided company data, financial document extracts and owner answers,
produce a single JSON object:
{"headline": string, "business_overview": string, "investment_highlights": [string],
"financial_summary": string, "transaction_rationale": string}.
Never reveal the company name or identifying details. Respond with JSON only.`

const imSystemPrompt = `You are an M&A advisor writing an information memorandum.
Using the provided company data, financial document extracts and owner answers,
produce a single JSON object with sections:
{"executive_summary": string, "company_history": string, "products_and_services": string,
"market_and_competition": string, "organisation": string, "financials": string,
"growth_opportunities": [string], "transaction_overview": string}.
Be factual; do not invent figures absent from the inputs. Respond with JSON only.`

const pitchDeckSystemPrompt = `You are an M&A advisor outlining an investor pitch deck.
Using the provided company data, financial document extracts and owner answers,
produce a single JSON object:
{"slides": [{"title": string, "bullets": [string], "speaker_notes": string}]}.
Target 10-14 slides. Respond with JSON only.`

// BuildPrompt assembles the chat messages for a generation task.
func BuildPrompt(input ai.GenerateInput) []Message {
	system := profileSystemPrompt
	switch input.Task {
	case ai.TaskTeaser:
		system = teaserSystemPrompt
	case ai.TaskIM:
		system = imSystemPrompt
	case ai.TaskPitchDeck:
		system = pitchDeckSystemPrompt
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Company: %s\n", input.CompanyName)
	if input.Industry != "" {
		fmt.Fprintf(&b, "Industry: %s\n", input.Industry)
	}
	if input.Website != "" {
		fmt.Fprintf(&b, "Website: %s\n", input.Website)
	}
	if len(input.RegistryFacts) > 0 {
		if facts, err := json.Marshal(input.RegistryFacts); err == nil {
			fmt.Fprintf(&b, "\nRegistry facts:\n%s\n", facts)
		}
	}
	if len(input.FieldConfidence) > 0 {
		if grades, err := json.Marshal(input.FieldConfidence); err == nil {
			fmt.Fprintf(&b, "\nData reliability per field (verified > high > medium > low):\n%s\n", grades)
		}
	}
	if len(input.Answers) > 0 {
		b.WriteString("\nOwner questionnaire answers:\n")
		for q, a := range input.Answers {
			fmt.Fprintf(&b, "- %s: %s\n", q, a)
		}
	}
	if input.DocumentsText != "" {
		fmt.Fprintf(&b, "\nFinancial document extracts:\n%s\n", truncate(input.DocumentsText, maxDocumentChars))
	}

	return []Message{
		{Role: "system", Content: system},
		{Role: "user", Content: b.String()},
	}
}

func buildFixPrompt(raw []byte) []Message {
	return []Message{
		{Role: "system", Content: "The previous response was not valid JSON. Return the same content as a single valid JSON object, nothing else."},
		{Role: "user", Content: string(raw)},
	}
}

const maxDocumentChars = 60000

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
