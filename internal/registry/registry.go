package registry

import (
	"context"
	"errors"
)

// ErrNotFound indicates the registry has no record for the business ID.
var ErrNotFound = errors.New("company not found in registry")

// FinancialPeriod is one reported fiscal period.
type FinancialPeriod struct {
	Year             int     `json:"year"`
	Revenue          float64 `json:"revenue"`
	OperatingProfit  float64 `json:"operatingProfit"`
	Equity           float64 `json:"equity"`
	EmployeeCount    int     `json:"employeeCount"`
	BalanceSheetSize float64 `json:"balanceSheetSize"`
}

// CompanyFacts is the authoritative record returned by a registry lookup.
type CompanyFacts struct {
	BusinessID       string            `json:"businessId"`
	LegalName        string            `json:"legalName"`
	CompanyForm      string            `json:"companyForm"`
	Industry         string            `json:"industry"`
	IndustryCode     string            `json:"industryCode"`
	RegisteredOffice string            `json:"registeredOffice"`
	FoundedYear      int               `json:"foundedYear"`
	Status           string            `json:"status"`
	FinancialPeriods []FinancialPeriod `json:"financialPeriods"`
}

// Lookup fetches authoritative company facts from a public business registry.
// Implementations are treated as unreliable external collaborators.
type Lookup interface {
	Lookup(ctx context.Context, businessID string) (CompanyFacts, error)
}
