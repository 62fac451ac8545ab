package companies

import "time"

// Company is a seller company record owned by an organization.
type Company struct {
	ID         string
	OrgID      string
	Name       string
	BusinessID string
	Industry   string
	Website    string
	CreatedAt  time.Time
}
