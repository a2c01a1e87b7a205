package models

import (
	"strings"
	"time"
)

// OrgPath is a comma-separated routing string attached to an organization
type OrgPath struct {
	ID             string    `json:"id"`
	Path           string    `json:"path" validate:"required"`
	OrganizationID string    `json:"organizationId" validate:"required"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Segments splits the path on commas. Segments are not trimmed.
func (p OrgPath) Segments() []string {
	return strings.Split(p.Path, ",")
}
