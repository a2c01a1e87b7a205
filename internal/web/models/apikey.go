package models

import "time"

// APIKey is the bearer credential an organization uses against its environment
type APIKey struct {
	ID             string    `json:"id"`
	Key            string    `json:"key" validate:"required"`
	OrganizationID string    `json:"organizationId" validate:"required"`
	EnvironmentID  string    `json:"environmentId" validate:"required"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Masked returns the key with everything but the last 4 characters hidden
func (k APIKey) Masked() string {
	if len(k.Key) <= 4 {
		return k.Key
	}
	masked := make([]byte, len(k.Key)-4)
	for i := range masked {
		masked[i] = '*'
	}
	return string(masked) + k.Key[len(k.Key)-4:]
}
