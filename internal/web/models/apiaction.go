package models

import "time"

// Well-known API action keys
const (
	ActionFind              = "FIND"
	ActionUpdate            = "UPDATE"
	ActionCancel            = "CANCEL"
	ActionTransferOwnership = "transfer ownership"
)

// APIAction maps a logical operation name to an endpoint suffix within an environment
type APIAction struct {
	ID            string    `json:"id"`
	Key           string    `json:"key" validate:"required"`
	Value         string    `json:"value" validate:"required"`
	EnvironmentID string    `json:"environmentId" validate:"required"`
	CreatedAt     time.Time `json:"createdAt"`
}
