package models

import "time"

// MaxStudyIdentifiers is the number of identifier pairs an organization may carry
const MaxStudyIdentifiers = 4

// StudyIdentifier maps a display label to the payload field it produces
type StudyIdentifier struct {
	Key   string `json:"key" validate:"required"`
	Value string `json:"value" validate:"required"`
}

// Organization is a tenant within an environment
type Organization struct {
	ID               string            `json:"id"`
	Name             string            `json:"name" validate:"required"`
	EnvironmentID    string            `json:"environmentId" validate:"required"`
	StudyIdentifiers []StudyIdentifier `json:"studyIdentifiers" validate:"max=4,dive"`
	CreatedAt        time.Time         `json:"createdAt"`
}
