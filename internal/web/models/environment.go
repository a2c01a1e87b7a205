package models

import "time"

// Environment is a named external API base URL. Organizations, API keys and
// API actions hang off it.
type Environment struct {
	ID        string    `json:"id"`
	Name      string    `json:"name" validate:"required"`
	URL       string    `json:"url" validate:"required,url"`
	CreatedAt time.Time `json:"createdAt"`
}
