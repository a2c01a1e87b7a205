package reports

import (
	"errors"

	"github.com/foxzi/techsupport/internal/web/models"
)

var (
	ErrMissingTarget                = errors.New("Could not construct URL. Missing environment, action, or organization details.")
	ErrMissingAPIKey                = errors.New("API Key for the selected organization and environment not found.")
	ErrOrganizationNotInEnvironment = errors.New("organization does not belong to the selected environment")
)

// Directory resolves the records a report request refers to. It is
// satisfied by *provider.Provider.
type Directory interface {
	Environment(id string) (models.Environment, bool)
	Organization(id string) (models.Organization, bool)
	OrgPath(id string) (models.OrgPath, bool)
	APIKeyFor(orgID, envID string) (models.APIKey, bool)
	ActionFor(envID, key string) (models.APIAction, bool)
}

// Selection is what the user picked on a report page
type Selection struct {
	EnvironmentID   string `json:"environmentId"`
	OrganizationID  string `json:"organizationId"`
	OrgPathID       string `json:"orgPathId,omitempty"`
	AccessionNumber string `json:"accessionNumber"`
	Status          string `json:"status,omitempty"`
}

// Target is where a report request goes and with which credential
type Target struct {
	URL   string
	Token string
}

// ResolveTarget finds the endpoint for op in the selected environment and
// the API key of the selected organization there.
func ResolveTarget(dir Directory, op Operation, sel Selection) (Target, error) {
	env, ok := dir.Environment(sel.EnvironmentID)
	if !ok {
		return Target{}, ErrMissingTarget
	}
	org, ok := dir.Organization(sel.OrganizationID)
	if !ok {
		return Target{}, ErrMissingTarget
	}
	if org.EnvironmentID != env.ID {
		return Target{}, ErrOrganizationNotInEnvironment
	}
	action, ok := dir.ActionFor(env.ID, op.ActionKey())
	if !ok {
		return Target{}, ErrMissingTarget
	}

	key, ok := dir.APIKeyFor(org.ID, env.ID)
	if !ok {
		return Target{}, ErrMissingAPIKey
	}

	return Target{URL: env.URL + action.Value, Token: key.Key}, nil
}

// payloadInput resolves the selection into builder input. Unknown org path
// ids are ignored, as if none were selected.
func payloadInput(dir Directory, sel Selection) PayloadInput {
	in := PayloadInput{
		AccessionNumber: sel.AccessionNumber,
		Status:          sel.Status,
	}
	if org, ok := dir.Organization(sel.OrganizationID); ok {
		in.Organization = &org
	}
	if sel.OrgPathID != "" {
		if op, ok := dir.OrgPath(sel.OrgPathID); ok && in.Organization != nil && op.OrganizationID == in.Organization.ID {
			in.OrgPath = &op
		}
	}
	return in
}
