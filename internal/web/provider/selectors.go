package provider

import "github.com/foxzi/techsupport/internal/web/models"

// Selectors return copies, so callers may keep or modify the result.

func (p *Provider) Environments() []models.Environment {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]models.Environment(nil), p.environments...)
}

func (p *Provider) Organizations() []models.Organization {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]models.Organization(nil), p.organizations...)
}

func (p *Provider) APIKeys() []models.APIKey {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]models.APIKey(nil), p.apiKeys...)
}

func (p *Provider) OrgPaths() []models.OrgPath {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]models.OrgPath(nil), p.orgPaths...)
}

func (p *Provider) APIActions() []models.APIAction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]models.APIAction(nil), p.apiActions...)
}

// Users returns all users including their password hashes
func (p *Provider) Users() []models.User {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]models.User(nil), p.users...)
}

// OrganizationsByEnvironment returns the organizations of one environment
func (p *Provider) OrganizationsByEnvironment(envID string) []models.Organization {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []models.Organization
	for _, o := range p.organizations {
		if o.EnvironmentID == envID {
			out = append(out, o)
		}
	}
	return out
}

// OrgPathsByOrganization returns the org paths of one organization
func (p *Provider) OrgPathsByOrganization(orgID string) []models.OrgPath {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []models.OrgPath
	for _, op := range p.orgPaths {
		if op.OrganizationID == orgID {
			out = append(out, op)
		}
	}
	return out
}

func (p *Provider) Environment(id string) (models.Environment, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, e := range p.environments {
		if e.ID == id {
			return e, true
		}
	}
	return models.Environment{}, false
}

func (p *Provider) Organization(id string) (models.Organization, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, o := range p.organizations {
		if o.ID == id {
			return o, true
		}
	}
	return models.Organization{}, false
}

func (p *Provider) OrgPath(id string) (models.OrgPath, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, op := range p.orgPaths {
		if op.ID == id {
			return op, true
		}
	}
	return models.OrgPath{}, false
}

// APIKeyFor returns the first key registered for the organization within
// the environment
func (p *Provider) APIKeyFor(orgID, envID string) (models.APIKey, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, k := range p.apiKeys {
		if k.OrganizationID == orgID && k.EnvironmentID == envID {
			return k, true
		}
	}
	return models.APIKey{}, false
}

// ActionFor returns the action with the given key within the environment
func (p *Provider) ActionFor(envID, key string) (models.APIAction, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, a := range p.apiActions {
		if a.EnvironmentID == envID && a.Key == key {
			return a, true
		}
	}
	return models.APIAction{}, false
}

// UserByEmail returns the user whose email matches exactly
func (p *Provider) UserByEmail(email string) (models.User, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, u := range p.users {
		if u.Email == email {
			return u, true
		}
	}
	return models.User{}, false
}

// EnvironmentName resolves an environment id to its display name
func (p *Provider) EnvironmentName(id string) (string, bool) {
	e, ok := p.Environment(id)
	return e.Name, ok
}

// OrganizationName resolves an organization id to its display name
func (p *Provider) OrganizationName(id string) (string, bool) {
	o, ok := p.Organization(id)
	return o.Name, ok
}
