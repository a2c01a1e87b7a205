package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/foxzi/techsupport/internal/web/models"
	"github.com/foxzi/techsupport/internal/web/store"
)

// Commands validate nothing: input checks happen at the HTTP boundary.
// Every command fails with ErrDatabaseUnavailable until the provider is
// connected and otherwise returns the store error unchanged.

func (p *Provider) AddEnvironment(ctx context.Context, e models.Environment) (string, error) {
	e.ID, e.CreatedAt = "", time.Now().UTC()
	return p.insert(ctx, store.CollectionEnvironments, e)
}

func (p *Provider) AddOrganization(ctx context.Context, o models.Organization) (string, error) {
	o.ID, o.CreatedAt = "", time.Now().UTC()
	if o.StudyIdentifiers == nil {
		o.StudyIdentifiers = []models.StudyIdentifier{}
	}
	return p.insert(ctx, store.CollectionOrganizations, o)
}

func (p *Provider) AddAPIKey(ctx context.Context, k models.APIKey) (string, error) {
	k.ID, k.CreatedAt = "", time.Now().UTC()
	return p.insert(ctx, store.CollectionAPIKeys, k)
}

func (p *Provider) AddOrgPath(ctx context.Context, op models.OrgPath) (string, error) {
	op.ID, op.CreatedAt = "", time.Now().UTC()
	return p.insert(ctx, store.CollectionOrgPaths, op)
}

func (p *Provider) AddAPIAction(ctx context.Context, a models.APIAction) (string, error) {
	a.ID, a.CreatedAt = "", time.Now().UTC()
	return p.insert(ctx, store.CollectionAPIActions, a)
}

// AddUser stores the user with its password replaced by a bcrypt hash
func (p *Provider) AddUser(ctx context.Context, u models.User) (string, error) {
	u.ID, u.CreatedAt = "", time.Now().UTC()
	if u.Password != "" {
		hash, err := p.hashPassword(u.Password)
		if err != nil {
			return "", err
		}
		u.PasswordHash = hash
		u.Password = ""
	}
	return p.insert(ctx, store.CollectionUsers, u)
}

func (p *Provider) UpdateEnvironment(ctx context.Context, e models.Environment) error {
	return p.update(ctx, store.CollectionEnvironments, e.ID, e, nil)
}

func (p *Provider) UpdateOrganization(ctx context.Context, o models.Organization) error {
	if o.StudyIdentifiers == nil {
		o.StudyIdentifiers = []models.StudyIdentifier{}
	}
	return p.update(ctx, store.CollectionOrganizations, o.ID, o, nil)
}

func (p *Provider) UpdateAPIKey(ctx context.Context, k models.APIKey) error {
	return p.update(ctx, store.CollectionAPIKeys, k.ID, k, nil)
}

func (p *Provider) UpdateOrgPath(ctx context.Context, op models.OrgPath) error {
	return p.update(ctx, store.CollectionOrgPaths, op.ID, op, nil)
}

func (p *Provider) UpdateAPIAction(ctx context.Context, a models.APIAction) error {
	return p.update(ctx, store.CollectionAPIActions, a.ID, a, nil)
}

// UpdateUser rewrites name and email. The stored hash is only replaced
// when a new password is given.
func (p *Provider) UpdateUser(ctx context.Context, u models.User) error {
	password := u.Password
	u.Password, u.PasswordHash = "", ""

	return p.update(ctx, store.CollectionUsers, u.ID, u, func(fields map[string]any) error {
		delete(fields, "password")
		delete(fields, "passwordHash")
		if password == "" {
			return nil
		}
		hash, err := p.hashPassword(password)
		if err != nil {
			return err
		}
		fields["passwordHash"] = hash
		return nil
	})
}

// DeleteEnvironment removes the environment with its organizations, their
// api keys and org paths, and the environment's api actions in a single
// atomic batch. It returns the number of documents removed, or
// store.ErrNotFound when the environment does not exist.
func (p *Provider) DeleteEnvironment(ctx context.Context, id string) (int, error) {
	st, err := p.connectedStore()
	if err != nil {
		return 0, err
	}
	if err := mustExist(ctx, st, store.CollectionEnvironments, id); err != nil {
		return 0, err
	}

	ops, err := planEnvironmentDelete(ctx, st, id)
	if err != nil {
		return 0, err
	}
	if err := st.Batch(ctx, ops); err != nil {
		return 0, err
	}
	return len(ops), nil
}

// DeleteOrganization removes the organization with its api keys and org
// paths in a single atomic batch
func (p *Provider) DeleteOrganization(ctx context.Context, id string) (int, error) {
	st, err := p.connectedStore()
	if err != nil {
		return 0, err
	}
	if err := mustExist(ctx, st, store.CollectionOrganizations, id); err != nil {
		return 0, err
	}

	ops, err := planOrganizationDelete(ctx, st, id)
	if err != nil {
		return 0, err
	}
	if err := st.Batch(ctx, ops); err != nil {
		return 0, err
	}
	return len(ops), nil
}

func (p *Provider) DeleteAPIKey(ctx context.Context, id string) error {
	return p.remove(ctx, store.CollectionAPIKeys, id)
}

func (p *Provider) DeleteOrgPath(ctx context.Context, id string) error {
	return p.remove(ctx, store.CollectionOrgPaths, id)
}

func (p *Provider) DeleteAPIAction(ctx context.Context, id string) error {
	return p.remove(ctx, store.CollectionAPIActions, id)
}

func (p *Provider) DeleteUser(ctx context.Context, id string) error {
	return p.remove(ctx, store.CollectionUsers, id)
}

func mustExist(ctx context.Context, st DocumentStore, collection, id string) error {
	if _, err := st.Get(ctx, collection, id); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// planEnvironmentDelete reads every dependent document first. The batch is
// only built once all reads succeeded.
func planEnvironmentDelete(ctx context.Context, st DocumentStore, id string) ([]store.Op, error) {
	ops := []store.Op{store.Delete(store.CollectionEnvironments, id)}

	orgs, err := st.FindBy(ctx, store.CollectionOrganizations, "environmentId", id)
	if err != nil {
		return nil, fmt.Errorf("failed to find organizations of %s: %w", id, err)
	}
	for _, org := range orgs {
		orgOps, err := planOrganizationDelete(ctx, st, org.ID)
		if err != nil {
			return nil, err
		}
		ops = append(ops, orgOps...)
	}

	actions, err := st.FindBy(ctx, store.CollectionAPIActions, "environmentId", id)
	if err != nil {
		return nil, fmt.Errorf("failed to find api actions of %s: %w", id, err)
	}
	for _, a := range actions {
		ops = append(ops, store.Delete(store.CollectionAPIActions, a.ID))
	}

	return ops, nil
}

func planOrganizationDelete(ctx context.Context, st DocumentStore, id string) ([]store.Op, error) {
	ops := []store.Op{store.Delete(store.CollectionOrganizations, id)}

	for _, coll := range []string{store.CollectionAPIKeys, store.CollectionOrgPaths} {
		docs, err := st.FindBy(ctx, coll, "organizationId", id)
		if err != nil {
			return nil, fmt.Errorf("failed to find %s of %s: %w", coll, id, err)
		}
		for _, doc := range docs {
			ops = append(ops, store.Delete(coll, doc.ID))
		}
	}

	return ops, nil
}

func (p *Provider) insert(ctx context.Context, collection string, record any) (string, error) {
	st, err := p.connectedStore()
	if err != nil {
		return "", err
	}
	return st.Insert(ctx, collection, record)
}

func (p *Provider) update(ctx context.Context, collection, id string, record any, adjust func(map[string]any) error) error {
	st, err := p.connectedStore()
	if err != nil {
		return err
	}

	fields, err := toFields(record)
	if err != nil {
		return err
	}
	delete(fields, "id")
	delete(fields, "createdAt")

	if adjust != nil {
		if err := adjust(fields); err != nil {
			return err
		}
	}
	return st.Update(ctx, collection, id, fields)
}

func (p *Provider) remove(ctx context.Context, collection, id string) error {
	st, err := p.connectedStore()
	if err != nil {
		return err
	}
	return st.Remove(ctx, collection, id)
}

func (p *Provider) hashPassword(password string) (string, error) {
	cost := p.cfg.PasswordCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func toFields(record any) (map[string]any, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return fields, nil
}
