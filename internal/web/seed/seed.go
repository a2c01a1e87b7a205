// Package seed holds the dataset written into an empty store on first start.
package seed

import (
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/foxzi/techsupport/internal/web/models"
	"github.com/foxzi/techsupport/internal/web/store"
)

// ProbeCollection decides whether the store is empty
const ProbeCollection = store.CollectionUsers

// Dataset is the full set of initial records
type Dataset struct {
	Environments  []models.Environment
	Organizations []models.Organization
	APIKeys       []models.APIKey
	OrgPaths      []models.OrgPath
	APIActions    []models.APIAction
	Users         []models.User
}

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

// Default returns the placeholder dataset. User passwords are plaintext
// here and hashed by Ops.
func Default() Dataset {
	return Dataset{
		Environments: []models.Environment{
			{ID: "env_1", Name: "external.radpair.com", URL: "https://api.radpair.com", CreatedAt: day("2023-01-01")},
		},
		Organizations: []models.Organization{
			{
				ID: "org_1", Name: "Acme Inc.", EnvironmentID: "env_1",
				StudyIdentifiers: []models.StudyIdentifier{{Key: "MRN", Value: "mrn"}},
				CreatedAt:        day("2023-01-15"),
			},
			{
				ID: "org_2", Name: "Startup LLC", EnvironmentID: "env_1",
				StudyIdentifiers: []models.StudyIdentifier{{Key: "PatientID", Value: "patient_id"}},
				CreatedAt:        day("2023-02-20"),
			},
			{
				ID: "org_3", Name: "Innovate Corp", EnvironmentID: "env_1",
				StudyIdentifiers: []models.StudyIdentifier{
					{Key: "Native ID", Value: "native_id"},
					{Key: "Assigning Authority", Value: "assigning_authority"},
				},
				CreatedAt: day("2023-03-10"),
			},
			{
				ID: "org_4", Name: "EugeneDemo", EnvironmentID: "env_1",
				StudyIdentifiers: []models.StudyIdentifier{{Key: "Site ID", Value: "site_ID"}},
				CreatedAt:        day("2024-06-01"),
			},
		},
		APIKeys: []models.APIKey{
			{ID: "key_1", Key: "ek_ext_xxxxxxxxxxxxxxxxxxxx1234", OrganizationID: "org_1", EnvironmentID: "env_1", CreatedAt: day("2023-01-16")},
			{ID: "key_2", Key: "ek_ext_xxxxxxxxxxxxxxxxxxxxx5678", OrganizationID: "org_2", EnvironmentID: "env_1", CreatedAt: day("2023-02-21")},
			{ID: "key_3", Key: "ek_ext_xxxxxxxxxxxxxxxxxxxxx9012", OrganizationID: "org_3", EnvironmentID: "env_1", CreatedAt: day("2023-03-11")},
			{ID: "key_4", Key: "rsk_x4JRnF9s5neZf0X9KzRQWj3yDCTMuqLv81VJ9Scxa0t", OrganizationID: "org_4", EnvironmentID: "env_1", CreatedAt: day("2024-06-01")},
		},
		OrgPaths: []models.OrgPath{
			{ID: "path_1", Path: "dept1,regionA,groupX", OrganizationID: "org_1", CreatedAt: day("2023-04-01")},
			{ID: "path_2", Path: "dept2,regionB,groupY", OrganizationID: "org_1", CreatedAt: day("2023-04-02")},
			{ID: "path_3", Path: "finance,us-east,team1", OrganizationID: "org_2", CreatedAt: day("2023-04-05")},
		},
		APIActions: []models.APIAction{
			{ID: "action_1", Key: "default_model", Value: "gemini-1.5-pro", EnvironmentID: "env_1", CreatedAt: day("2023-05-01")},
			{ID: "action_2", Key: "timeout_ms", Value: "30000", EnvironmentID: "env_1", CreatedAt: day("2023-05-02")},
			{ID: "action_3", Key: models.ActionFind, Value: "/integrations/reports/find", EnvironmentID: "env_1", CreatedAt: day("2023-05-03")},
			{ID: "action_4", Key: models.ActionTransferOwnership, Value: "/integrations/reports/transfer-ownership", EnvironmentID: "env_1", CreatedAt: day("2024-06-21")},
			{ID: "action_5", Key: models.ActionCancel, Value: "/integrations/reports/cancel", EnvironmentID: "env_1", CreatedAt: day("2024-07-25")},
			{ID: "action_6", Key: models.ActionUpdate, Value: "/integrations/reports/status-update", EnvironmentID: "env_1", CreatedAt: day("2024-07-26")},
		},
		Users: []models.User{
			{ID: "user_1", Name: "Admin User", Email: "admin@techsupport.dev", Password: "password", CreatedAt: day("2023-01-01")},
			{ID: "user_2", Name: "Permanent Admin", Email: "admin@radpair.com", Password: "12345", CreatedAt: day("2023-01-01")},
		},
	}
}

// Ops turns the dataset into store writes keyed by the fixed seed ids.
// Plaintext passwords are replaced with bcrypt hashes of the given cost.
func (d Dataset) Ops(cost int) ([]store.Op, error) {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	var ops []store.Op
	for _, e := range d.Environments {
		ops = append(ops, store.Put(store.CollectionEnvironments, e.ID, e))
	}
	for _, o := range d.Organizations {
		ops = append(ops, store.Put(store.CollectionOrganizations, o.ID, o))
	}
	for _, k := range d.APIKeys {
		ops = append(ops, store.Put(store.CollectionAPIKeys, k.ID, k))
	}
	for _, p := range d.OrgPaths {
		ops = append(ops, store.Put(store.CollectionOrgPaths, p.ID, p))
	}
	for _, a := range d.APIActions {
		ops = append(ops, store.Put(store.CollectionAPIActions, a.ID, a))
	}
	for _, u := range d.Users {
		if u.Password != "" {
			hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), cost)
			if err != nil {
				return nil, fmt.Errorf("failed to hash password for %s: %w", u.Email, err)
			}
			u.PasswordHash = string(hash)
			u.Password = ""
		}
		ops = append(ops, store.Put(store.CollectionUsers, u.ID, u))
	}
	return ops, nil
}

// Len returns the total number of records
func (d Dataset) Len() int {
	return len(d.Environments) + len(d.Organizations) + len(d.APIKeys) +
		len(d.OrgPaths) + len(d.APIActions) + len(d.Users)
}
