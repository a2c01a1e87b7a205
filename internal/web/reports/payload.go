package reports

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/foxzi/techsupport/internal/web/models"
)

// Operation is a report action exposed by the external reporting API
type Operation string

const (
	OpFind              Operation = "find"
	OpUpdate            Operation = "update"
	OpCancel            Operation = "cancel"
	OpTransferOwnership Operation = "transfer-ownership"
)

// Operations lists every supported operation
var Operations = []Operation{OpFind, OpUpdate, OpCancel, OpTransferOwnership}

// Report statuses accepted by the update operation
const (
	StatusDraft     = "draft"
	StatusCancelled = "cancelled"
)

var (
	ErrUnknownOperation = errors.New("unknown report operation")
	ErrNoOrganization   = errors.New("Please select an organization first.")
	ErrStatusRequired   = errors.New("Please select a status first.")
	ErrInvalidStatus    = errors.New("status must be draft or cancelled")
)

// ParseOperation maps a URL segment to an Operation
func ParseOperation(s string) (Operation, error) {
	for _, op := range Operations {
		if string(op) == s {
			return op, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownOperation, s)
}

// ActionKey is the api action key that holds the operation's endpoint
func (o Operation) ActionKey() string {
	switch o {
	case OpFind:
		return models.ActionFind
	case OpUpdate:
		return models.ActionUpdate
	case OpCancel:
		return models.ActionCancel
	case OpTransferOwnership:
		return models.ActionTransferOwnership
	}
	return ""
}

// Payload is a JSON object that keeps its keys in insertion order
type Payload struct {
	keys   []string
	values map[string]any
}

// NewPayload returns an empty payload
func NewPayload() *Payload {
	return &Payload{values: make(map[string]any)}
}

// Set adds key or replaces its value in place
func (p *Payload) Set(key string, value any) {
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
}

// Get returns the value stored under key
func (p *Payload) Get(key string) (any, bool) {
	v, ok := p.values[key]
	return v, ok
}

// Keys returns the keys in insertion order
func (p *Payload) Keys() []string {
	return append([]string(nil), p.keys...)
}

func (p *Payload) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range p.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(p.values[k])
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", k, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Indented renders the payload the way it is shown for editing
func (p *Payload) Indented() (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return "", err
	}
	return out.String(), nil
}

// PayloadInput is what the report forms collect
type PayloadInput struct {
	Organization    *models.Organization
	AccessionNumber string
	Status          string
	OrgPath         *models.OrgPath
}

// BuildPayload assembles the request body without any I/O. Keys are, in
// order: status (update only), accession_number, one empty field per study
// identifier value, and org_path when an org path is selected.
func BuildPayload(op Operation, in PayloadInput) (*Payload, error) {
	if in.Organization == nil {
		return nil, ErrNoOrganization
	}

	p := NewPayload()
	if op == OpUpdate {
		switch in.Status {
		case "":
			return nil, ErrStatusRequired
		case StatusDraft, StatusCancelled:
			p.Set("status", in.Status)
		default:
			return nil, ErrInvalidStatus
		}
	}

	p.Set("accession_number", in.AccessionNumber)
	for _, id := range in.Organization.StudyIdentifiers {
		p.Set(id.Value, "")
	}
	if in.OrgPath != nil {
		p.Set("org_path", in.OrgPath.Segments())
	}
	return p, nil
}
