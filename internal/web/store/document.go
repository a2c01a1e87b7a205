package store

import (
	"encoding/json"
	"fmt"
)

// Document is a stored record. Data never contains the id.
type Document struct {
	ID   string
	Data json.RawMessage
}

// Decode unmarshals the document into v and sets its "id" field
func (d Document) Decode(v any) error {
	if err := json.Unmarshal(d.Data, v); err != nil {
		return fmt.Errorf("failed to decode document %s: %w", d.ID, err)
	}
	idJSON, err := json.Marshal(map[string]string{"id": d.ID})
	if err != nil {
		return err
	}
	return json.Unmarshal(idJSON, v)
}

// DecodeAll decodes a snapshot into typed records, keeping its order
func DecodeAll[T any](docs []Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var v T
		if err := doc.Decode(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// OpKind is the kind of a batch operation
type OpKind string

const (
	OpPut    OpKind = "put"
	OpDelete OpKind = "delete"
)

// Op is a single write inside a batch
type Op struct {
	Kind       OpKind
	Collection string
	ID         string
	Data       any
}

// Put writes data under a caller-chosen id
func Put(collection, id string, data any) Op {
	return Op{Kind: OpPut, Collection: collection, ID: id, Data: data}
}

// Delete removes a document
func Delete(collection, id string) Op {
	return Op{Kind: OpDelete, Collection: collection, ID: id}
}
