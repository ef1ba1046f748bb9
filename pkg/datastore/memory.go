package datastore

import (
	"context"
	"sync"

	"github.com/marmos91/dapper/pkg/directory"
)

// Memory serves a document decoded from configuration. Cached passwords are
// kept for the lifetime of the process only.
type Memory struct {
	mu  sync.RWMutex
	doc *directory.Document
}

// NewMemory decodes data, the datastore.data configuration block.
func NewMemory(data map[string]any) (*Memory, error) {
	doc := &directory.Document{}
	if len(data) > 0 {
		var err error
		if doc, err = directory.DecodeDocument(data); err != nil {
			return nil, err
		}
	}
	assignIDs(doc)
	return &Memory{doc: doc}, nil
}

// NewMemoryDocument wraps an already decoded document.
func NewMemoryDocument(doc *directory.Document) *Memory {
	if doc == nil {
		doc = &directory.Document{}
	}
	assignIDs(doc)
	return &Memory{doc: doc}
}

func (m *Memory) Name() string { return ProviderMemory }

// Load returns a copy of the user list so later password writes do not
// alias a document already handed out.
func (m *Memory) Load(ctx context.Context) (*directory.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc := *m.doc
	doc.Users = append([]directory.UserRecord(nil), m.doc.Users...)
	return &doc, nil
}

// WritePassword updates the record with the given id.
func (m *Memory) WritePassword(ctx context.Context, userID, hash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.doc.Users {
		if m.doc.Users[i].ID == userID {
			m.doc.Users[i].Password = hash
			return nil
		}
	}
	return ErrUserNotFound
}

func (m *Memory) Close() error { return nil }
