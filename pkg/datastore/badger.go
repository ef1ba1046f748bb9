package datastore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/dapper/pkg/directory"
)

// Key namespace. Every value is the JSON encoding of the matching
// directory record.
//
//	Record         Key
//	=============  ==============
//	Domain         d:<id>
//	Organization   o:<id>
//	Group          g:<id>
//	User           u:<id>
const (
	prefixDomain       = "d:"
	prefixOrganization = "o:"
	prefixGroup        = "g:"
	prefixUser         = "u:"
)

// BadgerConfig configures the badger provider.
type BadgerConfig struct {
	// Path is the database directory.
	Path string `mapstructure:"path" yaml:"path,omitempty" json:"path,omitempty"`

	// InMemory keeps the database off disk. Used by tests.
	InMemory bool `mapstructure:"in_memory" yaml:"in_memory,omitempty" json:"in_memory,omitempty"`
}

// Badger reads directory records from an embedded BadgerDB.
type Badger struct {
	db *badgerdb.DB
}

// NewBadger opens the database at cfg.Path.
func NewBadger(cfg BadgerConfig) (*Badger, error) {
	var opts badgerdb.Options
	switch {
	case cfg.InMemory:
		opts = badgerdb.DefaultOptions("").WithInMemory(true)
	case cfg.Path != "":
		opts = badgerdb.DefaultOptions(cfg.Path)
	default:
		return nil, errors.New("datastore.badger.path is required")
	}

	db, err := badgerdb.Open(opts.WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &Badger{db: db}, nil
}

func (b *Badger) Name() string { return ProviderBadger }

func (b *Badger) Load(ctx context.Context) (*directory.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc := &directory.Document{}

	err := b.db.View(func(txn *badgerdb.Txn) error {
		if err := scan(txn, prefixDomain, &doc.Domains); err != nil {
			return err
		}
		if err := scan(txn, prefixOrganization, &doc.Organizations); err != nil {
			return err
		}
		if err := scan(txn, prefixGroup, &doc.Groups); err != nil {
			return err
		}
		return scan(txn, prefixUser, &doc.Users)
	})
	if err != nil {
		return nil, fmt.Errorf("read badger records: %w", err)
	}
	return doc, nil
}

// scan decodes every value under prefix into out, in key order.
func scan[T any](txn *badgerdb.Txn, prefix string, out *[]T) error {
	opts := badgerdb.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
		item := it.Item()
		err := item.Value(func(val []byte) error {
			var r T
			if err := json.Unmarshal(val, &r); err != nil {
				return fmt.Errorf("decode %s: %w", item.Key(), err)
			}
			*out = append(*out, r)
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Import writes every record of doc, replacing records with the same id.
func (b *Badger) Import(ctx context.Context, doc *directory.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	assignIDs(doc)

	return b.db.Update(func(txn *badgerdb.Txn) error {
		for _, r := range doc.Domains {
			if err := put(txn, prefixDomain+r.ID, r); err != nil {
				return err
			}
		}
		for _, r := range doc.Organizations {
			if err := put(txn, prefixOrganization+r.ID, r); err != nil {
				return err
			}
		}
		for _, r := range doc.Groups {
			if err := put(txn, prefixGroup+r.ID, r); err != nil {
				return err
			}
		}
		for _, r := range doc.Users {
			if err := put(txn, prefixUser+r.ID, r); err != nil {
				return err
			}
		}
		return nil
	})
}

func put(txn *badgerdb.Txn, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := txn.Set([]byte(key), data); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}

// WritePassword rewrites the user record with the new hash.
func (b *Badger) WritePassword(ctx context.Context, userID, hash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := []byte(prefixUser + userID)

	return b.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return ErrUserNotFound
		}
		if err != nil {
			return err
		}

		var r directory.UserRecord
		if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &r) }); err != nil {
			return fmt.Errorf("decode user %s: %w", userID, err)
		}
		r.Password = hash
		return put(txn, string(key), r)
	})
}

func (b *Badger) Close() error { return b.db.Close() }
