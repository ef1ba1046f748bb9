// Package datastore loads the directory's entities at boot.
//
// A Provider returns one directory.Document. Providers that can persist a
// password also implement auth.PasswordWriter, which fallback-radius uses to
// cache upstream-verified passwords.
package datastore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/dapper/internal/logger"
	"github.com/marmos91/dapper/pkg/auth"
	"github.com/marmos91/dapper/pkg/directory"
)

// Provider names.
const (
	ProviderMemory = "memory"
	ProviderFile   = "file"
	ProviderSQL    = "sql"
	ProviderBadger = "badger"
	ProviderS3     = "s3"
)

var (
	// ErrUnknownProvider is returned by New for an unrecognised provider name.
	ErrUnknownProvider = errors.New("unknown datastore provider")

	// ErrUserNotFound is returned by WritePassword for an id the store does
	// not hold.
	ErrUserNotFound = errors.New("user not found")
)

// Provider is a source of directory entities.
type Provider interface {
	// Name returns the provider name, e.g. "sql".
	Name() string

	// Load reads the whole document.
	Load(ctx context.Context) (*directory.Document, error)

	// Close releases connections and file handles.
	Close() error
}

// Config selects and configures the provider.
type Config struct {
	Provider string `mapstructure:"provider" yaml:"provider" json:"provider" default:"memory" validate:"required,oneof=memory file sql badger s3"`

	// Data is the inline document used by the memory provider.
	Data map[string]any `mapstructure:"data" yaml:"data,omitempty" json:"data,omitempty"`

	// File is the YAML or JSON document read by the file provider.
	File string `mapstructure:"file" yaml:"file,omitempty" json:"file,omitempty"`

	SQL    SQLConfig    `mapstructure:"sql" yaml:"sql" json:"sql"`
	Badger BadgerConfig `mapstructure:"badger" yaml:"badger" json:"badger"`
	S3     S3Config     `mapstructure:"s3" yaml:"s3" json:"s3"`
}

// New opens the configured provider.
func New(ctx context.Context, cfg Config) (Provider, error) {
	var (
		p   Provider
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderMemory, "":
		p, err = NewMemory(cfg.Data)
	case ProviderFile:
		p, err = NewFile(cfg.File)
	case ProviderSQL:
		p, err = NewSQL(cfg.SQL)
	case ProviderBadger:
		p, err = NewBadger(cfg.Badger)
	case ProviderS3:
		p, err = NewS3(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s datastore: %w", cfg.Provider, err)
	}
	logger.Debug("Datastore opened", logger.KeyDatastore, p.Name())
	return p, nil
}

// Writer returns p as a PasswordWriter, or nil when p cannot persist
// passwords.
func Writer(p Provider) auth.PasswordWriter {
	if w, ok := p.(auth.PasswordWriter); ok {
		return w
	}
	return nil
}

// LoadTree reads p into a new tree. A config object in the document is
// merged over cfg first.
func LoadTree(ctx context.Context, p Provider, cfg directory.Config) (*directory.Tree, error) {
	doc, err := p.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load %s datastore: %w", p.Name(), err)
	}
	cfg, err = cfg.Merge(doc.Config)
	if err != nil {
		return nil, err
	}

	tree := directory.NewTree(cfg)
	if err := tree.Load(doc); err != nil {
		return nil, fmt.Errorf("build directory: %w", err)
	}
	logger.Info("Directory loaded",
		logger.KeyDatastore, p.Name(),
		"domains", len(tree.Domains()),
		"organizations", len(tree.Organizations()),
		"users", len(tree.Users()))
	return tree, nil
}

// decodeDocument parses a YAML or JSON document. yaml.v3 reads both, and
// the generic map goes through directory.DecodeDocument for the string
// shorthand.
func decodeDocument(name string, data []byte) (*directory.Document, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(name), err)
	}
	if raw == nil {
		return &directory.Document{}, nil
	}
	return directory.DecodeDocument(raw)
}

// assignIDs gives every record without an id a random one, so a password
// written back by user id finds its record again.
func assignIDs(doc *directory.Document) {
	for i := range doc.Domains {
		if doc.Domains[i].ID == "" {
			doc.Domains[i].ID = uuid.NewString()
		}
	}
	for i := range doc.Organizations {
		if doc.Organizations[i].ID == "" {
			doc.Organizations[i].ID = uuid.NewString()
		}
	}
	for i := range doc.Groups {
		if doc.Groups[i].ID == "" {
			doc.Groups[i].ID = uuid.NewString()
		}
	}
	for i := range doc.Users {
		if doc.Users[i].ID == "" {
			doc.Users[i].ID = uuid.NewString()
		}
	}
}
