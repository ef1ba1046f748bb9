package datastore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/marmos91/dapper/pkg/directory"
)

// Database types for the sql provider.
const (
	SQLTypeSQLite   = "sqlite"
	SQLTypePostgres = "postgres"
)

// SQLiteConfig locates the SQLite database file.
type SQLiteConfig struct {
	// Path defaults to $XDG_CONFIG_HOME/dapper/dapper.db.
	Path string `mapstructure:"path" yaml:"path,omitempty" json:"path,omitempty"`
}

// PostgresConfig holds the PostgreSQL connection settings.
type PostgresConfig struct {
	Host         string `mapstructure:"host" yaml:"host,omitempty" json:"host,omitempty"`
	Port         int    `mapstructure:"port" yaml:"port,omitempty" json:"port,omitempty"`
	Database     string `mapstructure:"database" yaml:"database,omitempty" json:"database,omitempty"`
	User         string `mapstructure:"user" yaml:"user,omitempty" json:"user,omitempty"`
	Password     string `mapstructure:"password" yaml:"password,omitempty" json:"password,omitempty"`
	SSLMode      string `mapstructure:"sslmode" yaml:"sslmode,omitempty" json:"sslmode,omitempty"` // disable, require, verify-ca, verify-full
	SSLRootCert  string `mapstructure:"sslrootcert" yaml:"sslrootcert,omitempty" json:"sslrootcert,omitempty"`
	MaxOpenConns int    `mapstructure:"max_open_conns" yaml:"max_open_conns,omitempty" json:"max_open_conns,omitempty"`
	MaxIdleConns int    `mapstructure:"max_idle_conns" yaml:"max_idle_conns,omitempty" json:"max_idle_conns,omitempty"`
}

// DSN returns the PostgreSQL connection string.
func (c *PostgresConfig) DSN() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s",
		c.Host, c.Port, c.User, c.Password, c.Database)
	if c.SSLMode != "" {
		dsn += " sslmode=" + c.SSLMode
	}
	if c.SSLRootCert != "" {
		dsn += " sslrootcert=" + c.SSLRootCert
	}
	return dsn
}

// SQLConfig configures the sql provider.
type SQLConfig struct {
	Type     string         `mapstructure:"type" yaml:"type" json:"type" default:"sqlite" validate:"omitempty,oneof=sqlite postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite" yaml:"sqlite" json:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres" json:"postgres"`
}

// ApplyDefaults fills in the database type, the SQLite path and the
// PostgreSQL pool sizes.
func (c *SQLConfig) ApplyDefaults() {
	if c.Type == "" {
		c.Type = SQLTypeSQLite
	}
	if c.Type == SQLTypeSQLite && c.SQLite.Path == "" {
		configDir := os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, _ := os.UserHomeDir()
			configDir = filepath.Join(home, ".config")
		}
		c.SQLite.Path = filepath.Join(configDir, "dapper", "dapper.db")
	}
	if c.Type == SQLTypePostgres {
		if c.Postgres.Port == 0 {
			c.Postgres.Port = 5432
		}
		if c.Postgres.SSLMode == "" {
			c.Postgres.SSLMode = "disable"
		}
		if c.Postgres.MaxOpenConns == 0 {
			c.Postgres.MaxOpenConns = 10
		}
		if c.Postgres.MaxIdleConns == 0 {
			c.Postgres.MaxIdleConns = 2
		}
	}
}

// Validate checks the settings of the selected database type.
func (c *SQLConfig) Validate() error {
	switch c.Type {
	case SQLTypeSQLite:
		if c.SQLite.Path == "" {
			return errors.New("sqlite path is required")
		}
	case SQLTypePostgres:
		if c.Postgres.Host == "" {
			return errors.New("postgres host is required")
		}
		if c.Postgres.Database == "" {
			return errors.New("postgres database is required")
		}
		if c.Postgres.User == "" {
			return errors.New("postgres user is required")
		}
	default:
		return fmt.Errorf("unsupported database type: %s", c.Type)
	}
	return nil
}

// SQL reads the directory from four tables (domains, organizations, groups,
// users) through GORM, on SQLite or PostgreSQL. The schema is created with
// AutoMigrate.
type SQL struct {
	db  *gorm.DB
	cfg SQLConfig
}

// NewSQL connects and migrates the schema.
func NewSQL(cfg SQLConfig) (*SQL, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sql configuration: %w", err)
	}

	var dialector gorm.Dialector
	switch cfg.Type {
	case SQLTypeSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLite.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		// WAL lets the CLI read while a server holds the file.
		dsn := cfg.SQLite.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		dialector = sqlite.Open(dsn)
	case SQLTypePostgres:
		dialector = postgres.Open(cfg.Postgres.DSN())
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Type == SQLTypePostgres {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get underlying database: %w", err)
		}
		sqlDB.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
	}

	if err := db.AutoMigrate(allModels()...); err != nil {
		return nil, fmt.Errorf("failed to run database migration: %w", err)
	}
	return &SQL{db: db, cfg: cfg}, nil
}

func (s *SQL) Name() string { return ProviderSQL }

// Load reads every table in a fixed order so the tree sees the same
// document on every boot.
func (s *SQL) Load(ctx context.Context) (*directory.Document, error) {
	db := s.db.WithContext(ctx)
	doc := &directory.Document{}

	var domains []sqlDomain
	if err := db.Order("domain").Find(&domains).Error; err != nil {
		return nil, fmt.Errorf("read domains: %w", err)
	}
	for _, r := range domains {
		doc.Domains = append(doc.Domains, r.record())
	}

	var orgs []sqlOrganization
	if err := db.Order("name").Find(&orgs).Error; err != nil {
		return nil, fmt.Errorf("read organizations: %w", err)
	}
	for _, r := range orgs {
		doc.Organizations = append(doc.Organizations, r.record())
	}

	var groups []sqlGroup
	if err := db.Order("name").Find(&groups).Error; err != nil {
		return nil, fmt.Errorf("read groups: %w", err)
	}
	for _, r := range groups {
		doc.Groups = append(doc.Groups, r.record())
	}

	var users []sqlUser
	if err := db.Order("username").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("read users: %w", err)
	}
	for _, r := range users {
		doc.Users = append(doc.Users, r.record())
	}
	return doc, nil
}

// Import upserts every record of doc in one transaction. Records without an
// id get a random one.
func (s *SQL) Import(ctx context.Context, doc *directory.Document) error {
	assignIDs(doc)
	upsert := clause.OnConflict{UpdateAll: true}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, r := range doc.Domains {
			row := sqlDomain{ID: r.ID, Domain: r.Domain, Options: r.Options, Metadata: r.Metadata}
			if err := tx.Clauses(upsert).Create(&row).Error; err != nil {
				return fmt.Errorf("import domain %s: %w", r.Domain, err)
			}
		}
		for _, r := range doc.Organizations {
			row := sqlOrganization{ID: r.ID, Name: r.Name, Options: r.Options, Metadata: r.Metadata}
			if err := tx.Clauses(upsert).Create(&row).Error; err != nil {
				return fmt.Errorf("import organization %s: %w", r.Name, err)
			}
		}
		for _, r := range doc.Groups {
			row := sqlGroup{ID: r.ID, Name: r.Name, Organization: r.Organization, Options: r.Options, Metadata: r.Metadata}
			if err := tx.Clauses(upsert).Create(&row).Error; err != nil {
				return fmt.Errorf("import group %s: %w", r.Name, err)
			}
		}
		for _, r := range doc.Users {
			row := toSQLUser(r)
			if err := tx.Clauses(upsert).Create(&row).Error; err != nil {
				return fmt.Errorf("import user %s: %w", r.Username, err)
			}
		}
		return nil
	})
}

// WritePassword stores hash on the user row.
func (s *SQL) WritePassword(ctx context.Context, userID, hash string) error {
	res := s.db.WithContext(ctx).Model(&sqlUser{}).Where("id = ?", userID).Update("password", hash)
	if res.Error != nil {
		return fmt.Errorf("write password: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Close closes the connection pool.
func (s *SQL) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
