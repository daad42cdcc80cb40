package apps

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// AppRecord is the persisted form of an App.
type AppRecord struct {
	ID                    string `gorm:"primaryKey"`
	Key                   string `gorm:"uniqueIndex;not null"`
	Secret                string `gorm:"not null"`
	Name                  string
	Host                  string
	AllowedOrigins        string // comma separated
	ClientMessagesEnabled bool
	StatisticsEnabled     bool
	Capacity              int
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

func (AppRecord) TableName() string {
	return "apps"
}

func (rec *AppRecord) toApp() *App {
	var origins []string
	if rec.AllowedOrigins != "" {
		for _, o := range strings.Split(rec.AllowedOrigins, ",") {
			origins = append(origins, strings.TrimSpace(o))
		}
	}
	return &App{
		ID:                    rec.ID,
		Key:                   rec.Key,
		Secret:                rec.Secret,
		Name:                  rec.Name,
		Host:                  rec.Host,
		AllowedOrigins:        origins,
		ClientMessagesEnabled: rec.ClientMessagesEnabled,
		StatisticsEnabled:     rec.StatisticsEnabled,
		Capacity:              rec.Capacity,
	}
}

// PostgresRegistry looks apps up in the database. Lookups are performed per
// request; the admin surface that writes this table lives outside the server.
type PostgresRegistry struct {
	db *gorm.DB
}

// NewPostgresRegistry migrates the apps table and returns a registry backed
// by it.
func NewPostgresRegistry(db *gorm.DB) (*PostgresRegistry, error) {
	if err := db.AutoMigrate(&AppRecord{}); err != nil {
		return nil, fmt.Errorf("migrate apps table: %w", err)
	}
	return &PostgresRegistry{db: db}, nil
}

func (r *PostgresRegistry) findOne(ctx context.Context, query string, arg string) (*App, error) {
	var rec AppRecord
	err := r.db.WithContext(ctx).Where(query, arg).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAppNotFound
		}
		return nil, fmt.Errorf("app lookup: %w", err)
	}
	return rec.toApp(), nil
}

func (r *PostgresRegistry) FindByID(ctx context.Context, id string) (*App, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *PostgresRegistry) FindByKey(ctx context.Context, key string) (*App, error) {
	return r.findOne(ctx, "key = ?", key)
}

func (r *PostgresRegistry) FindBySecret(ctx context.Context, secret string) (*App, error) {
	return r.findOne(ctx, "secret = ?", secret)
}
