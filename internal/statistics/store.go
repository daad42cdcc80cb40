package statistics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"pulsewire/internal/apps"
)

// StatisticRecord is one persisted snapshot interval for one app.
type StatisticRecord struct {
	ID                 string `gorm:"primaryKey"`
	AppID              string `gorm:"index;not null"`
	CurrentConnections int
	PeakConnections    int
	WebSocketMessages  int
	APIMessages        int
	CapturedAt         time.Time `gorm:"index"`
}

func (StatisticRecord) TableName() string {
	return "statistics"
}

// Store persists snapshots for long-term aggregates.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&StatisticRecord{}); err != nil {
		return nil, fmt.Errorf("migrate statistics table: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Save(ctx context.Context, snapshot Snapshot) error {
	rec := StatisticRecord{
		ID:                 uuid.New().String(),
		AppID:              snapshot.AppID,
		CurrentConnections: snapshot.CurrentConnections,
		PeakConnections:    snapshot.PeakConnections,
		WebSocketMessages:  snapshot.WebSocketMessages,
		APIMessages:        snapshot.APIMessages,
		CapturedAt:         snapshot.CapturedAt,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("save statistic snapshot: %w", err)
	}
	return nil
}

// Flusher drains the memory collector into the store on an interval,
// skipping apps that have not opted into statistics.
type Flusher struct {
	collector *MemoryCollector
	store     *Store
	registry  apps.Registry
	interval  time.Duration
}

func NewFlusher(collector *MemoryCollector, store *Store, registry apps.Registry, interval time.Duration) *Flusher {
	return &Flusher{
		collector: collector,
		store:     store,
		registry:  registry,
		interval:  interval,
	}
}

// Run flushes until the context is cancelled, then performs a final flush.
func (f *Flusher) Run(ctx context.Context) {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			f.flush(ctx)
		case <-ctx.Done():
			f.flush(context.Background())
			return
		}
	}
}

func (f *Flusher) flush(ctx context.Context) {
	for _, snapshot := range f.collector.Flush() {
		app, err := f.registry.FindByID(ctx, snapshot.AppID)
		if err != nil {
			if !errors.Is(err, apps.ErrAppNotFound) {
				slog.Error("Statistics flush app lookup failed", "appId", snapshot.AppID, "error", err)
			}
			continue
		}
		if !app.StatisticsEnabled {
			continue
		}
		if err := f.store.Save(ctx, snapshot); err != nil {
			slog.Error("Failed to persist statistic snapshot", "appId", snapshot.AppID, "error", err)
		}
	}
}
