package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"klubstake/core"
	"klubstake/core/types"
)

var (
	ErrEmptyDSN = errors.New("journal: dsn must not be empty")
	ErrNotFound = errors.New("journal: entry not found")
)

// Entry is one committed ledger transition.
type Entry struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Height    uint64    `gorm:"uniqueIndex;not null"`
	Root      string    `gorm:"size:66;not null"`
	Action    string    `gorm:"size:32;index"`
	Sender    string    `gorm:"size:128;index"`
	Events    string    `gorm:"type:text"`
	CreatedAt time.Time
}

// DecodeEvents returns the events stored with the entry.
func (e *Entry) DecodeEvents() ([]*types.Event, error) {
	if strings.TrimSpace(e.Events) == "" {
		return nil, nil
	}
	var out []*types.Event
	if err := json.Unmarshal([]byte(e.Events), &out); err != nil {
		return nil, fmt.Errorf("journal: decode events: %w", err)
	}
	return out, nil
}

// AutoMigrate performs the schema migrations for the journal.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Entry{})
}

// Journal appends committed transitions to a SQL table.
type Journal struct {
	db *gorm.DB
}

func isPostgres(dsn string) bool {
	lowered := strings.ToLower(strings.TrimSpace(dsn))
	return strings.HasPrefix(lowered, "postgres://") ||
		strings.HasPrefix(lowered, "postgresql://") ||
		strings.Contains(lowered, "host=")
}

// Open connects to postgres when dsn looks like a postgres connection string
// and to sqlite otherwise, then migrates the schema.
func Open(dsn string) (*Journal, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, ErrEmptyDSN
	}
	dialector := sqlite.Open(dsn)
	if isPostgres(dsn) {
		dialector = postgres.Open(dsn)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("journal: open: %w", err)
	}
	return New(db)
}

// New wraps an existing gorm handle and migrates the schema.
func New(db *gorm.DB) (*Journal, error) {
	if db == nil {
		return nil, fmt.Errorf("journal: db must not be nil")
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	return &Journal{db: db}, nil
}

// Record implements core.Journal.
func (j *Journal) Record(ctx context.Context, entry core.JournalEntry) error {
	encoded, err := json.Marshal(entry.Events)
	if err != nil {
		return fmt.Errorf("journal: encode events: %w", err)
	}
	row := &Entry{
		ID:        uuid.New(),
		Height:    entry.Height,
		Root:      entry.Root.Hex(),
		Action:    entry.Action,
		Sender:    entry.Sender,
		Events:    string(encoded),
		CreatedAt: entry.Time,
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if err := j.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("journal: append height %d: %w", entry.Height, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var rows []Entry
	if err := j.db.WithContext(ctx).Order("height desc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}
	return rows, nil
}

// ByHeight returns the entry committed at height.
func (j *Journal) ByHeight(ctx context.Context, height uint64) (*Entry, error) {
	var row Entry
	err := j.db.WithContext(ctx).Where("height = ?", height).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("journal: lookup height %d: %w", height, err)
	}
	return &row, nil
}

// Close releases the underlying connection pool.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
