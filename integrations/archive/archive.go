package archive

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"lukechampine.com/blake3"

	"vsachain/core/types"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	defaultListLimit = 100
	maxListLimit     = 1000
)

// Record is one archived event. Digest is the blake3 hash of the event's
// canonical form and keeps redelivered events from being stored twice.
type Record struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Seq        uint64    `gorm:"index"`
	Digest     string    `gorm:"size:64;uniqueIndex"`
	Type       string    `gorm:"size:64;index"`
	Collection string    `gorm:"size:64;index"`
	Attributes string    `gorm:"type:text"`
	CreatedAt  time.Time
}

// TableName pins the table name independent of the struct name.
func (Record) TableName() string { return "archived_events" }

// Event decodes the stored attributes back into an event.
func (r Record) Event() (*types.Event, error) {
	attrs := map[string]string{}
	if strings.TrimSpace(r.Attributes) != "" {
		if err := json.Unmarshal([]byte(r.Attributes), &attrs); err != nil {
			return nil, fmt.Errorf("archive: decode attributes: %w", err)
		}
	}
	return &types.Event{Type: r.Type, Attributes: attrs}, nil
}

// Query filters archived events. Collection matches the event's collection
// attribute exactly.
type Query struct {
	Collection string
	Types      []string
	AfterSeq   uint64
	Limit      int
}

// Store persists events through gorm.
type Store struct {
	db  *gorm.DB
	seq atomic.Uint64
	now func() time.Time
}

// Open connects to the configured driver and migrates the schema.
func Open(driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverSQLite, "":
		if strings.TrimSpace(dsn) == "" {
			return nil, errors.New("archive: sqlite dsn required")
		}
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("archive: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", driver, err)
	}
	if _, ok := dialector.(*sqlite.Dialector); ok {
		// SQLite allows a single writer.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("archive: open %s: %w", driver, err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return New(db)
}

// New wraps an existing gorm handle.
func New(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("archive: database required")
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("archive: migrate: %w", err)
	}
	store := &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
	var last Record
	err := db.Order("seq desc").Limit(1).Find(&last).Error
	if err != nil {
		return nil, fmt.Errorf("archive: load sequence: %w", err)
	}
	store.seq.Store(last.Seq)
	return store, nil
}

// Digest returns the hex blake3 hash over the event type and its attributes in
// key order.
func Digest(evt *types.Event) string {
	hasher := blake3.New(32, nil)
	_, _ = hasher.Write([]byte(evt.Type))
	keys := make([]string, 0, len(evt.Attributes))
	for k := range evt.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		_, _ = hasher.Write([]byte{0})
		_, _ = hasher.Write([]byte(k))
		_, _ = hasher.Write([]byte{'='})
		_, _ = hasher.Write([]byte(evt.Attributes[k]))
	}
	return hex.EncodeToString(hasher.Sum(nil))
}

// Record stores the event and reports whether a new row was inserted.
func (s *Store) Record(ctx context.Context, evt *types.Event) (bool, error) {
	if s == nil || evt == nil {
		return false, nil
	}
	attrs, err := json.Marshal(evt.Attributes)
	if err != nil {
		return false, fmt.Errorf("archive: encode attributes: %w", err)
	}
	rec := Record{
		ID:         uuid.New(),
		Seq:        s.seq.Add(1),
		Digest:     Digest(evt),
		Type:       evt.Type,
		Collection: evt.Attr("collection"),
		Attributes: string(attrs),
		CreatedAt:  s.now(),
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "digest"}},
		DoNothing: true,
	}).Create(&rec)
	if res.Error != nil {
		return false, fmt.Errorf("archive: insert: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// List returns archived events in the order they were recorded.
func (s *Store) List(ctx context.Context, q Query) ([]Record, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	tx := s.db.WithContext(ctx).Model(&Record{}).Where("seq > ?", q.AfterSeq)
	if c := strings.TrimSpace(q.Collection); c != "" {
		tx = tx.Where("collection = ?", c)
	}
	if len(q.Types) > 0 {
		tx = tx.Where("type IN ?", q.Types)
	}
	var out []Record
	if err := tx.Order("seq asc").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("archive: list: %w", err)
	}
	return out, nil
}

// Count returns the number of archived rows.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Record{}).Count(&n).Error
	return n, err
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
