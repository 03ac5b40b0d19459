// Package store persists resolution records. Each record is keyed by its
// query and written after every status change.
package store

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/address-resolver/internal/model"
)

// ErrNotFound is returned when no record exists for a key.
var ErrNotFound = eris.New("store: record not found")

// RecordFilter specifies criteria for listing records.
type RecordFilter struct {
	Status model.Status `json:"status,omitempty"`
	Limit  int          `json:"limit,omitempty"`
	Offset int          `json:"offset,omitempty"`
}

// Store defines the persistence interface for resolution records.
type Store interface {
	// SaveRecord inserts or replaces the record stored under its query key.
	// A record without an ID is assigned one.
	SaveRecord(ctx context.Context, rec *model.ResolutionRecord) error
	GetRecord(ctx context.Context, key string) (*model.ResolutionRecord, error)
	ListRecords(ctx context.Context, filter RecordFilter) ([]model.ResolutionRecord, error)
	CountByStatus(ctx context.Context) (map[model.Status]int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open creates the store selected by driver ("sqlite" or "postgres") and
// applies its migration.
func Open(ctx context.Context, driver, dsn string, poolCfg *PoolConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch strings.ToLower(driver) {
	case "", "sqlite":
		if dsn == "" {
			dsn = "resolver.db"
		}
		s, err = NewSQLite(dsn)
	case "postgres", "postgresql":
		s, err = NewPostgres(ctx, dsn, poolCfg)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close() //nolint:errcheck
		return nil, err
	}
	return s, nil
}

// prepare assigns an ID and returns the record's key and JSON payload.
// A record whose payload contradicts its status is never written.
func prepare(rec *model.ResolutionRecord) (string, []byte, error) {
	if rec == nil {
		return "", nil, eris.New("store: nil record")
	}
	if err := rec.Validate(); err != nil {
		return "", nil, eris.Wrap(err, "store: invalid record")
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	key := rec.Query.Key()
	data, err := json.Marshal(rec)
	if err != nil {
		return "", nil, eris.Wrap(err, "store: marshal record")
	}
	return key, data, nil
}

func decode(data []byte) (*model.ResolutionRecord, error) {
	var rec model.ResolutionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal record")
	}
	return &rec, nil
}

func limitOf(f RecordFilter) int {
	if f.Limit <= 0 {
		return 1000
	}
	return f.Limit
}
