package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"stakeoracle/core/events"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	defaultLimit = 100
	maxLimit     = 1000
)

// Entry is a committed event persisted for later queries.
type Entry struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Sequence   int64     `gorm:"uniqueIndex;not null" json:"sequence"`
	Type       string    `gorm:"index;not null" json:"type"`
	Loan       string    `gorm:"index" json:"loan,omitempty"`
	Attributes string    `gorm:"type:text" json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
}

// TableName pins the table name.
func (Entry) TableName() string { return "prediction_events" }

// Attrs decodes the stored attribute map.
func (e Entry) Attrs() map[string]string {
	out := map[string]string{}
	if strings.TrimSpace(e.Attributes) == "" {
		return out
	}
	_ = json.Unmarshal([]byte(e.Attributes), &out)
	return out
}

// MarshalJSON renders attributes inline.
func (e Entry) MarshalJSON() ([]byte, error) {
	type alias Entry
	return json.Marshal(struct {
		alias
		Attributes map[string]string `json:"attributes"`
	}{alias: alias(e), Attributes: e.Attrs()})
}

// Filter narrows List results.
type Filter struct {
	Loan          string
	Type          string
	AfterSequence int64
	Limit         int
}

// Open connects to the journal database using driver and dsn.
func Open(driver, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverSQLite, "":
		if strings.TrimSpace(dsn) == "" {
			dsn = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
		}
		return gorm.Open(sqlite.Open(dsn), cfg)
	case DriverPostgres:
		return gorm.Open(postgres.Open(dsn), cfg)
	default:
		return nil, fmt.Errorf("journal: unsupported driver %q", driver)
	}
}

// AutoMigrate performs the journal schema migration.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Entry{})
}

// Journal appends committed events to a relational store. It satisfies
// events.Emitter so it can be attached to the node's event feed.
type Journal struct {
	db     *gorm.DB
	logger *slog.Logger
	nowFn  func() time.Time

	mu  sync.Mutex
	seq int64
}

// New wraps db, which must already be migrated.
func New(db *gorm.DB, logger *slog.Logger) (*Journal, error) {
	if db == nil {
		return nil, errors.New("journal: database required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	var last struct{ Max *int64 }
	if err := db.Model(&Entry{}).Select("MAX(sequence) AS max").Scan(&last).Error; err != nil {
		return nil, fmt.Errorf("journal: load sequence: %w", err)
	}
	j := &Journal{db: db, logger: logger, nowFn: time.Now}
	if last.Max != nil {
		j.seq = *last.Max
	}
	return j, nil
}

// Emit implements events.Emitter. Persistence failures are logged because
// the event has already been committed to state.
func (j *Journal) Emit(evt events.Event) {
	if _, err := j.Append(context.Background(), evt); err != nil {
		j.logger.Error("journal append failed",
			slog.String("type", evt.EventType()),
			slog.Any("error", err))
	}
}

// Append persists evt and returns the stored entry.
func (j *Journal) Append(ctx context.Context, evt events.Event) (*Entry, error) {
	if evt == nil {
		return nil, errors.New("journal: nil event")
	}
	attrs := map[string]string{}
	if payload := events.Render(evt); payload != nil {
		for k, v := range payload.Attributes {
			attrs[k] = v
		}
	}
	encoded, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("journal: encode attributes: %w", err)
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	entry := &Entry{
		ID:         uuid.New(),
		Sequence:   j.seq + 1,
		Type:       evt.EventType(),
		Loan:       attrs["loan"],
		Attributes: string(encoded),
		CreatedAt:  j.nowFn().UTC(),
	}
	if err := j.db.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, fmt.Errorf("journal: insert: %w", err)
	}
	j.seq = entry.Sequence
	return entry, nil
}

// List returns entries in sequence order.
func (j *Journal) List(ctx context.Context, filter Filter) ([]Entry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	query := j.db.WithContext(ctx).Model(&Entry{}).Where("sequence > ?", filter.AfterSequence)
	if loan := strings.ToLower(strings.TrimSpace(filter.Loan)); loan != "" {
		query = query.Where("loan = ?", loan)
	}
	if typ := strings.TrimSpace(filter.Type); typ != "" {
		query = query.Where("type = ?", typ)
	}
	var entries []Entry
	if err := query.Order("sequence ASC").Limit(limit).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}
	return entries, nil
}
