package indexer

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/core/events"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/observability"
	"github.com/nomadbitcoin/softlaw-marketplace-contracts-sub000/observability/logging"
)

// EventRecord is one committed marketplace event.
type EventRecord struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Type       string    `gorm:"size:64;index" json:"type"`
	AssetID    string    `gorm:"size:32;index" json:"assetId,omitempty"`
	LicenseID  string    `gorm:"size:32;index" json:"licenseId,omitempty"`
	Account    string    `gorm:"size:42;index" json:"account,omitempty"`
	Attributes string    `gorm:"type:text" json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
}

// TableName pins the table name.
func (EventRecord) TableName() string { return "settlement_events" }

// Attrs decodes the stored attribute map.
func (r EventRecord) Attrs() map[string]string {
	out := map[string]string{}
	if strings.TrimSpace(r.Attributes) == "" {
		return out
	}
	_ = json.Unmarshal([]byte(r.Attributes), &out)
	return out
}

// Filter narrows an event query. Zero values match everything.
type Filter struct {
	Type      string
	AssetID   string
	LicenseID string
	Account   string
	AfterID   uint64
	Limit     int
}

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// Indexer persists committed events and serves them back in commit order.
// It implements events.Emitter.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open connects to the configured driver and migrates the schema.
func Open(driver, dsn string, log *slog.Logger) (*Indexer, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("indexer: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open %s: %w", logging.MaskDSN(dsn), err)
	}
	idx, err := New(db, log)
	if err != nil {
		return nil, err
	}
	idx.logger.Info("indexer: connected", "driver", driver, "dsn", logging.MaskDSN(dsn))
	return idx, nil
}

// New wraps an existing connection and migrates the schema.
func New(db *gorm.DB, log *slog.Logger) (*Indexer, error) {
	if db == nil {
		return nil, fmt.Errorf("indexer: nil database")
	}
	if err := db.AutoMigrate(&EventRecord{}); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Indexer{db: db, logger: log, now: time.Now}, nil
}

// Emit implements events.Emitter. Events without a wire payload are skipped.
func (i *Indexer) Emit(evt events.Event) {
	raw := events.Raw(evt)
	if raw == nil {
		return
	}
	attrs, err := json.Marshal(raw.Attributes)
	if err != nil {
		i.logger.Error("indexer: encode attributes", "type", raw.Type, "error", err)
		return
	}
	rec := EventRecord{
		Type:       raw.Type,
		AssetID:    raw.Attributes["assetId"],
		LicenseID:  raw.Attributes["licenseId"],
		Account:    firstNonEmpty(raw.Attributes, "account", "holder", "seller", "payer"),
		Attributes: string(attrs),
		CreatedAt:  i.now().UTC(),
	}
	if err := i.db.Create(&rec).Error; err != nil {
		i.logger.Error("indexer: persist event", "type", raw.Type, "error", err)
		return
	}
	observability.Events().RecordEvent(raw.Type)
}

// Query returns events matching the filter ordered by id.
func (i *Indexer) Query(filter Filter) ([]EventRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	q := i.db.Model(&EventRecord{}).Where("id > ?", filter.AfterID)
	if filter.Type != "" {
		q = q.Where("type = ?", filter.Type)
	}
	if filter.AssetID != "" {
		q = q.Where("asset_id = ?", filter.AssetID)
	}
	if filter.LicenseID != "" {
		q = q.Where("license_id = ?", filter.LicenseID)
	}
	if filter.Account != "" {
		q = q.Where("account = ?", filter.Account)
	}
	var out []EventRecord
	if err := q.Order("id asc").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("indexer: query: %w", err)
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (i *Indexer) Close() error {
	sqlDB, err := i.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func firstNonEmpty(attrs map[string]string, keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(attrs[key]); v != "" {
			return v
		}
	}
	return ""
}
