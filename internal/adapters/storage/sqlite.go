package storage

import (
	"context"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/lcalzada-xor/trapwire/internal/core/domain"
	"github.com/lcalzada-xor/trapwire/internal/core/ports"
)

// SQLiteAdapter holds the relational side of the system: audit history and
// dashboard accounts. The registry itself lives in devices.json (fixed file
// contract), not here.
type SQLiteAdapter struct {
	db *gorm.DB
}

// AuditModel is the GORM model for audit history rows.
type AuditModel struct {
	ID        uint   `gorm:"primaryKey"`
	Actor     string `gorm:"index"`
	Action    string `gorm:"index"`
	Target    string
	Details   string
	Timestamp time.Time `gorm:"index"`
}

// UserModel is the GORM model for dashboard accounts.
type UserModel struct {
	ID           string `gorm:"primaryKey"`
	Username     string `gorm:"uniqueIndex"`
	PasswordHash string
	Role         string
	CreatedAt    time.Time
	LastLogin    time.Time
}

// NewSQLiteAdapter initializes the database and migrates schema.
func NewSQLiteAdapter(path string) (*SQLiteAdapter, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&AuditModel{}, &UserModel{}); err != nil {
		return nil, err
	}

	// Instrument with OpenTelemetry
	if err := db.Use(tracing.NewPlugin()); err != nil {
		return nil, err
	}

	// WAL mode allows simultaneous readers and one writer
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA busy_timeout=5000;")
	db.Exec("PRAGMA synchronous=NORMAL;")

	return &SQLiteAdapter{db: db}, nil
}

// SaveAudit appends one audit history row.
func (a *SQLiteAdapter) SaveAudit(ctx context.Context, entry domain.AuditEntry) error {
	model := AuditModel{
		Actor:     entry.Actor,
		Action:    string(entry.Action),
		Target:    entry.Target,
		Details:   entry.Details,
		Timestamp: entry.Timestamp,
	}
	return a.db.WithContext(ctx).Create(&model).Error
}

// GetAudits returns the newest rows first.
func (a *SQLiteAdapter) GetAudits(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	var models []AuditModel
	if err := a.db.WithContext(ctx).Order("timestamp desc").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]domain.AuditEntry, len(models))
	for i, m := range models {
		out[i] = domain.AuditEntry{
			ID:        m.ID,
			Actor:     m.Actor,
			Action:    domain.AuditAction(m.Action),
			Target:    m.Target,
			Details:   m.Details,
			Timestamp: m.Timestamp,
		}
	}
	return out, nil
}

// GetByUsername fetches one account.
func (a *SQLiteAdapter) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	var m UserModel
	if err := a.db.WithContext(ctx).First(&m, "username = ?", username).Error; err != nil {
		return nil, err
	}
	return &domain.User{
		ID:           m.ID,
		Username:     m.Username,
		PasswordHash: m.PasswordHash,
		Role:         domain.Role(m.Role),
		CreatedAt:    m.CreatedAt,
		LastLogin:    m.LastLogin,
	}, nil
}

// SaveUser upserts one account.
func (a *SQLiteAdapter) SaveUser(ctx context.Context, user *domain.User) error {
	model := UserModel{
		ID:           user.ID,
		Username:     user.Username,
		PasswordHash: user.PasswordHash,
		Role:         string(user.Role),
		CreatedAt:    user.CreatedAt,
		LastLogin:    user.LastLogin,
	}
	return a.db.WithContext(ctx).Save(&model).Error
}

// Close releases the underlying connection.
func (a *SQLiteAdapter) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var (
	_ ports.AuditRepository = (*SQLiteAdapter)(nil)
	_ ports.UserRepository  = (*SQLiteAdapter)(nil)
)
