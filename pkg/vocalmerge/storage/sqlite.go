package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const DefaultDBFile = "vocalmerge.sqlite3"
const errDBClientNil = "db client is nil"

var ErrArtifactNotFound = errors.New("artifact not found")

type DBClient struct {
	DB *gorm.DB
	db *sql.DB
}

// Artifact is a produced mix waiting to be downloaded.
type Artifact struct {
	ID          string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Path        string     `json:"path"`
	ContentType string     `json:"content_type"`
	SizeBytes   int64      `json:"size_bytes"`
	FinalScore  float64    `json:"final_score"`
	Verdict     string     `json:"verdict"`
	TokenID     string     `gorm:"index:idx_token_id" json:"token_id,omitempty"`
	CreatedAt   time.Time  `gorm:"index:idx_created_at" json:"created_at"`
	ServedAt    *time.Time `json:"served_at,omitempty"`
	ExpiresAt   *time.Time `gorm:"index:idx_expires_at" json:"expires_at,omitempty"`
}

func NewDBClientWithPath(dbPath string) (*DBClient, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(sqlite.Open(dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}

	sqlDB.SetMaxOpenConns(8)
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Artifact{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &DBClient{DB: db, db: sqlDB}, nil
}

func (c *DBClient) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func (c *DBClient) RegisterArtifact(a *Artifact) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	if a.ID == "" {
		return errors.New("artifact id is empty")
	}
	// timestamps are compared as text by sqlite, so keep them all in UTC
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	a.CreatedAt = a.CreatedAt.UTC()
	if err := c.DB.Create(a).Error; err != nil {
		return fmt.Errorf("registering artifact %s: %w", a.ID, err)
	}
	return nil
}

func (c *DBClient) GetArtifact(id string) (*Artifact, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	var a Artifact
	err := c.DB.Where("id = ?", id).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrArtifactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying artifact %s: %w", id, err)
	}
	return &a, nil
}

// MarkServed records a successful download and when the artifact may be
// removed.
func (c *DBClient) MarkServed(id string, servedAt, expiresAt time.Time) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	res := c.DB.Model(&Artifact{}).Where("id = ?", id).Updates(map[string]any{
		"served_at":  servedAt.UTC(),
		"expires_at": expiresAt.UTC(),
	})
	if res.Error != nil {
		return fmt.Errorf("marking artifact %s served: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrArtifactNotFound
	}
	return nil
}

// DeleteArtifact removes the row; a missing row is not an error.
func (c *DBClient) DeleteArtifact(id string) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	return c.DB.Where("id = ?", id).Delete(&Artifact{}).Error
}

// ListExpired returns artifacts whose serving window closed before now, plus
// artifacts never served and created before unservedBefore.
func (c *DBClient) ListExpired(now, unservedBefore time.Time) ([]Artifact, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	var out []Artifact
	err := c.DB.
		Where("(expires_at IS NOT NULL AND expires_at <= ?) OR (served_at IS NULL AND created_at <= ?)",
			now.UTC(), unservedBefore.UTC()).
		Order("created_at").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("listing expired artifacts: %w", err)
	}
	return out, nil
}

// ListArtifacts returns the newest artifacts first. limit <= 0 means all.
func (c *DBClient) ListArtifacts(limit int) ([]Artifact, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	q := c.DB.Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []Artifact
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("listing artifacts: %w", err)
	}
	return out, nil
}

func (c *DBClient) CountArtifacts() (int64, error) {
	if c == nil || c.DB == nil {
		return 0, errors.New(errDBClientNil)
	}
	var n int64
	err := c.DB.Model(&Artifact{}).Count(&n).Error
	return n, err
}
