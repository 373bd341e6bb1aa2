package store

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database wraps the GORM DB handle and exposes repository helpers.
type Database struct {
	gorm *gorm.DB
	mu   sync.Mutex
}

// Open initializes the SQLite-backed database at the provided path.
func Open(path string, silent bool) (*Database, error) {
	cfg := &gorm.Config{}
	if silent {
		cfg.Logger = logger.Default.LogMode(logger.Silent)
	}
	db, err := gorm.Open(sqlite.Open(path), cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&Analysis{}, &Session{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		logrus.WithError(err).Warn("enable WAL mode")
	}
	if err := db.Exec("PRAGMA synchronous=NORMAL").Error; err != nil {
		logrus.WithError(err).Warn("set synchronous pragma")
	}
	if err := applyIndexes(db); err != nil {
		return nil, fmt.Errorf("apply indexes: %w", err)
	}
	return &Database{gorm: db}, nil
}

func applyIndexes(db *gorm.DB) error {
	stmts := []string{
		"CREATE INDEX IF NOT EXISTS idx_analyses_grade_created ON analyses(grade, created_at)",
		"CREATE INDEX IF NOT EXISTS idx_analyses_safe_created ON analyses(safe_to_eat, created_at)",
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

// GORM exposes the raw gorm.DB handle.
func (d *Database) GORM() *gorm.DB {
	return d.gorm
}

// Close closes the underlying database connection.
func (d *Database) Close() error {
	if d == nil {
		return nil
	}
	sqlDB, err := d.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveAnalysis creates an analysis row.
func (d *Database) SaveAnalysis(a *Analysis) error {
	if a == nil {
		return errors.New("analysis is nil")
	}
	a.Filename = strings.TrimSpace(a.Filename)
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gorm.Create(a).Error
}

// GetAnalysis fetches one analysis by ID.
func (d *Database) GetAnalysis(id uint) (*Analysis, error) {
	var row Analysis
	if err := d.gorm.First(&row, id).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// CountAnalyses returns the number of persisted analyses.
func (d *Database) CountAnalyses() (int64, error) {
	var count int64
	if err := d.gorm.Model(&Analysis{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// AnalysisQuery carries the optional filters for listing analyses.
type AnalysisQuery struct {
	Query        string
	Grade        string
	SpoilageRisk string
	SafeOnly     *bool
	MinFreshness int
	Sort         string
	Offset       int
	Limit        int
}

// ListAnalyses returns paginated analysis records applying optional filters.
// Limit <= 0 returns every matching row (used by the exports).
func (d *Database) ListAnalyses(opts AnalysisQuery) ([]Analysis, int64, error) {
	var total int64
	base := d.gorm.Model(&Analysis{})
	if opts.Query != "" {
		like := fmt.Sprintf("%%%s%%", opts.Query)
		base = base.Where("filename LIKE ? OR pesticide_class LIKE ?", like, like)
	}
	if grade := strings.TrimSpace(opts.Grade); grade != "" {
		base = base.Where("grade = ?", strings.ToLower(grade))
	}
	if risk := strings.TrimSpace(opts.SpoilageRisk); risk != "" {
		base = base.Where("spoilage_risk = ?", risk)
	}
	if opts.SafeOnly != nil {
		base = base.Where("safe_to_eat = ?", *opts.SafeOnly)
	}
	if opts.MinFreshness > 0 {
		base = base.Where("freshness_score >= ?", opts.MinFreshness)
	}

	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	queryBuilder := base.Order(orderForSort(opts.Sort)).Offset(opts.Offset)
	if opts.Limit > 0 {
		queryBuilder = queryBuilder.Limit(opts.Limit)
	}

	var rows []Analysis
	if err := queryBuilder.Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func orderForSort(sort string) string {
	switch strings.ToLower(strings.TrimSpace(sort)) {
	case "freshness_desc":
		return "analyses.freshness_score DESC, analyses.id DESC"
	case "freshness_asc":
		return "analyses.freshness_score ASC, analyses.id DESC"
	case "weight_desc":
		return "analyses.estimated_weight_kg DESC, analyses.id DESC"
	case "weight_asc":
		return "analyses.estimated_weight_kg ASC, analyses.id DESC"
	case "created_asc":
		return "analyses.created_at ASC"
	case "created_desc":
		return "analyses.created_at DESC"
	default:
		return "analyses.id DESC"
	}
}

// CreateSession persists an issued login token.
func (d *Database) CreateSession(s *Session) error {
	if s == nil {
		return errors.New("session is nil")
	}
	if strings.TrimSpace(s.Token) == "" {
		return errors.New("session token is empty")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gorm.Create(s).Error
}

// GetSession fetches a session by token.
func (d *Database) GetSession(token string) (*Session, error) {
	var row Session
	if err := d.gorm.First(&row, "token = ?", token).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// DeleteSession removes the session for the given token.
func (d *Database) DeleteSession(token string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gorm.Delete(&Session{}, "token = ?", token).Error
}

// PurgeExpiredSessions deletes sessions past their expiry and reports how many.
func (d *Database) PurgeExpiredSessions(now time.Time) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	result := d.gorm.Delete(&Session{}, "expires_at < ?", now)
	return result.RowsAffected, result.Error
}
