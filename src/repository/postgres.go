package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type tokenRow struct {
	UserID       string    `gorm:"primaryKey;size:255"`
	AccessToken  string    `gorm:"type:text;not null"`
	RefreshToken string    `gorm:"type:text"`
	ExpiresOn    time.Time `gorm:"index"`
	Scopes       string
	SavedAt      time.Time
}

func (tokenRow) TableName() string {
	return "cached_tokens"
}

// PostgresTokenStore keeps token records in the cached_tokens table.
type PostgresTokenStore struct {
	db *gorm.DB
}

// NewPostgresTokenStore connects to dsn, retrying with backoff, and migrates
// the token table.
func NewPostgresTokenStore(logger *logrus.Logger, dsn string) (*PostgresTokenStore, error) {
	if dsn == "" {
		return nil, errors.New("token store dsn is required for the postgres driver")
	}
	log := logger.WithField("component", "token-store")

	var db *gorm.DB
	var err error
	const maxRetries = 5
	retryDelay := 2 * time.Second

	for attempt := 1; attempt <= maxRetries; attempt++ {
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err == nil {
			break
		}
		log.WithFields(logrus.Fields{
			"attempt": attempt,
			"error":   err,
		}).Warn("Database connection failed")

		if attempt < maxRetries {
			time.Sleep(retryDelay)
			retryDelay *= 2
		}
	}
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	if err := db.AutoMigrate(&tokenRow{}); err != nil {
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	log.Info("Token store connected")
	return &PostgresTokenStore{db: db}, nil
}

func (p *PostgresTokenStore) Get(ctx context.Context, userID string) (TokenRecord, error) {
	var row tokenRow
	err := p.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return TokenRecord{}, ErrTokenNotFound
	}
	if err != nil {
		return TokenRecord{}, fmt.Errorf("load token: %w", err)
	}
	record := TokenRecord{
		AccessToken:  row.AccessToken,
		RefreshToken: row.RefreshToken,
		ExpiresOn:    row.ExpiresOn,
		SavedAt:      row.SavedAt,
	}
	if row.Scopes != "" {
		record.Scopes = strings.Fields(row.Scopes)
	}
	return record, nil
}

func (p *PostgresTokenStore) Put(ctx context.Context, userID string, record TokenRecord) error {
	row := tokenRow{
		UserID:       userID,
		AccessToken:  record.AccessToken,
		RefreshToken: record.RefreshToken,
		ExpiresOn:    record.ExpiresOn,
		Scopes:       strings.Join(record.Scopes, " "),
		SavedAt:      record.SavedAt,
	}
	err := p.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	return nil
}

func (p *PostgresTokenStore) Evict(ctx context.Context, userID string) error {
	if err := p.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&tokenRow{}).Error; err != nil {
		return fmt.Errorf("evict token: %w", err)
	}
	return nil
}
