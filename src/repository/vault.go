package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ExpirySkew is how long before its expiry a cached token stops being
// handed out.
const ExpirySkew = 5 * time.Minute

// TokenVault caches user tokens on top of a TokenStore. Tokens close to
// expiry are evicted lazily on read.
type TokenVault struct {
	store TokenStore
	now   func() time.Time
	log   *logrus.Entry
}

func NewTokenVault(store TokenStore, logger *logrus.Logger) *TokenVault {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &TokenVault{
		store: store,
		now:   time.Now,
		log:   logger.WithField("component", "token-vault"),
	}
}

// Save stores record for userID, stamping the save time.
func (v *TokenVault) Save(ctx context.Context, userID string, record TokenRecord) error {
	if strings.TrimSpace(userID) == "" {
		return errors.New("user id is required")
	}
	if record.AccessToken == "" {
		return errors.New("access token is required")
	}
	record.SavedAt = v.now().UTC()
	if err := v.store.Put(ctx, userID, record); err != nil {
		return fmt.Errorf("save token for %s: %w", userID, err)
	}
	v.log.WithField("user", userID).Info("token saved")
	return nil
}

// AccessToken returns the cached access token of userID. A token expiring
// within ExpirySkew is evicted and reported as ErrTokenNotFound.
func (v *TokenVault) AccessToken(ctx context.Context, userID string) (string, error) {
	record, err := v.store.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	if record.ExpiresOn.Sub(v.now()) < ExpirySkew {
		v.log.WithField("user", userID).Info("token expired, evicting")
		if err := v.store.Evict(ctx, userID); err != nil {
			v.log.WithError(err).WithField("user", userID).Warn("evict failed")
		}
		return "", ErrTokenNotFound
	}
	return record.AccessToken, nil
}
