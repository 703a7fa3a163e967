package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	cfg "eventgallery/src/configuration"

	"github.com/sirupsen/logrus"
)

var ErrTokenNotFound = errors.New("token not found or expired")

type (
	// TokenRecord is the cached token set of one user.
	TokenRecord struct {
		AccessToken  string
		RefreshToken string
		ExpiresOn    time.Time
		Scopes       []string
		SavedAt      time.Time
	}

	// TokenStore persists token records keyed by user id.
	TokenStore interface {
		Get(ctx context.Context, userID string) (TokenRecord, error)
		Put(ctx context.Context, userID string, record TokenRecord) error
		Evict(ctx context.Context, userID string) error
	}

	InMemoryTokenStore struct {
		mu    sync.RWMutex
		table map[string]TokenRecord
	}
)

// NewTokenStore opens the store selected by the token store driver.
func NewTokenStore(config *cfg.Properties, logger *logrus.Logger) (TokenStore, error) {
	if config == nil {
		return nil, fmt.Errorf("config is not valid")
	}
	switch config.TokenStore.Driver {
	case cfg.TokenStorePostgres:
		return NewPostgresTokenStore(logger, config.TokenStore.DSN)
	case cfg.TokenStoreMemory, "":
		return NewInMemoryTokenStore(), nil
	default:
		return nil, fmt.Errorf("unknown token store driver %q", config.TokenStore.Driver)
	}
}

func NewInMemoryTokenStore() *InMemoryTokenStore {
	return &InMemoryTokenStore{table: make(map[string]TokenRecord)}
}

func (i *InMemoryTokenStore) Get(_ context.Context, userID string) (TokenRecord, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	record, ok := i.table[userID]
	if !ok {
		return TokenRecord{}, ErrTokenNotFound
	}
	return record, nil
}

func (i *InMemoryTokenStore) Put(_ context.Context, userID string, record TokenRecord) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.table[userID] = record
	return nil
}

func (i *InMemoryTokenStore) Evict(_ context.Context, userID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.table, userID)
	return nil
}
