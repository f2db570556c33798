package sqlstore

import (
	"fmt"

	"github.com/goliatone/go-provider-link/core"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"
)

type RepositoryFactory struct {
	db *bun.DB

	tempTokenStore   *TempTokenStore
	tokenStore       *TokenStore
	cachedTokenStore *CachedTokenStore
	tokenCache       repositorycache.CacheService
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

// UseTokenCache puts a read-through cache in front of token reads. It has to
// be set before BuildStores.
func (f *RepositoryFactory) UseTokenCache(cacheService repositorycache.CacheService) *RepositoryFactory {
	if f != nil {
		f.tokenCache = cacheService
	}
	return f
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.tempTokenStore != nil && f.tokenStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) TempTokenStore() core.TempTokenStore {
	if f == nil || f.tempTokenStore == nil {
		return nil
	}
	return f.tempTokenStore
}

func (f *RepositoryFactory) TokenStore() core.TokenStore {
	if f == nil {
		return nil
	}
	if f.cachedTokenStore != nil {
		return f.cachedTokenStore
	}
	if f.tokenStore == nil {
		return nil
	}
	return f.tokenStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	tempTokenStore, err := NewTempTokenStore(f.db)
	if err != nil {
		return err
	}
	tokenStore, err := NewTokenStore(f.db)
	if err != nil {
		return err
	}
	f.tempTokenStore = tempTokenStore
	f.tokenStore = tokenStore

	if f.tokenCache != nil {
		cached, err := NewCachedTokenStore(tokenStore, f.tokenCache)
		if err != nil {
			return err
		}
		f.cachedTokenStore = cached
	}
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
