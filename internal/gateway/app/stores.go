package app

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"shiyin/internal/gateway/config"
	collectionrepo "shiyin/internal/gateway/repository/collection"
)

// collectionStore is the chosen origin wrapped in the read-through cache.
// db is non-nil only for the postgres backend and is closed on shutdown.
type collectionStore struct {
	store *collectionrepo.CachedStore
	db    *sql.DB
}

func initCollectionStore(ctx context.Context, cfg config.CollectionConfig, log *zap.Logger) (*collectionStore, error) {
	origin, db, err := chooseOrigin(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	cacheCfg := collectionrepo.DefaultCacheConfig()
	if cfg.CacheTTL > 0 {
		cacheCfg.TTL = cfg.CacheTTL
	}
	return &collectionStore{
		store: collectionrepo.NewCachedStore(origin, cacheCfg),
		db:    db,
	}, nil
}

func chooseOrigin(ctx context.Context, cfg config.CollectionConfig, log *zap.Logger) (collectionrepo.Store, *sql.DB, error) {
	switch cfg.Store {
	case config.StoreFile:
		fs, err := collectionrepo.NewFileStore(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize file store: %w", err)
		}
		log.Info("collection store: file", zap.String("path", cfg.Path))
		return fs, nil, nil
	case config.StorePostgres:
		db, err := collectionrepo.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open db: %w", err)
		}
		log.Info("collection store: postgres")
		return collectionrepo.NewPostgresStore(db), db, nil
	case config.StoreS3:
		s3Cfg := collectionrepo.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
			UseSSL:    cfg.S3.UseSSL,
		}
		s3, err := collectionrepo.NewS3Store(s3Cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize collection s3 store: %w", err)
		}
		log.Info("collection store: s3", zap.String("bucket", s3Cfg.Bucket), zap.String("endpoint", s3Cfg.Endpoint))
		return s3, nil, nil
	default:
		log.Info("collection store: in-memory")
		return collectionrepo.NewMemoryStore(), nil, nil
	}
}

func (c *collectionStore) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}
