package app

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"medcatalog/api/internal/auth"
	"medcatalog/api/internal/blob"
	"medcatalog/api/internal/cache"
	"medcatalog/api/internal/config"
	"medcatalog/api/internal/logger"
	"medcatalog/api/internal/search"
	"medcatalog/api/internal/store"
)

// Runtime holds a Service wired against the configured backends and the
// resources that must be released on shutdown.
type Runtime struct {
	Service *Service
	Auth    *auth.Validator
	DB      *sql.DB

	closers []func()
}

// Build connects to Postgres, the blob store and the optional cache, index
// and identity provider described by cfg.
func Build(ctx context.Context, cfg config.Config, log *logger.Logger) (*Runtime, error) {
	rt := &Runtime{}

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	rt.DB = db
	rt.closers = append(rt.closers, func() { _ = db.Close() })

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir, log); err != nil {
		rt.Close()
		return nil, fmt.Errorf("migrations failed: %w", err)
	}
	dataStore := store.NewPostgresStore(db)

	blobs, err := blob.NewMinioStore(blob.MinioConfig{
		Endpoint:      cfg.S3Endpoint,
		AccessKeyID:   cfg.S3AccessKeyID,
		SecretKey:     cfg.S3SecretKey,
		Region:        cfg.S3Region,
		UseSSL:        cfg.S3UseSSL,
		BucketPrefix:  cfg.S3BucketPrefix,
		PublicBaseURL: cfg.PublicBaseURL(),
	}, log)
	if err != nil {
		rt.Close()
		return nil, err
	}
	if err := blobs.EnsureBuckets(ctx); err != nil {
		rt.Close()
		return nil, fmt.Errorf("ensure buckets: %w", err)
	}

	deps := Dependencies{
		Store: dataStore,
		Blobs: blobs,
		Log:   log,
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisCache, err := cache.NewRedisCache(cfg.RedisURL, cfg.CacheTTL)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		rt.closers = append(rt.closers, func() { _ = redisCache.Close() })
		deps.Cache = redisCache
		log.Info("listing cache enabled", "ttl", cfg.CacheTTL.String())
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
		rt.closers = append(rt.closers, meiliClient.Close)
	}
	deps.Index = search.NewService(meiliClient, search.NewSubstring(dataStore), log)

	validator, err := auth.NewValidator(ctx, auth.Options{
		Enabled:     cfg.AuthEnabled,
		Issuer:      cfg.AuthIssuer,
		Audience:    cfg.AuthAudience,
		JWKSURL:     cfg.AuthJWKSURL,
		RoleClaim:   cfg.RoleClaim,
		AdminEmails: cfg.AdminEmails,
	}, log)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("auth setup failed: %w", err)
	}
	if validator.Enabled() {
		rt.Auth = validator
		rt.closers = append(rt.closers, validator.Close)
	} else {
		log.Warn("authentication disabled, requests act as the local admin")
	}

	rt.Service = New(deps)
	return rt, nil
}

// Authenticator returns the request authenticator, or nil when
// authentication is disabled.
func (rt *Runtime) Authenticator() authenticator {
	if rt.Auth == nil {
		return nil
	}
	return rt.Auth
}

// Close releases resources in reverse acquisition order.
func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}
