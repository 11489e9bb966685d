package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"portfolio/pkg/domain"
	"portfolio/pkg/markup"
	"portfolio/pkg/storage"
	"portfolio/pkg/store"
)

const (
	defaultMaxUploadBytes int64 = 10 << 20
	cacheTimeout                = 3 * time.Second
	objectTimeout               = 10 * time.Second
	pingTimeout                 = 2 * time.Second
)

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL string

	JWTSecret   string
	SessionTTL  time.Duration
	JWTIssuer   string
	JWTAudience string

	// AdminEmails are granted the admin role when they sign up.
	AdminEmails []string

	RedisAddr       string
	RedisPassword   string
	ProfileCacheTTL time.Duration

	Minio          *storage.MinioOptions
	MaxUploadBytes int64

	// Injected dependencies take precedence over the settings above.
	Store    store.Store
	Sessions store.SessionStore
	Profiles store.ProfileCache
	Objects  storage.ObjectStore
}

// App is the core application service wiring together storage and auth logic.
type App struct {
	store          store.Store
	sessions       store.SessionStore
	profiles       store.ProfileCache
	objects        storage.ObjectStore
	adminEmails    map[string]struct{}
	maxUploadBytes int64
	closers        []io.Closer
}

// New constructs the application with database storage and session management.
func New(cfg Config) (*App, error) {
	a := &App{
		adminEmails:    normalizeEmails(cfg.AdminEmails),
		maxUploadBytes: cfg.MaxUploadBytes,
	}
	if a.maxUploadBytes <= 0 {
		a.maxUploadBytes = defaultMaxUploadBytes
	}

	a.store = cfg.Store
	if a.store == nil {
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("database URL required")
		}
		gormStore, err := store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
		a.store = gormStore
		a.closers = append(a.closers, gormStore)
	}

	a.sessions = cfg.Sessions
	if a.sessions == nil {
		jwtStore, err := store.NewJWTSessionStore(cfg.JWTSecret, cfg.SessionTTL, store.JWTOptions{
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init jwt session store: %w", err)
		}
		a.sessions = jwtStore
	}

	a.profiles = cfg.Profiles
	if a.profiles == nil && strings.TrimSpace(cfg.RedisAddr) != "" {
		cache := store.NewRedisProfileCache(cfg.RedisAddr, cfg.RedisPassword, cfg.ProfileCacheTTL)
		ctx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
		err := cache.Ping(ctx)
		cancel()
		if err != nil {
			// The cache is an optimization; run without it rather than fail.
			slog.Warn("profile cache unavailable", "addr", cfg.RedisAddr, "err", err)
			_ = cache.Close()
		} else {
			a.profiles = cache
			a.closers = append(a.closers, cache)
		}
	}

	a.objects = cfg.Objects
	if a.objects == nil && cfg.Minio != nil && strings.TrimSpace(cfg.Minio.Endpoint) != "" {
		minioStore, err := storage.NewMinioStore(*cfg.Minio)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init object storage: %w", err)
		}
		a.objects = minioStore
	}

	return a, nil
}

// Close releases resources the app opened itself.
func (a *App) Close() error {
	var firstErr error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}

// ImagesEnabled reports whether post images can be stored.
func (a *App) ImagesEnabled() bool {
	return a.objects != nil
}

// Ping checks the content store. Stores without a connection to check
// always report healthy.
func (a *App) Ping(ctx context.Context) error {
	p, ok := a.store.(interface{ Ping(context.Context) error })
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return p.Ping(ctx)
}

// MaxUploadBytes is the largest accepted post image.
func (a *App) MaxUploadBytes() int64 {
	return a.maxUploadBytes
}

// decoratePosts fills the read-time fields: authors, excerpt and counters.
func (a *App) decoratePosts(posts []domain.Post) error {
	if len(posts) == 0 {
		return nil
	}
	seen := make(map[string]struct{})
	var ids []string
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for _, p := range posts {
		add(p.UserID)
		for _, c := range p.Comments {
			add(c.UserID)
		}
	}
	authors, err := a.resolveAuthors(ids)
	if err != nil {
		return err
	}

	for i := range posts {
		p := &posts[i]
		if author, ok := authors[p.UserID]; ok {
			p.Author = &author
		}
		if p.Comments == nil {
			p.Comments = []domain.Comment{}
		}
		if p.Likes == nil {
			p.Likes = []string{}
		}
		for j := range p.Comments {
			if author, ok := authors[p.Comments[j].UserID]; ok {
				p.Comments[j].Author = &author
			}
		}
		p.Excerpt = markup.Excerpt(p.Content, markup.DefaultExcerptRunes)
		p.LikeCount = len(p.Likes)
		p.CommentCount = len(p.Comments)
	}
	return nil
}

// resolveAuthors looks authors up in the profile cache first and falls back
// to the store for misses. Cache failures only cost latency.
func (a *App) resolveAuthors(ids []string) (map[string]domain.Author, error) {
	res := make(map[string]domain.Author, len(ids))
	if len(ids) == 0 {
		return res, nil
	}
	missing := ids
	if a.profiles != nil {
		ctx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
		cached, err := a.profiles.GetAuthors(ctx, ids)
		cancel()
		if err != nil {
			slog.Warn("profile cache read failed", "err", err)
		}
		missing = missing[:0:0]
		for _, id := range ids {
			if author, ok := cached[id]; ok {
				res[id] = author
				continue
			}
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return res, nil
	}
	users, err := a.store.GetUsersByIDs(missing)
	if err != nil {
		return nil, fmt.Errorf("resolve authors: %w", err)
	}
	fetched := make([]domain.Author, 0, len(users))
	for id, u := range users {
		author := domain.AuthorOf(u)
		res[id] = author
		fetched = append(fetched, author)
	}
	if a.profiles != nil && len(fetched) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
		if err := a.profiles.SetAuthors(ctx, fetched); err != nil {
			slog.Warn("profile cache write failed", "err", err)
		}
		cancel()
	}
	return res, nil
}

func normalizeEmails(emails []string) map[string]struct{} {
	out := make(map[string]struct{}, len(emails))
	for _, email := range emails {
		email = normalizeEmail(email)
		if email != "" {
			out[email] = struct{}{}
		}
	}
	return out
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
