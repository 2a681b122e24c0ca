package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/use-agent/tokscrape/cache"
	"github.com/use-agent/tokscrape/config"
	"github.com/use-agent/tokscrape/extractor"
	"github.com/use-agent/tokscrape/models"
)

// Scraper is the entry point for profile and video extraction. It builds
// target URLs, consults the optional cache, and runs the Pipeline.
// It is safe for concurrent use.
type Scraper struct {
	pipeline *Pipeline
	baseURL  string
	cache    *cache.Cache
}

// New wires a Scraper on top of sessions using cfg's site, scraper and
// cache settings. A cache TTL of 0 disables caching.
func New(cfg *config.Config, sessions SessionProvider) *Scraper {
	s := &Scraper{
		pipeline: NewPipeline(
			sessions,
			NewNavigator(cfg.Scraper),
			extractor.New(),
			cfg.Scraper.MaxAttempts,
			cfg.Scraper.RetryDelay,
		),
		baseURL: strings.TrimRight(cfg.Site.BaseURL, "/"),
	}
	if cfg.Cache.TTL > 0 {
		s.cache = cache.New(cfg.Cache.TTL, cfg.Cache.MaxEntries)
		slog.Info("record cache enabled", "ttl", cfg.Cache.TTL, "max_entries", cfg.Cache.MaxEntries)
	}
	return s
}

// NewWithPipeline creates a Scraper around an existing Pipeline.
func NewWithPipeline(p *Pipeline, baseURL string, c *cache.Cache) *Scraper {
	return &Scraper{pipeline: p, baseURL: strings.TrimRight(baseURL, "/"), cache: c}
}

// ProfileURL returns the profile page URL for username.
func (s *Scraper) ProfileURL(username string) string {
	return s.baseURL + "/@" + url.PathEscape(username)
}

// Profile extracts the public profile of username.
func (s *Scraper) Profile(ctx context.Context, username string) (*models.Profile, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "username is required", nil)
	}

	rec, err := s.fetch(ctx, s.ProfileURL(username), models.KindProfile)
	if err != nil {
		return nil, err
	}
	p, ok := rec.(*models.Profile)
	if !ok {
		return nil, internalKindError(models.KindProfile, rec)
	}
	return p, nil
}

// Video extracts the video at videoURL. The URL is used as given.
func (s *Scraper) Video(ctx context.Context, videoURL string) (*models.Video, error) {
	if strings.TrimSpace(videoURL) == "" {
		return nil, models.NewScrapeError(models.ErrCodeInvalidInput, "video url is required", nil)
	}

	rec, err := s.fetch(ctx, videoURL, models.KindVideo)
	if err != nil {
		return nil, err
	}
	v, ok := rec.(*models.Video)
	if !ok {
		return nil, internalKindError(models.KindVideo, rec)
	}
	return v, nil
}

// Close stops the cache janitor. It does not touch browser sessions.
func (s *Scraper) Close() {
	if s.cache != nil {
		s.cache.Stop()
	}
}

func (s *Scraper) fetch(ctx context.Context, target string, kind models.Kind) (models.Record, error) {
	var key string
	if s.cache != nil {
		key = cache.Key(kind, target)
		if rec, ok := s.cache.Get(key); ok {
			slog.Debug("cache hit", "url", target, "kind", kind, "request_id", RequestID(ctx))
			return rec, nil
		}
	}

	res, err := s.pipeline.Run(ctx, target, kind)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(key, res.Record)
	}
	return res.Record, nil
}

func internalKindError(want models.Kind, rec models.Record) error {
	return models.NewScrapeError(
		models.ErrCodeInternal,
		fmt.Sprintf("extractor returned %T for %s", rec, want),
		errors.New("record kind mismatch"),
	)
}

type requestIDKey struct{}

// WithRequestID returns a copy of ctx carrying the request ID used in logs.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request ID stored in ctx, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
