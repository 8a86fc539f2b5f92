// Package service contains the URL shortening business logic: mapping
// creation, the cached resolve path, analytics aggregation and soft deletion.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/Tcdrol/url-shortener/internal/cache"
	"github.com/Tcdrol/url-shortener/internal/database"
	"github.com/Tcdrol/url-shortener/internal/models"
)

var (
	// ErrInvalidURL is returned when the original URL is not an absolute http(s) URL.
	ErrInvalidURL = errors.New("invalid url")
	// ErrInvalidCustomCode is returned when a requested custom code violates
	// the 3-20 character [A-Za-z0-9_-] contract.
	ErrInvalidCustomCode = errors.New("invalid custom code")
	// ErrCodeConflict is returned when a requested custom code is already
	// assigned to any mapping, soft-deleted ones included.
	ErrCodeConflict = errors.New("short code conflict")
	// ErrMaxRetriesExceeded is returned when the maximum number of retries
	// for generating a short code is exceeded.
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded for generating short code")
)

// codeAlphabet is the 62-symbol alphabet for generated short codes.
const codeAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

var customCodeRegexp = regexp.MustCompile(`^[A-Za-z0-9_-]{3,20}$`)

const (
	defaultCodeLength = 8
	defaultCacheTTL   = 5 * time.Minute
	maxCreateRetries  = 5

	// visitTimeout bounds the detached click/analytics update issued on the
	// cache-hit path.
	visitTimeout = 10 * time.Second

	// statsVisitLimit caps how many analytics records one stats aggregation
	// reads. Older entries stay in storage but drop out of the breakdown.
	statsVisitLimit = 5000
)

// URLRepository defines the mapping store operations used by the service.
type URLRepository interface {
	// Create inserts a new mapping. Returns database.ErrShortCodeExists
	// when the short code is already assigned.
	Create(ctx context.Context, url *models.URL) (*models.URL, error)

	// GetByShortCode retrieves a mapping regardless of active or expiry state.
	GetByShortCode(ctx context.Context, shortCode string) (*models.URL, error)

	// GetResolvable retrieves a mapping only if it may still serve redirects.
	GetResolvable(ctx context.Context, shortCode string) (*models.URL, error)

	// GetByOriginalURL retrieves the resolvable mapping for an original URL
	// within one owner scope.
	GetByOriginalURL(ctx context.Context, originalURL, ownerID string) (*models.URL, error)

	// ListByOwner returns active mappings for an owner scope, newest first.
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*models.URL, error)

	// RegisterVisit atomically increments clicks, refreshes last_accessed and
	// appends one analytics record, returning the post-update mapping.
	RegisterVisit(ctx context.Context, shortCode string, visit models.Visit) (*models.URL, error)

	// ListVisits returns up to limit analytics records, newest first.
	ListVisits(ctx context.Context, urlID int64, limit int) ([]models.Visit, error)

	// SoftDelete marks a mapping inactive, owner-scoped when ownerID is set.
	SoftDelete(ctx context.Context, shortCode, ownerID string) error

	// SetTitle backfills the page title fetched after creation.
	SetTitle(ctx context.Context, shortCode, title string) error
}

// URLService provides the URL shortening operations on top of the mapping
// store and the read-through cache.
type URLService struct {
	repo       URLRepository
	cache      cache.Cache
	logger     *slog.Logger
	codeLength int
	cacheTTL   time.Duration
	fetchTitle titleFetcher
}

type Option func(*URLService)

func WithCodeLength(n int) Option {
	return func(s *URLService) {
		s.codeLength = n
	}
}

func WithCacheTTL(d time.Duration) Option {
	return func(s *URLService) {
		s.cacheTTL = d
	}
}

// WithTitleFetcher overrides how the title backfill retrieves page titles.
// Passing nil disables the backfill entirely.
func WithTitleFetcher(f titleFetcher) Option {
	return func(s *URLService) {
		s.fetchTitle = f
	}
}

// NewURLService creates a new URLService on top of the given repository,
// cache and logger.
func NewURLService(repo URLRepository, c cache.Cache, logger *slog.Logger, opts ...Option) *URLService {
	s := &URLService{
		repo:       repo,
		cache:      c,
		logger:     logger,
		codeLength: defaultCodeLength,
		cacheTTL:   defaultCacheTTL,
		fetchTitle: newHTTPTitleFetcher(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func urlKey(shortCode string) string {
	return "url:" + shortCode
}

func statsKey(shortCode string) string {
	return "stats:" + shortCode
}

// CreateParams carries the create request payload.
type CreateParams struct {
	OriginalURL string
	OwnerID     string
	CustomCode  string
	ExpiresIn   int // days from now; 0 means no expiry
	Title       string
	Description string
	Tags        []string
}

// Shorten creates a mapping for the original URL, or returns the existing
// resolvable one for the same URL and owner scope. The second return value
// reports whether a new mapping was created.
func (s *URLService) Shorten(ctx context.Context, params CreateParams) (*models.URL, bool, error) {
	const op = "service.URLService.Shorten"

	if !validOriginalURL(params.OriginalURL) {
		return nil, false, fmt.Errorf("%s: %w", op, ErrInvalidURL)
	}

	existing, err := s.repo.GetByOriginalURL(ctx, params.OriginalURL, params.OwnerID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, database.ErrURLNotFound) {
		return nil, false, fmt.Errorf("%s: failed to check for existing mapping: %w", op, err)
	}

	var expiresAt *time.Time
	if params.ExpiresIn > 0 {
		t := time.Now().AddDate(0, 0, params.ExpiresIn)
		expiresAt = &t
	}

	newURL := &models.URL{
		OriginalURL: params.OriginalURL,
		OwnerID:     params.OwnerID,
		Title:       params.Title,
		Description: params.Description,
		Tags:        params.Tags,
		ExpiresAt:   expiresAt,
	}

	var created *models.URL
	if params.CustomCode != "" {
		created, err = s.createWithCustomCode(ctx, newURL, params.CustomCode)
	} else {
		created, err = s.createWithGeneratedCode(ctx, newURL)
	}
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	// Defensive: a code may have been cached before an external hard delete.
	if err := s.cache.Delete(ctx, urlKey(created.ShortCode)); err != nil {
		s.logger.Warn("failed to invalidate cache entry",
			slog.String("short_code", created.ShortCode), slog.Any("err", err))
	}

	if created.Title == "" && s.fetchTitle != nil {
		go s.backfillTitle(created.ShortCode, created.OriginalURL)
	}

	return created, true, nil
}

func (s *URLService) createWithCustomCode(ctx context.Context, newURL *models.URL, code string) (*models.URL, error) {
	if !customCodeRegexp.MatchString(code) {
		return nil, ErrInvalidCustomCode
	}

	// Pre-check covers soft-deleted mappings too; the insert's uniqueness
	// constraint stays authoritative for the race in between.
	_, err := s.repo.GetByShortCode(ctx, code)
	if err == nil {
		return nil, ErrCodeConflict
	}
	if !errors.Is(err, database.ErrURLNotFound) {
		return nil, fmt.Errorf("failed to check custom code: %w", err)
	}

	newURL.ShortCode = code

	created, err := s.repo.Create(ctx, newURL)
	if err != nil {
		if errors.Is(err, database.ErrShortCodeExists) {
			return nil, ErrCodeConflict
		}

		return nil, fmt.Errorf("failed to create mapping: %w", err)
	}

	return created, nil
}

func (s *URLService) createWithGeneratedCode(ctx context.Context, newURL *models.URL) (*models.URL, error) {
	for i := 0; i < maxCreateRetries; i++ {
		code, err := gonanoid.Generate(codeAlphabet, s.codeLength)
		if err != nil {
			return nil, fmt.Errorf("failed to generate short code: %w", err)
		}

		newURL.ShortCode = code

		created, err := s.repo.Create(ctx, newURL)
		if err != nil {
			if errors.Is(err, database.ErrShortCodeExists) {
				continue
			}

			return nil, fmt.Errorf("failed to create mapping: %w", err)
		}

		return created, nil
	}

	return nil, ErrMaxRetriesExceeded
}

// Resolve returns the live mapping for a short code, registering the visit.
//
// On a cache hit the cached record is returned immediately and the click
// counter update runs detached from the request, so redirect latency stays
// bounded by the cache lookup. On a miss the store update is synchronous and
// the post-update record repopulates the cache.
func (s *URLService) Resolve(ctx context.Context, shortCode string, visit models.Visit) (*models.URL, error) {
	const op = "service.URLService.Resolve"

	if visit.Timestamp.IsZero() {
		visit.Timestamp = time.Now()
	}

	data, err := s.cache.Get(ctx, urlKey(shortCode))
	if err == nil {
		cached := new(models.URL)
		if uerr := json.Unmarshal(data, cached); uerr == nil {
			// A mapping may have expired within the cache TTL; serve only
			// records that are still resolvable right now.
			if cached.Resolvable(visit.Timestamp) {
				s.registerVisitDetached(shortCode, visit)
				return cached, nil
			}
		} else {
			s.logger.Warn("failed to decode cached mapping",
				slog.String("short_code", shortCode), slog.Any("err", uerr))
		}
	} else if !errors.Is(err, cache.ErrMiss) {
		s.logger.Warn("cache lookup failed",
			slog.String("short_code", shortCode), slog.Any("err", err))
	}

	updated, err := s.repo.RegisterVisit(ctx, shortCode, visit)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to resolve short code: %w", op, err)
	}

	s.cacheURL(ctx, updated)

	return updated, nil
}

// registerVisitDetached issues the increment/analytics update off the
// critical path. Failures are logged and dropped, never retried; the click
// counter is eventually consistent on the cache-hit path.
func (s *URLService) registerVisitDetached(shortCode string, visit models.Visit) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), visitTimeout)
		defer cancel()

		if _, err := s.repo.RegisterVisit(ctx, shortCode, visit); err != nil {
			s.logger.Error("failed to register visit",
				slog.String("short_code", shortCode), slog.Any("err", err))
		}
	}()
}

func (s *URLService) cacheURL(ctx context.Context, u *models.URL) {
	data, err := json.Marshal(u)
	if err != nil {
		s.logger.Warn("failed to encode mapping for cache",
			slog.String("short_code", u.ShortCode), slog.Any("err", err))
		return
	}

	if err := s.cache.Set(ctx, urlKey(u.ShortCode), data, s.cacheTTL); err != nil {
		s.logger.Warn("failed to cache mapping",
			slog.String("short_code", u.ShortCode), slog.Any("err", err))
	}
}

// Stats returns the aggregated analytics view for a resolvable mapping. The
// aggregate is cached for the same TTL as the base record, under its own key.
func (s *URLService) Stats(ctx context.Context, shortCode string) (*models.URLStats, error) {
	const op = "service.URLService.Stats"

	data, err := s.cache.Get(ctx, statsKey(shortCode))
	if err == nil {
		stats := new(models.URLStats)
		uerr := json.Unmarshal(data, stats)
		if uerr == nil {
			return stats, nil
		}

		s.logger.Warn("failed to decode cached stats",
			slog.String("short_code", shortCode), slog.Any("err", uerr))
	} else if !errors.Is(err, cache.ErrMiss) {
		s.logger.Warn("cache lookup failed",
			slog.String("short_code", shortCode), slog.Any("err", err))
	}

	u, err := s.repo.GetResolvable(ctx, shortCode)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get url stats: %w", op, err)
	}

	visits, err := s.repo.ListVisits(ctx, u.ID, statsVisitLimit)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to list visits: %w", op, err)
	}

	stats := aggregateVisits(u, visits, time.Now())

	if data, err := json.Marshal(stats); err == nil {
		if err := s.cache.Set(ctx, statsKey(shortCode), data, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache stats",
				slog.String("short_code", shortCode), slog.Any("err", err))
		}
	}

	return stats, nil
}

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// List returns active mappings for an owner scope, newest first.
func (s *URLService) List(ctx context.Context, ownerID string, page, limit int) ([]*models.URL, error) {
	const op = "service.URLService.List"

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > maxPageLimit {
		limit = defaultPageLimit
	}

	urls, err := s.repo.ListByOwner(ctx, ownerID, limit, (page-1)*limit)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to list mappings: %w", op, err)
	}

	return urls, nil
}

// Delete soft-deletes a mapping and drops both of its cache entries. The
// record itself stays in storage; only resolution and stats stop working.
func (s *URLService) Delete(ctx context.Context, shortCode, ownerID string) error {
	const op = "service.URLService.Delete"

	if err := s.repo.SoftDelete(ctx, shortCode, ownerID); err != nil {
		return fmt.Errorf("%s: failed to delete mapping: %w", op, err)
	}

	for _, key := range []string{urlKey(shortCode), statsKey(shortCode)} {
		if err := s.cache.Delete(ctx, key); err != nil {
			s.logger.Warn("failed to invalidate cache entry",
				slog.String("key", key), slog.Any("err", err))
		}
	}

	return nil
}

func validOriginalURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}

	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
