package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/Tcdrol/url-shortener/internal/database"
	"github.com/Tcdrol/url-shortener/internal/models"
)

// resolvableFilter matches mappings that may still serve redirects:
// not soft-deleted and not past their expiry.
const resolvableFilter = `is_active AND (expires_at IS NULL OR expires_at > now())`

type urlRecord struct {
	ID           int64       `db:"id"`
	ShortCode    string      `db:"short_code"`
	OriginalURL  string      `db:"original_url"`
	OwnerID      string      `db:"owner_id"`
	Title        string      `db:"title"`
	Description  string      `db:"description"`
	Tags         models.Tags `db:"tags"`
	Clicks       int64       `db:"clicks"`
	IsActive     bool        `db:"is_active"`
	LastAccessed *time.Time  `db:"last_accessed"`
	ExpiresAt    *time.Time  `db:"expires_at"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
}

func (r *urlRecord) ToURL() *models.URL {
	return &models.URL{
		ID:           r.ID,
		ShortCode:    r.ShortCode,
		OriginalURL:  r.OriginalURL,
		OwnerID:      r.OwnerID,
		Title:        r.Title,
		Description:  r.Description,
		Tags:         r.Tags,
		Clicks:       r.Clicks,
		IsActive:     r.IsActive,
		LastAccessed: r.LastAccessed,
		ExpiresAt:    r.ExpiresAt,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

type visitRecord struct {
	ID        int64     `db:"id"`
	URLID     int64     `db:"url_id"`
	Timestamp time.Time `db:"ts"`
	IP        string    `db:"ip"`
	UserAgent string    `db:"user_agent"`
	Referrer  string    `db:"referrer"`
}

func (r *visitRecord) ToVisit() models.Visit {
	return models.Visit{
		ID:        r.ID,
		URLID:     r.URLID,
		Timestamp: r.Timestamp,
		IP:        r.IP,
		UserAgent: r.UserAgent,
		Referrer:  r.Referrer,
	}
}

// URLRepository is the Postgres-backed mapping store.
type URLRepository struct {
	db *sqlx.DB
}

func NewURLRepository(db *sqlx.DB) *URLRepository {
	return &URLRepository{
		db: db,
	}
}

// Create inserts a new mapping. The short code must be unassigned among all
// mappings, soft-deleted included; a unique violation maps to ErrShortCodeExists.
func (r *URLRepository) Create(ctx context.Context, url *models.URL) (*models.URL, error) {
	const op = "database.postgres.URLRepository.Create"

	rec := new(urlRecord)
	query := `INSERT INTO urls(short_code, original_url, owner_id, title, description, tags, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING *`

	err := r.db.GetContext(ctx, rec, query,
		url.ShortCode, url.OriginalURL, url.OwnerID, url.Title, url.Description, url.Tags, url.ExpiresAt)
	if err != nil {
		if isUniqueViolationError(err) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrShortCodeExists)
		}

		return nil, fmt.Errorf("%s: failed to create url record: %w", op, err)
	}

	return rec.ToURL(), nil
}

// GetByShortCode retrieves a mapping regardless of its active or expiry state.
// Used for custom code conflict checks, which cover soft-deleted mappings too.
func (r *URLRepository) GetByShortCode(ctx context.Context, shortCode string) (*models.URL, error) {
	const op = "database.postgres.URLRepository.GetByShortCode"

	rec := new(urlRecord)
	query := `SELECT * FROM urls WHERE short_code = $1`

	err := r.db.GetContext(ctx, rec, query, shortCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrURLNotFound)
		}

		return nil, fmt.Errorf("%s: failed to get url record: %w", op, err)
	}

	return rec.ToURL(), nil
}

// GetResolvable retrieves a mapping only if it may still serve redirects.
func (r *URLRepository) GetResolvable(ctx context.Context, shortCode string) (*models.URL, error) {
	const op = "database.postgres.URLRepository.GetResolvable"

	rec := new(urlRecord)
	query := `SELECT * FROM urls WHERE short_code = $1 AND ` + resolvableFilter

	err := r.db.GetContext(ctx, rec, query, shortCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrURLNotFound)
		}

		return nil, fmt.Errorf("%s: failed to get url record: %w", op, err)
	}

	return rec.ToURL(), nil
}

// GetByOriginalURL retrieves the resolvable mapping for an original URL within
// one owner scope. Backs the idempotent create path.
func (r *URLRepository) GetByOriginalURL(ctx context.Context, originalURL, ownerID string) (*models.URL, error) {
	const op = "database.postgres.URLRepository.GetByOriginalURL"

	rec := new(urlRecord)
	query := `SELECT * FROM urls WHERE original_url = $1 AND owner_id = $2 AND ` + resolvableFilter

	err := r.db.GetContext(ctx, rec, query, originalURL, ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrURLNotFound)
		}

		return nil, fmt.Errorf("%s: failed to get url record: %w", op, err)
	}

	return rec.ToURL(), nil
}

// ListByOwner returns active mappings for an owner scope, newest first.
func (r *URLRepository) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*models.URL, error) {
	const op = "database.postgres.URLRepository.ListByOwner"

	var recs []urlRecord
	query := `SELECT * FROM urls
		WHERE owner_id = $1 AND is_active
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	err := r.db.SelectContext(ctx, &recs, query, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to list url records: %w", op, err)
	}

	urls := make([]*models.URL, 0, len(recs))
	for i := range recs {
		urls = append(urls, recs[i].ToURL())
	}

	return urls, nil
}

// RegisterVisit atomically increments the click counter, refreshes
// last_accessed and appends one analytics record, returning the post-update
// mapping. Only resolvable mappings match; otherwise ErrURLNotFound.
func (r *URLRepository) RegisterVisit(ctx context.Context, shortCode string, visit models.Visit) (*models.URL, error) {
	const op = "database.postgres.URLRepository.RegisterVisit"

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to begin transaction: %w", op, err)
	}
	defer tx.Rollback() //nolint:errcheck

	rec := new(urlRecord)
	query := `UPDATE urls
		SET clicks = clicks + 1, last_accessed = $2, updated_at = now()
		WHERE short_code = $1 AND ` + resolvableFilter + `
		RETURNING *`

	if err := tx.GetContext(ctx, rec, query, shortCode, visit.Timestamp); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrURLNotFound)
		}

		return nil, fmt.Errorf("%s: failed to update url record: %w", op, err)
	}

	query = `INSERT INTO visits(url_id, ts, ip, user_agent, referrer)
		VALUES ($1, $2, $3, $4, $5)`

	if _, err := tx.ExecContext(ctx, query,
		rec.ID, visit.Timestamp, visit.IP, visit.UserAgent, visit.Referrer); err != nil {
		return nil, fmt.Errorf("%s: failed to insert visit record: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: failed to commit transaction: %w", op, err)
	}

	return rec.ToURL(), nil
}

// ListVisits returns up to limit analytics records for a mapping, newest first.
func (r *URLRepository) ListVisits(ctx context.Context, urlID int64, limit int) ([]models.Visit, error) {
	const op = "database.postgres.URLRepository.ListVisits"

	var recs []visitRecord
	query := `SELECT * FROM visits
		WHERE url_id = $1
		ORDER BY ts DESC
		LIMIT $2`

	err := r.db.SelectContext(ctx, &recs, query, urlID, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to list visit records: %w", op, err)
	}

	visits := make([]models.Visit, 0, len(recs))
	for i := range recs {
		visits = append(visits, recs[i].ToVisit())
	}

	return visits, nil
}

// SoftDelete marks a mapping inactive. The record stays in storage. When
// ownerID is non-empty only that owner's mapping matches.
func (r *URLRepository) SoftDelete(ctx context.Context, shortCode, ownerID string) error {
	const op = "database.postgres.URLRepository.SoftDelete"

	query := `UPDATE urls
		SET is_active = FALSE, updated_at = now()
		WHERE short_code = $1 AND is_active AND ($2 = '' OR owner_id = $2)`

	res, err := r.db.ExecContext(ctx, query, shortCode, ownerID)
	if err != nil {
		return fmt.Errorf("%s: failed to delete url record: %w", op, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: failed to get affected rows: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", op, database.ErrURLNotFound)
	}

	return nil
}

// SetTitle backfills the page title fetched after creation.
func (r *URLRepository) SetTitle(ctx context.Context, shortCode, title string) error {
	const op = "database.postgres.URLRepository.SetTitle"

	query := `UPDATE urls
		SET title = $2, updated_at = now()
		WHERE short_code = $1`

	res, err := r.db.ExecContext(ctx, query, shortCode, title)
	if err != nil {
		return fmt.Errorf("%s: failed to update url record: %w", op, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: failed to get affected rows: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", op, database.ErrURLNotFound)
	}

	return nil
}
