package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// URL represents a short-code to original-URL mapping and its metadata.
type URL struct {
	// ID is the unique identifier for the mapping record.
	ID int64 `json:"id"`
	// ShortCode is the code associated with the original URL. Immutable once assigned.
	ShortCode string `json:"short_code"`
	// OriginalURL is the full-length URL that the short code points to.
	OriginalURL string `json:"original_url"`
	// OwnerID references the owning principal. Empty for anonymous mappings.
	OwnerID string `json:"owner_id,omitempty"`
	// Title is an optional page title, possibly backfilled after creation.
	Title string `json:"title,omitempty"`
	// Description is an optional free-form description.
	Description string `json:"description,omitempty"`
	// Tags are optional free-form labels.
	Tags Tags `json:"tags,omitempty"`
	// Clicks tracks the number of successful resolutions. Only ever increases.
	Clicks int64 `json:"clicks"`
	// IsActive is the soft-delete flag. Inactive mappings are never resolved.
	IsActive bool `json:"is_active"`
	// LastAccessed is the time of the most recent successful resolution.
	LastAccessed *time.Time `json:"last_accessed,omitempty"`
	// ExpiresAt marks the mapping inactive for resolution once passed.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	// CreatedAt is the timestamp indicating when the mapping was created.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is the timestamp indicating when the mapping was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}

// Resolvable reports whether the mapping may serve redirects at the given time.
func (u *URL) Resolvable(now time.Time) bool {
	return u.IsActive && (u.ExpiresAt == nil || u.ExpiresAt.After(now))
}

// Tags stores free-form labels as a jsonb column.
type Tags []string

func (t Tags) Value() (driver.Value, error) {
	if t == nil {
		return nil, nil
	}
	return json.Marshal(t)
}

func (t *Tags) Scan(src any) error {
	if src == nil {
		*t = nil
		return nil
	}

	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, t)
	case string:
		return json.Unmarshal([]byte(v), t)
	default:
		return fmt.Errorf("models.Tags: unsupported scan type %T", src)
	}
}

// Visit is a single analytics record appended on every resolution.
type Visit struct {
	ID        int64     `json:"-"`
	URLID     int64     `json:"-"`
	Timestamp time.Time `json:"timestamp"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"user_agent"`
	Referrer  string    `json:"referrer,omitempty"`
}

// FieldCount is a count of visits sharing one analytics field value.
type FieldCount struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// URLStats is the aggregated analytics view of a mapping.
type URLStats struct {
	URL            *URL         `json:"url"`
	TotalClicks    int64        `json:"total_clicks"`
	Referrers      []FieldCount `json:"referrers"`
	UserAgents     []FieldCount `json:"user_agents"`
	LastDayClicks  int64        `json:"last_day_clicks"`
	LastWeekClicks int64        `json:"last_week_clicks"`
}
