package http

import (
	"time"

	"github.com/Tcdrol/url-shortener/internal/models"
)

// shortenURLRequest represents the payload for creating a shortened URL.
// The custom code charset and the URL scheme are enforced by the service.
type shortenURLRequest struct {
	OriginalURL string   `json:"original_url" validate:"required,url"`
	CustomCode  string   `json:"custom_code,omitempty" validate:"omitempty,min=3,max=20"`
	ExpiresIn   int      `json:"expires_in,omitempty" validate:"omitempty,gt=0"`
	Title       string   `json:"title,omitempty" validate:"omitempty,max=255"`
	Description string   `json:"description,omitempty" validate:"omitempty,max=1024"`
	Tags        []string `json:"tags,omitempty" validate:"omitempty,dive,max=64"`
}

// urlResponse represents a shortened URL in API responses.
type urlResponse struct {
	ID           int64      `json:"id"`
	ShortCode    string     `json:"short_code"`
	OriginalURL  string     `json:"original_url"`
	Title        string     `json:"title,omitempty"`
	Description  string     `json:"description,omitempty"`
	Tags         []string   `json:"tags,omitempty"`
	Clicks       int64      `json:"clicks"`
	LastAccessed *time.Time `json:"last_accessed,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func toURLResponse(url *models.URL) urlResponse {
	return urlResponse{
		ID:           url.ID,
		ShortCode:    url.ShortCode,
		OriginalURL:  url.OriginalURL,
		Title:        url.Title,
		Description:  url.Description,
		Tags:         url.Tags,
		Clicks:       url.Clicks,
		LastAccessed: url.LastAccessed,
		ExpiresAt:    url.ExpiresAt,
		CreatedAt:    url.CreatedAt,
		UpdatedAt:    url.UpdatedAt,
	}
}

// urlStatsResponse represents the aggregated analytics for a shortened URL.
type urlStatsResponse struct {
	urlResponse
	TotalClicks    int64               `json:"total_clicks"`
	Referrers      []fieldCount        `json:"referrers"`
	UserAgents     []fieldCount        `json:"user_agents"`
	LastDayClicks  int64               `json:"last_day_clicks"`
	LastWeekClicks int64               `json:"last_week_clicks"`
}

type fieldCount struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

func toURLStatsResponse(stats *models.URLStats) urlStatsResponse {
	return urlStatsResponse{
		urlResponse:    toURLResponse(stats.URL),
		TotalClicks:    stats.TotalClicks,
		Referrers:      toFieldCounts(stats.Referrers),
		UserAgents:     toFieldCounts(stats.UserAgents),
		LastDayClicks:  stats.LastDayClicks,
		LastWeekClicks: stats.LastWeekClicks,
	}
}

func toFieldCounts(counts []models.FieldCount) []fieldCount {
	out := make([]fieldCount, 0, len(counts))
	for _, c := range counts {
		out = append(out, fieldCount{Value: c.Value, Count: c.Count})
	}
	return out
}

// urlListResponse represents one page of an owner's mappings.
type urlListResponse struct {
	Results int           `json:"results"`
	URLs    []urlResponse `json:"urls"`
}

func toURLListResponse(urls []*models.URL) urlListResponse {
	resp := urlListResponse{
		Results: len(urls),
		URLs:    make([]urlResponse, 0, len(urls)),
	}
	for _, u := range urls {
		resp.URLs = append(resp.URLs, toURLResponse(u))
	}
	return resp
}
