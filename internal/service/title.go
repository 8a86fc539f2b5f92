package service

import (
	"context"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	titleFetchTimeout   = 5 * time.Second
	titlePersistTimeout = 3 * time.Second
	// titleReadLimit caps how much of the destination page is read before
	// the fetch is abandoned as "no title found".
	titleReadLimit = 512 << 10
)

// titleFetcher retrieves the page title for a destination URL. An empty
// result with a nil error means the page carries no usable title.
type titleFetcher func(ctx context.Context, originalURL string) (string, error)

func newHTTPTitleFetcher() titleFetcher {
	client := &http.Client{Timeout: titleFetchTimeout}

	return func(ctx context.Context, originalURL string) (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, originalURL, nil)
		if err != nil {
			return "", fmt.Errorf("failed to build request: %w", err)
		}

		resp, err := client.Do(req)
		if err != nil {
			return "", fmt.Errorf("failed to fetch page: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, titleReadLimit))
		if err != nil {
			return "", fmt.Errorf("failed to read page: %w", err)
		}

		return extractTitle(body), nil
	}
}

// backfillTitle runs fire-and-forget after creation: a best-effort, bounded
// fetch of the destination page's title. Failures are logged, never surfaced.
func (s *URLService) backfillTitle(shortCode, originalURL string) {
	fetchCtx, cancelFetch := context.WithTimeout(context.Background(), titleFetchTimeout)
	title, err := s.fetchTitle(fetchCtx, originalURL)
	cancelFetch()
	if err != nil {
		s.logger.Warn("title backfill failed",
			slog.String("short_code", shortCode), slog.Any("err", err))
		return
	}
	if title == "" {
		return
	}

	// A slow fetch must not eat the store write's deadline too.
	ctx, cancel := context.WithTimeout(context.Background(), titlePersistTimeout)
	defer cancel()

	if err := s.repo.SetTitle(ctx, shortCode, title); err != nil {
		s.logger.Warn("failed to store backfilled title",
			slog.String("short_code", shortCode), slog.Any("err", err))
		return
	}

	if err := s.cache.Delete(ctx, urlKey(shortCode)); err != nil {
		s.logger.Warn("failed to invalidate cache entry",
			slog.String("short_code", shortCode), slog.Any("err", err))
	}
}

// extractTitle pulls the first <title> element out of an HTML document.
func extractTitle(body []byte) string {
	lower := strings.ToLower(string(body))

	start := strings.Index(lower, "<title")
	if start == -1 {
		return ""
	}

	open := strings.Index(lower[start:], ">")
	if open == -1 {
		return ""
	}
	open += start + 1

	end := strings.Index(lower[open:], "</title")
	if end == -1 {
		return ""
	}

	title := html.UnescapeString(string(body)[open : open+end])

	return strings.TrimSpace(strings.Join(strings.Fields(title), " "))
}
