package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/Tcdrol/url-shortener/internal/database"
	"github.com/Tcdrol/url-shortener/internal/models"
	"github.com/Tcdrol/url-shortener/internal/service"
	"github.com/Tcdrol/url-shortener/pkg/response"
)

// urlService defines the business logic operations used by the handlers.
type urlService interface {
	Shorten(ctx context.Context, params service.CreateParams) (*models.URL, bool, error)
	Resolve(ctx context.Context, shortCode string, visit models.Visit) (*models.URL, error)
	Stats(ctx context.Context, shortCode string) (*models.URLStats, error)
	List(ctx context.Context, ownerID string, page, limit int) ([]*models.URL, error)
	Delete(ctx context.Context, shortCode, ownerID string) error
}

// handlePing handles health check requests to ensure the server is running.
func handlePing(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "pong")
}

type urlHandler struct {
	svc      urlService
	validate *validator.Validate
}

func newURLHandler(svc urlService, validate *validator.Validate) *urlHandler {
	return &urlHandler{
		svc:      svc,
		validate: validate,
	}
}

// shortenURL handles POST requests to create a shortened URL.
//
// Returns 201 with the created mapping, or 200 with the existing mapping
// when the same owner already shortened the URL.
func (h *urlHandler) shortenURL(w http.ResponseWriter, r *http.Request) {
	const op = "api.http.urlHandler.shortenURL"
	const createdMsg = "The URL has been shortened successfully."
	const existingMsg = "The URL was already shortened."

	var req shortenURLRequest

	if err := render.DecodeJSON(r.Body, &req); err != nil {
		if errors.Is(err, io.EOF) {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.EmptyRequestBodyResponse)
			return
		}

		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.BadRequestResponse)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.ValidationErrorResponse(err))
		return
	}

	url, created, err := h.svc.Shorten(r.Context(), service.CreateParams{
		OriginalURL: req.OriginalURL,
		OwnerID:     ownerID(r),
		CustomCode:  req.CustomCode,
		ExpiresIn:   req.ExpiresIn,
		Title:       req.Title,
		Description: req.Description,
		Tags:        req.Tags,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidURL):
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.ErrorResponse("Invalid URL", "The original URL must be an absolute http(s) URL."))
		case errors.Is(err, service.ErrInvalidCustomCode):
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.ErrorResponse("Invalid Custom Code", "Custom codes must be 3-20 characters from [A-Za-z0-9_-]."))
		case errors.Is(err, service.ErrCodeConflict):
			render.Status(r, http.StatusConflict)
			render.JSON(w, r, response.CodeConflictResponse)
		default:
			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
		}
		return
	}

	if created {
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, response.SuccessResponse(createdMsg, toURLResponse(url)))
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, response.SuccessResponse(existingMsg, toURLResponse(url)))
}

// redirect handles GET requests to resolve a short code and redirect the
// visitor to the original URL with a 302.
func (h *urlHandler) redirect(w http.ResponseWriter, r *http.Request) {
	const op = "api.http.urlHandler.redirect"

	shortCode := chi.URLParam(r, "shortCode")

	url, err := h.svc.Resolve(r.Context(), shortCode, visitFromRequest(r))
	if err != nil {
		if errors.Is(err, database.ErrURLNotFound) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, response.ResourceNotFoundResponse)
			return
		}

		httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.ServerErrorResponse)
		return
	}

	http.Redirect(w, r, url.OriginalURL, http.StatusFound)
}

// listURLs handles GET requests for one page of the owner's mappings.
func (h *urlHandler) listURLs(w http.ResponseWriter, r *http.Request) {
	const op = "api.http.urlHandler.listURLs"
	const successMsg = "The URLs were retrieved successfully."

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	urls, err := h.svc.List(r.Context(), ownerID(r), page, limit)
	if err != nil {
		httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.ServerErrorResponse)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, response.SuccessResponse(successMsg, toURLListResponse(urls)))
}

// getURLStats handles GET requests for the aggregated analytics of a mapping.
func (h *urlHandler) getURLStats(w http.ResponseWriter, r *http.Request) {
	const op = "api.http.urlHandler.getURLStats"
	const successMsg = "The URL statistics were retrieved successfully."

	shortCode := chi.URLParam(r, "shortCode")

	stats, err := h.svc.Stats(r.Context(), shortCode)
	if err != nil {
		if errors.Is(err, database.ErrURLNotFound) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, response.ResourceNotFoundResponse)
			return
		}

		httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.ServerErrorResponse)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, response.SuccessResponse(successMsg, toURLStatsResponse(stats)))
}

// deleteURL handles DELETE requests to soft-delete a mapping.
func (h *urlHandler) deleteURL(w http.ResponseWriter, r *http.Request) {
	const op = "api.http.urlHandler.deleteURL"

	shortCode := chi.URLParam(r, "shortCode")

	if err := h.svc.Delete(r.Context(), shortCode, ownerID(r)); err != nil {
		if errors.Is(err, database.ErrURLNotFound) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, response.ResourceNotFoundResponse)
			return
		}

		httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.ServerErrorResponse)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ownerID extracts the owning principal from the request. Authentication is
// an external collaborator; an absent header means an anonymous request.
func ownerID(r *http.Request) string {
	return r.Header.Get("X-Owner-ID")
}

// visitFromRequest captures the analytics context of a redirect request.
func visitFromRequest(r *http.Request) models.Visit {
	ip := r.RemoteAddr
	// RealIP middleware strips the port when rewriting RemoteAddr from
	// forwarding headers; direct connections still carry one.
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	}
	if ip == "" {
		ip = "0.0.0.0"
	}

	userAgent := r.UserAgent()
	if userAgent == "" {
		userAgent = "unknown"
	}

	referrer := r.Referer()
	if referrer == "" {
		referrer = r.Header.Get("Origin")
	}

	return models.Visit{
		Timestamp: time.Now(),
		IP:        ip,
		UserAgent: userAgent,
		Referrer:  referrer,
	}
}
