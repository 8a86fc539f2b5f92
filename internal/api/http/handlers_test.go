package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gavv/httpexpect/v2"
	"github.com/go-chi/httplog/v2"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/Tcdrol/url-shortener/internal/database"
	"github.com/Tcdrol/url-shortener/internal/models"
	"github.com/Tcdrol/url-shortener/internal/service"
	"github.com/Tcdrol/url-shortener/pkg/middleware/ratelimit"
)

type MockURLService struct {
	mock.Mock
}

func (s *MockURLService) Shorten(ctx context.Context, params service.CreateParams) (*models.URL, bool, error) {
	args := s.Called(ctx, params)
	url, _ := args.Get(0).(*models.URL)
	return url, args.Bool(1), args.Error(2)
}

func (s *MockURLService) Resolve(ctx context.Context, shortCode string, visit models.Visit) (*models.URL, error) {
	args := s.Called(ctx, shortCode, visit)
	url, _ := args.Get(0).(*models.URL)
	return url, args.Error(1)
}

func (s *MockURLService) Stats(ctx context.Context, shortCode string) (*models.URLStats, error) {
	args := s.Called(ctx, shortCode)
	stats, _ := args.Get(0).(*models.URLStats)
	return stats, args.Error(1)
}

func (s *MockURLService) List(ctx context.Context, ownerID string, page, limit int) ([]*models.URL, error) {
	args := s.Called(ctx, ownerID, page, limit)
	urls, _ := args.Get(0).([]*models.URL)
	return urls, args.Error(1)
}

func (s *MockURLService) Delete(ctx context.Context, shortCode, ownerID string) error {
	args := s.Called(ctx, shortCode, ownerID)
	return args.Error(0)
}

type HandlersTestSuite struct {
	suite.Suite
	logger     *httplog.Logger
	urlSvcMock *MockURLService
	server     *httptest.Server
	e          *httpexpect.Expect
}

func (suite *HandlersTestSuite) SetupSuite() {
	suite.logger = httplog.NewLogger("", httplog.Options{Writer: io.Discard})
}

func (suite *HandlersTestSuite) SetupSubTest() {
	suite.urlSvcMock = new(MockURLService)

	router := NewRouter(suite.logger, suite.urlSvcMock, nil)
	suite.server = httptest.NewServer(router)
	suite.T().Cleanup(func() {
		suite.server.Close()
	})

	suite.e = httpexpect.Default(suite.T(), suite.server.URL)
}

func (suite *HandlersTestSuite) TearDownSubTest() {
	suite.urlSvcMock.AssertExpectations(suite.T())
}

func (suite *HandlersTestSuite) TestPing() {
	const path = "/api/v1/ping"

	suite.Run("success", func() {
		suite.e.GET(path).
			Expect().
			Status(http.StatusOK).
			Text().IsEqual("pong\n")
	})
}

func (suite *HandlersTestSuite) TestShortenURL() {
	const path = "/api/v1/shorturl"

	suite.Run("empty request body", func() {
		resp := suite.e.POST(path).
			Expect().
			Status(http.StatusBadRequest).
			JSON().Object()

		resp.HasValue("status", "error")
		resp.ContainsKey("message")
	})

	suite.Run("validation error", func() {
		resp := suite.e.POST(path).
			WithJSON(map[string]string{"original_url": "invalid url"}).
			Expect().
			Status(http.StatusBadRequest).
			JSON().Object()

		resp.HasValue("status", "error")
		resp.ContainsKey("message")
		resp.Value("details").Array().Value(0).Object().
			HasValue("field", "original_url").
			ContainsKey("message")
	})

	suite.Run("invalid custom code", func() {
		suite.urlSvcMock.
			On("Shorten", mock.Anything, service.CreateParams{
				OriginalURL: "https://example.com",
				CustomCode:  "bad code!",
			}).
			Once().
			Return(nil, false, service.ErrInvalidCustomCode)

		resp := suite.e.POST(path).
			WithJSON(map[string]string{
				"original_url": "https://example.com",
				"custom_code":  "bad code!",
			}).
			Expect().
			Status(http.StatusBadRequest).
			JSON().Object()

		resp.HasValue("status", "error")
		resp.ContainsKey("message")
	})

	suite.Run("custom code conflict", func() {
		suite.urlSvcMock.
			On("Shorten", mock.Anything, service.CreateParams{
				OriginalURL: "https://example.com",
				CustomCode:  "my-code",
			}).
			Once().
			Return(nil, false, service.ErrCodeConflict)

		resp := suite.e.POST(path).
			WithJSON(map[string]string{
				"original_url": "https://example.com",
				"custom_code":  "my-code",
			}).
			Expect().
			Status(http.StatusConflict).
			JSON().Object()

		resp.HasValue("status", "error")
		resp.ContainsKey("message")
	})

	suite.Run("server error", func() {
		suite.urlSvcMock.
			On("Shorten", mock.Anything, service.CreateParams{OriginalURL: "https://example.com"}).
			Once().
			Return(nil, false, errors.New("unknown error"))

		resp := suite.e.POST(path).
			WithJSON(map[string]string{"original_url": "https://example.com"}).
			Expect().
			Status(http.StatusInternalServerError).
			JSON().Object()

		resp.HasValue("status", "error")
		resp.ContainsKey("message")
	})

	suite.Run("created", func() {
		suite.urlSvcMock.
			On("Shorten", mock.Anything, service.CreateParams{
				OriginalURL: "https://example.com",
				OwnerID:     "owner1",
			}).
			Once().
			Return(&models.URL{
				ID:          1,
				ShortCode:   "abc123XY",
				OriginalURL: "https://example.com",
				IsActive:    true,
			}, true, nil)

		resp := suite.e.POST(path).
			WithHeader("X-Owner-ID", "owner1").
			WithJSON(map[string]string{"original_url": "https://example.com"}).
			Expect().
			Status(http.StatusCreated).
			JSON().Object()

		resp.HasValue("status", "success")
		data := resp.Value("data").Object()
		data.HasValue("short_code", "abc123XY")
		data.HasValue("original_url", "https://example.com")
		data.ContainsKey("created_at")
	})

	suite.Run("existing mapping", func() {
		suite.urlSvcMock.
			On("Shorten", mock.Anything, service.CreateParams{OriginalURL: "https://example.com"}).
			Once().
			Return(&models.URL{
				ID:          1,
				ShortCode:   "abc123XY",
				OriginalURL: "https://example.com",
				IsActive:    true,
			}, false, nil)

		resp := suite.e.POST(path).
			WithJSON(map[string]string{"original_url": "https://example.com"}).
			Expect().
			Status(http.StatusOK).
			JSON().Object()

		resp.HasValue("status", "success")
		resp.Value("data").Object().HasValue("short_code", "abc123XY")
	})
}

func (suite *HandlersTestSuite) TestRedirect() {
	path := "/%s"

	suite.Run("url not found", func() {
		suite.urlSvcMock.
			On("Resolve", mock.Anything, "abc123XY", mock.Anything).
			Once().
			Return(nil, database.ErrURLNotFound)

		resp := suite.e.GET(fmt.Sprintf(path, "abc123XY")).
			Expect().
			Status(http.StatusNotFound).
			JSON().Object()

		resp.HasValue("status", "error")
		resp.ContainsKey("message")
	})

	suite.Run("success", func() {
		suite.urlSvcMock.
			On("Resolve", mock.Anything, "abc123XY", mock.Anything).
			Once().
			Return(&models.URL{
				ID:          1,
				ShortCode:   "abc123XY",
				OriginalURL: "https://example.com",
				IsActive:    true,
			}, nil)

		e := httpexpect.WithConfig(httpexpect.Config{
			BaseURL:  suite.server.URL,
			Reporter: httpexpect.NewAssertReporter(suite.T()),
			Client: &http.Client{
				CheckRedirect: func(req *http.Request, via []*http.Request) error {
					return http.ErrUseLastResponse
				},
			},
		})

		e.GET(fmt.Sprintf(path, "abc123XY")).
			Expect().
			Status(http.StatusFound).
			Header("Location").IsEqual("https://example.com")
	})
}

func (suite *HandlersTestSuite) TestListURLs() {
	const path = "/api/v1/shorturl"

	suite.Run("server error", func() {
		suite.urlSvcMock.
			On("List", mock.Anything, "", 0, 0).
			Once().
			Return(nil, errors.New("unknown error"))

		resp := suite.e.GET(path).
			Expect().
			Status(http.StatusInternalServerError).
			JSON().Object()

		resp.HasValue("status", "error")
		resp.ContainsKey("message")
	})

	suite.Run("success", func() {
		suite.urlSvcMock.
			On("List", mock.Anything, "owner1", 2, 5).
			Once().
			Return([]*models.URL{
				{ID: 2, ShortCode: "code2", OriginalURL: "https://example.org", IsActive: true},
				{ID: 1, ShortCode: "code1", OriginalURL: "https://example.com", IsActive: true},
			}, nil)

		resp := suite.e.GET(path).
			WithHeader("X-Owner-ID", "owner1").
			WithQuery("page", 2).
			WithQuery("limit", 5).
			Expect().
			Status(http.StatusOK).
			JSON().Object()

		resp.HasValue("status", "success")
		data := resp.Value("data").Object()
		data.HasValue("results", 2)
		data.Value("urls").Array().Length().IsEqual(2)
		data.Value("urls").Array().Value(0).Object().HasValue("short_code", "code2")
	})
}

func (suite *HandlersTestSuite) TestGetURLStats() {
	path := "/api/v1/shorturl/%s/stats"

	suite.Run("url not found", func() {
		suite.urlSvcMock.
			On("Stats", mock.Anything, "abc123XY").
			Once().
			Return(nil, database.ErrURLNotFound)

		resp := suite.e.GET(fmt.Sprintf(path, "abc123XY")).
			Expect().
			Status(http.StatusNotFound).
			JSON().Object()

		resp.HasValue("status", "error")
		resp.ContainsKey("message")
	})

	suite.Run("success", func() {
		suite.urlSvcMock.
			On("Stats", mock.Anything, "abc123XY").
			Once().
			Return(&models.URLStats{
				URL: &models.URL{
					ID:          1,
					ShortCode:   "abc123XY",
					OriginalURL: "https://example.com",
					Clicks:      10,
					IsActive:    true,
				},
				TotalClicks:    10,
				Referrers:      []models.FieldCount{{Value: "https://a.example", Count: 7}},
				UserAgents:     []models.FieldCount{{Value: "agent-a", Count: 10}},
				LastDayClicks:  2,
				LastWeekClicks: 5,
			}, nil)

		resp := suite.e.GET(fmt.Sprintf(path, "abc123XY")).
			Expect().
			Status(http.StatusOK).
			JSON().Object()

		resp.HasValue("status", "success")
		data := resp.Value("data").Object()
		data.HasValue("short_code", "abc123XY")
		data.HasValue("total_clicks", 10)
		data.HasValue("last_day_clicks", 2)
		data.HasValue("last_week_clicks", 5)
		data.Value("referrers").Array().Value(0).Object().
			HasValue("value", "https://a.example").
			HasValue("count", 7)
	})
}

func (suite *HandlersTestSuite) TestDeleteURL() {
	path := "/api/v1/shorturl/%s"

	suite.Run("url not found", func() {
		suite.urlSvcMock.
			On("Delete", mock.Anything, "abc123XY", "").
			Once().
			Return(database.ErrURLNotFound)

		resp := suite.e.DELETE(fmt.Sprintf(path, "abc123XY")).
			Expect().
			Status(http.StatusNotFound).
			JSON().Object()

		resp.HasValue("status", "error")
		resp.ContainsKey("message")
	})

	suite.Run("success", func() {
		suite.urlSvcMock.
			On("Delete", mock.Anything, "abc123XY", "owner1").
			Once().
			Return(nil)

		suite.e.DELETE(fmt.Sprintf(path, "abc123XY")).
			WithHeader("X-Owner-ID", "owner1").
			Expect().
			Status(http.StatusNoContent).
			NoContent()
	})
}

func (suite *HandlersTestSuite) TestRateLimit() {
	const path = "/api/v1/shorturl"

	suite.Run("second request rejected", func() {
		suite.urlSvcMock.
			On("Shorten", mock.Anything, service.CreateParams{OriginalURL: "https://example.com"}).
			Once().
			Return(&models.URL{
				ID:          1,
				ShortCode:   "abc123XY",
				OriginalURL: "https://example.com",
				IsActive:    true,
			}, true, nil)

		limiter := ratelimit.NewLimiter(1, time.Minute)
		server := httptest.NewServer(NewRouter(suite.logger, suite.urlSvcMock, limiter))
		suite.T().Cleanup(server.Close)

		e := httpexpect.Default(suite.T(), server.URL)

		e.POST(path).
			WithJSON(map[string]string{"original_url": "https://example.com"}).
			Expect().
			Status(http.StatusCreated)

		resp := e.POST(path).
			WithJSON(map[string]string{"original_url": "https://example.com"}).
			Expect().
			Status(http.StatusTooManyRequests).
			JSON().Object()

		resp.HasValue("status", "error")
		resp.ContainsKey("message")
	})
}

func TestHandlers(t *testing.T) {
	suite.Run(t, new(HandlersTestSuite))
}
