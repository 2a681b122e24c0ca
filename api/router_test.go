package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/use-agent/tokscrape/api/middleware"
	"github.com/use-agent/tokscrape/config"
	"github.com/use-agent/tokscrape/models"
	"github.com/use-agent/tokscrape/scraper"
)

type fakeScraper struct {
	profileErr error
	videoErr   error

	gotUser  string
	gotURL   string
	gotReqID string
}

func (f *fakeScraper) Profile(ctx context.Context, username string) (*models.Profile, error) {
	f.gotUser = username
	f.gotReqID = scraper.RequestID(ctx)
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	return &models.Profile{
		Username:  username,
		Followers: models.Counter{Value: 1_200_000, Formatted: "1.2M", Raw: "1.2"},
	}, nil
}

func (f *fakeScraper) Video(_ context.Context, videoURL string) (*models.Video, error) {
	f.gotURL = videoURL
	if f.videoErr != nil {
		return nil, f.videoErr
	}
	return &models.Video{Description: "hello", Hashtags: []models.Hashtag{}}, nil
}

type fakeStats struct{ closed bool }

func (f fakeStats) Stats() models.SessionStats {
	return models.SessionStats{Policy: config.PolicySingleton, LiveSessions: 1, Closed: f.closed}
}

func newTestRouter(sc *fakeScraper, st fakeStats) http.Handler {
	cfg := &config.Config{
		Server: config.ServerConfig{Mode: "test"},
		Site:   config.SiteConfig{BaseURL: "https://www.tiktok.com", DomainMarker: "tiktok.com"},
	}
	return NewRouter(sc, st, cfg, time.Now())
}

func do(t *testing.T, h http.Handler, method, target string) (*httptest.ResponseRecorder, models.APIResponse) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var body models.APIResponse
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode body %q: %v", w.Body.String(), err)
		}
	}
	return w, body
}

func TestRoot(t *testing.T) {
	w, _ := do(t, newTestRouter(&fakeScraper{}, fakeStats{}), http.MethodGet, "/")
	if w.Code != http.StatusOK || w.Body.String() != Banner {
		t.Errorf("GET / = %d %q", w.Code, w.Body.String())
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("CORS header missing")
	}
	if w.Header().Get(middleware.RequestIDHeader) == "" {
		t.Error("request id header missing")
	}
}

func TestProfile(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{"success", nil, http.StatusOK, ""},
		{"not found", models.NewScrapeError(models.ErrCodeNotFound, "account not found", nil), http.StatusInternalServerError, models.MsgAccountNotFound},
		{
			"exhausted",
			models.NewScrapeError(models.ErrCodeRetriesExhausted, "gave up", models.NewScrapeError(models.ErrCodeTimeout, "x", nil)),
			http.StatusInternalServerError,
			models.MsgProfileFailed,
		},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, models.MsgProfileFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := &fakeScraper{profileErr: tt.err}
			w, body := do(t, newTestRouter(sc, fakeStats{}), http.MethodGet, "/api/profile/alice")

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if sc.gotUser != "alice" {
				t.Errorf("username = %q", sc.gotUser)
			}
			if tt.wantError == "" {
				if !body.Success || body.Data == nil {
					t.Errorf("body = %+v", body)
				}
				return
			}
			if body.Success || body.Error != tt.wantError {
				t.Errorf("body = %+v, want error %q", body, tt.wantError)
			}
		})
	}
}

func TestProfile_PropagatesRequestID(t *testing.T) {
	sc := &fakeScraper{}
	req := httptest.NewRequest(http.MethodGet, "/api/profile/alice", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-42")
	w := httptest.NewRecorder()
	newTestRouter(sc, fakeStats{}).ServeHTTP(w, req)

	if sc.gotReqID != "req-42" {
		t.Errorf("scraper saw request id %q", sc.gotReqID)
	}
	if got := w.Header().Get(middleware.RequestIDHeader); got != "req-42" {
		t.Errorf("response request id = %q", got)
	}
}

func TestVideo(t *testing.T) {
	valid := "https://www.tiktok.com/@alice/video/7234567890123456789"

	tests := []struct {
		name       string
		query      string
		err        error
		wantStatus int
		wantError  string
		wantCalled bool
	}{
		{"success", valid, nil, http.StatusOK, "", true},
		{"missing url", "", nil, http.StatusBadRequest, models.MsgInvalidVideoURL, false},
		{"foreign domain", "https://example.com/video/1", nil, http.StatusBadRequest, models.MsgInvalidVideoURL, false},
		{"scrape failure", valid, errors.New("boom"), http.StatusInternalServerError, models.MsgVideoFailed, true},
		{
			"not found video uses generic message",
			valid,
			models.NewScrapeError(models.ErrCodeNotFound, "account not found", nil),
			http.StatusInternalServerError,
			models.MsgVideoFailed,
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sc := &fakeScraper{videoErr: tt.err}
			target := "/api/video"
			if tt.query != "" {
				target += "?url=" + url.QueryEscape(tt.query)
			}
			w, body := do(t, newTestRouter(sc, fakeStats{}), http.MethodGet, target)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if called := sc.gotURL != ""; called != tt.wantCalled {
				t.Errorf("scraper called = %v, want %v", called, tt.wantCalled)
			}
			if tt.wantCalled && tt.err == nil && sc.gotURL != tt.query {
				t.Errorf("url = %q, want %q", sc.gotURL, tt.query)
			}
			if tt.wantError != "" && (body.Success || body.Error != tt.wantError) {
				t.Errorf("body = %+v, want error %q", body, tt.wantError)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	for _, tt := range []struct {
		closed bool
		want   string
	}{
		{false, "healthy"},
		{true, "degraded"},
	} {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		w := httptest.NewRecorder()
		newTestRouter(&fakeScraper{}, fakeStats{closed: tt.closed}).ServeHTTP(w, req)

		var resp models.HealthResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		if resp.Status != tt.want || resp.SessionStats.LiveSessions != 1 {
			t.Errorf("closed=%v: %+v", tt.closed, resp)
		}
	}
}

func TestCORS_Preflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/profile/alice", nil)
	w := httptest.NewRecorder()
	newTestRouter(&fakeScraper{}, fakeStats{}).ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d", w.Code)
	}
}
