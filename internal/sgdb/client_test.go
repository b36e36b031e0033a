package sgdb

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/gridskin/gridskin/internal/config"
	"github.com/gridskin/gridskin/internal/models"
)

func testClient(baseURL string) *Client {
	cfg := &config.APIConfig{
		Key:            "test-key",
		BaseURL:        baseURL,
		TimeoutSeconds: 5,
		MaxAttempts:    3,
		BackoffMillis:  1,
		GridDimensions: "1024x1024",
	}
	return NewClient(cfg, zap.NewNop())
}

func TestSearchGames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer token, got %q", r.Header.Get("Authorization"))
		}
		if r.URL.Path != "/search/autocomplete/Shovel Knight" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"success":true,"data":[{"id":1608,"name":"Shovel Knight"}]}`)
	}))
	defer srv.Close()

	games, err := testClient(srv.URL).SearchGames(context.Background(), "Shovel Knight")
	if err != nil {
		t.Fatal(err)
	}
	if len(games) != 1 || games[0].ID != 1608 || games[0].Name != "Shovel Knight" {
		t.Errorf("unexpected games: %+v", games)
	}
}

func TestGameGrids_filtersDimensions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("dimensions"); got != "1024x1024" {
			t.Errorf("dimensions = %q", got)
		}
		fmt.Fprint(w, `{"success":true,"data":[
			{"id":1,"score":100,"url":"https://cdn/full1.png","thumb":"https://cdn/t1.png","width":1024,"height":1024},
			{"id":2,"score":90,"url":"https://cdn/full2.png","thumb":"https://cdn/t2.png","width":600,"height":900},
			{"id":3,"score":80,"url":"https://cdn/full3.png","thumb":"https://cdn/t3.png","width":1024,"height":1024}
		]}`)
	}))
	defer srv.Close()

	grids, err := testClient(srv.URL).GameGrids(context.Background(), 1608)
	if err != nil {
		t.Fatal(err)
	}
	if len(grids) != 2 {
		t.Fatalf("expected 2 grids after dimension filter, got %d", len(grids))
	}
	// API ranking order must be preserved.
	if grids[0].ID != 1 || grids[1].ID != 3 {
		t.Errorf("order not preserved: %+v", grids)
	}
}

func TestSearch_fallsThroughGamesWithoutGrids(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search/autocomplete/knight":
			fmt.Fprint(w, `{"success":true,"data":[{"id":1,"name":"No Grids"},{"id":2,"name":"Has Grids"}]}`)
		case "/grids/game/1":
			fmt.Fprint(w, `{"success":true,"data":[]}`)
		case "/grids/game/2":
			fmt.Fprint(w, `{"success":true,"data":[{"id":7,"url":"https://cdn/x.png","thumb":"https://cdn/xt.png","width":1024,"height":1024}]}`)
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	grids, err := testClient(srv.URL).Search(context.Background(), "knight")
	if err != nil {
		t.Fatal(err)
	}
	if len(grids) != 1 || grids[0].ID != 7 {
		t.Errorf("unexpected grids: %+v", grids)
	}
}

func TestSearch_noGames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":true,"data":[]}`)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Search(context.Background(), "nonexistent")
	if models.KindOf(err) != models.ErrNotFound {
		t.Errorf("expected not_found, got %v", err)
	}
}

func TestRetry_serverErrorBounded(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).SearchGames(context.Background(), "x")
	if models.KindOf(err) != models.ErrServer {
		t.Errorf("expected server_error, got %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("expected exactly 3 attempts (retry cap), got %d", got)
	}
}

func TestRetry_recoversAfterTransientFailure(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"success":true,"data":[{"id":5,"name":"Celeste"}]}`)
	}))
	defer srv.Close()

	games, err := testClient(srv.URL).SearchGames(context.Background(), "celeste")
	if err != nil {
		t.Fatal(err)
	}
	if len(games) != 1 || games[0].ID != 5 {
		t.Errorf("unexpected games: %+v", games)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestNoRetry_authInvalid(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).SearchGames(context.Background(), "x")
	if models.KindOf(err) != models.ErrAuthInvalid {
		t.Errorf("expected auth_invalid, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("auth failures must not retry, got %d calls", calls)
	}
}

func TestNoRetry_notFound(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).SearchGames(context.Background(), "x")
	if models.KindOf(err) != models.ErrNotFound {
		t.Errorf("expected not_found, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("not-found must not retry, got %d calls", calls)
	}
}

func TestRateLimited_honorsRetryAfter(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"success":true,"data":[]}`)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).SearchGames(context.Background(), "x")
	if err != nil {
		t.Fatal(err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("expected retry after 429, got %d calls", calls)
	}
}

func TestDownload(t *testing.T) {
	payload := []byte("not-really-an-image-but-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Error("CDN downloads must not carry the API key")
		}
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	data, err := testClient(srv.URL).Download(context.Background(), srv.URL+"/image.png")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != string(payload) {
		t.Error("downloaded bytes mismatch")
	}
}
