package search

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gamelibrary/internal/apperr"
	"gamelibrary/internal/auth"
	"gamelibrary/internal/catalog"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const handlerSecret = "search-test"

// stubMirror answers queries from a fixed item set and records what it was asked.
type stubMirror struct {
	catalog.Mirror
	items      []*catalog.Item
	err        error
	lastPrefix string
	lastGenre  string
}

func (s *stubMirror) SearchByTitlePrefix(_ context.Context, text string) ([]*catalog.Item, error) {
	s.lastPrefix = text
	return s.items, s.err
}

func (s *stubMirror) SearchByGenre(_ context.Context, genre string) ([]*catalog.Item, error) {
	s.lastGenre = genre
	return s.items, s.err
}

func (s *stubMirror) PriceStatistics(context.Context) (*catalog.PriceStats, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &catalog.PriceStats{Count: int64(len(s.items)), Min: 10, Max: 10, Avg: 10, Sum: 10 * float64(len(s.items))}, nil
}

func (s *stubMirror) ListAll(context.Context) ([]*catalog.Item, error) {
	return s.items, s.err
}

type stubReindexer struct {
	calls int
	n     int
}

func (s *stubReindexer) Reindex(context.Context) (int, error) {
	s.calls++
	return s.n, nil
}

func newTestRouter(t *testing.T) (http.Handler, *stubMirror, *stubReindexer) {
	t.Helper()
	mirror := &stubMirror{items: []*catalog.Item{sampleItem("Nebula Drift", 10)}}
	reindexer := &stubReindexer{n: 7}
	r := chi.NewRouter()
	r.Use(auth.NewAuthenticator(handlerSecret).Middleware)
	NewHandler(mirror, reindexer).Routes(r)
	return r, mirror, reindexer
}

func do(t *testing.T, h http.Handler, method, path, permission string) *httptest.ResponseRecorder {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		UserID:           "caller",
		Permission:       permission,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte(handlerSecret))
	require.NoError(t, err)

	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerTitleSearch(t *testing.T) {
	h, mirror, _ := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/search/title?title=%20Neb%20", "User")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Neb", mirror.lastPrefix)
	var items []catalog.Item
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&items))
	require.Len(t, items, 1)
	assert.Equal(t, "Nebula Drift", items[0].Title)

	rec = do(t, h, http.MethodGet, "/search/title", "User")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodGet, "/search/title?title=%20%20", "User")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerGenreSearch(t *testing.T) {
	h, mirror, _ := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/search/genre?genre=rpg", "Admin")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, string(catalog.GenreRPG), mirror.lastGenre)

	rec = do(t, h, http.MethodGet, "/search/genre?genre=Polka", "Admin")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerPriceStatsAndAll(t *testing.T) {
	h, _, _ := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/search/stats/prices", "User")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats catalog.PriceStats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.EqualValues(t, 1, stats.Count)

	rec = do(t, h, http.MethodGet, "/search/all", "User")
	require.Equal(t, http.StatusOK, rec.Code)
	var items []catalog.Item
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&items))
	assert.Len(t, items, 1)
}

func TestHandlerMirrorFailureIsBadGateway(t *testing.T) {
	h, mirror, _ := newTestRouter(t)
	mirror.err = apperr.Mirror("search", errors.New("meilisearch: connection refused"))

	for _, path := range []string{"/search/title?title=neb", "/search/genre?genre=Action", "/search/stats/prices", "/search/all"} {
		rec := do(t, h, http.MethodGet, path, "User")
		assert.Equal(t, http.StatusBadGateway, rec.Code, path)
	}
}

func TestHandlerReindexRequiresAdmin(t *testing.T) {
	h, _, reindexer := newTestRouter(t)

	rec := do(t, h, http.MethodPost, "/search/reindex", "User")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Zero(t, reindexer.calls)

	rec = do(t, h, http.MethodPost, "/search/reindex", "Admin")
	require.Equal(t, http.StatusOK, rec.Code)
	var got map[string]int
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, 7, got["indexed"])
	assert.Equal(t, 1, reindexer.calls)
}

func TestHandlerRequiresToken(t *testing.T) {
	h, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/search/all", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
