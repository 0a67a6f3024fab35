// Package search mirrors catalog items into a Meilisearch index. The index is
// a read-optimized copy; the catalog store stays authoritative.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"gamelibrary/internal/apperr"
	"gamelibrary/internal/catalog"

	"github.com/google/uuid"
	"github.com/meilisearch/meilisearch-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// PageSize caps title search results.
	PageSize = 50
	// scanBatch is the document page size used for full scans.
	scanBatch = 1000
)

// indexAPI is the subset of meilisearch.IndexManager the mirror uses.
type indexAPI interface {
	AddDocuments(documentsPtr interface{}, primaryKey ...string) (*meilisearch.TaskInfo, error)
	DeleteDocument(identifier string) (*meilisearch.TaskInfo, error)
	SearchRaw(query string, request *meilisearch.SearchRequest) (*json.RawMessage, error)
	GetDocuments(param *meilisearch.DocumentsQuery, resp *meilisearch.DocumentsResult) error
	UpdateFilterableAttributes(request *[]string) (*meilisearch.TaskInfo, error)
	UpdateTypoTolerance(request *meilisearch.TypoTolerance) (*meilisearch.TaskInfo, error)
}

// document is the indexed shape of a catalog item.
type document struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	ReleaseDate int64   `json:"release_date"`
	Genre       string  `json:"genre"`
	CoverURL    string  `json:"cover_image_url"`
}

func toDocument(item *catalog.Item) document {
	return document{
		ID:          item.ID.String(),
		Title:       item.Title,
		Description: item.Description,
		Price:       item.Price,
		ReleaseDate: item.ReleaseDate.UnixMicro(),
		Genre:       string(item.Genre),
		CoverURL:    item.CoverURL,
	}
}

func (d document) item() (*catalog.Item, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("document id %q: %w", d.ID, err)
	}
	return &catalog.Item{
		ID:          id,
		Title:       d.Title,
		Description: d.Description,
		Price:       d.Price,
		ReleaseDate: time.UnixMicro(d.ReleaseDate).UTC(),
		Genre:       catalog.Genre(d.Genre),
		CoverURL:    d.CoverURL,
	}, nil
}

// Mirror implements catalog.Mirror over a Meilisearch index.
type Mirror struct {
	index   indexAPI
	healthy func() bool
	tracer  trace.Tracer
}

// NewMirror connects to Meilisearch and returns a mirror over indexUID.
func NewMirror(host, apiKey, indexUID string) *Mirror {
	client := meilisearch.New(host, meilisearch.WithAPIKey(apiKey))
	m := newMirror(client.Index(indexUID))
	m.healthy = client.IsHealthy
	return m
}

func newMirror(index indexAPI) *Mirror {
	return &Mirror{
		index:   index,
		healthy: func() bool { return true },
		tracer:  otel.Tracer("gamelibrary/search"),
	}
}

// Healthy reports whether the search engine answers its health probe.
func (m *Mirror) Healthy() bool {
	return m.healthy()
}

// EnsureSettings makes genre and price filterable and turns off typo
// tolerance on title so title search is a strict prefix match. Safe to call
// on every start.
func (m *Mirror) EnsureSettings(ctx context.Context) error {
	_, span := m.tracer.Start(ctx, "search.ensure_settings")
	defer span.End()

	attrs := []string{"genre", "price"}
	if _, err := m.index.UpdateFilterableAttributes(&attrs); err != nil {
		return apperr.Mirror("settings", err)
	}
	typos := &meilisearch.TypoTolerance{Enabled: true, DisableOnAttributes: []string{"title"}}
	if _, err := m.index.UpdateTypoTolerance(typos); err != nil {
		return apperr.Mirror("settings", err)
	}
	return nil
}

// Index adds or replaces the document for item.
func (m *Mirror) Index(ctx context.Context, item *catalog.Item) error {
	_, span := m.tracer.Start(ctx, "search.index",
		trace.WithAttributes(attribute.String("item.id", item.ID.String())))
	defer span.End()

	if _, err := m.index.AddDocuments([]document{toDocument(item)}, "id"); err != nil {
		span.RecordError(err)
		return apperr.Mirror("index", err)
	}
	return nil
}

func (m *Mirror) Delete(ctx context.Context, id uuid.UUID) error {
	_, span := m.tracer.Start(ctx, "search.delete",
		trace.WithAttributes(attribute.String("item.id", id.String())))
	defer span.End()

	if _, err := m.index.DeleteDocument(id.String()); err != nil {
		span.RecordError(err)
		return apperr.Mirror("delete", err)
	}
	return nil
}

// SearchByTitlePrefix returns at most PageSize items whose title matches text as a prefix.
func (m *Mirror) SearchByTitlePrefix(ctx context.Context, text string) ([]*catalog.Item, error) {
	_, span := m.tracer.Start(ctx, "search.title")
	defer span.End()

	docs, err := m.search(strings.TrimSpace(text), &meilisearch.SearchRequest{
		Limit:                PageSize,
		AttributesToSearchOn: []string{"title"},
	})
	if err != nil {
		return nil, err
	}
	return toItems(docs)
}

// SearchByGenre returns every item whose genre equals genre exactly.
func (m *Mirror) SearchByGenre(ctx context.Context, genre string) ([]*catalog.Item, error) {
	_, span := m.tracer.Start(ctx, "search.genre")
	defer span.End()

	docs, err := m.scan("genre = " + strconv.Quote(genre))
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("documents", len(docs)))
	return toItems(docs)
}

// PriceStatistics aggregates min, max, avg, sum and count over every mirrored price.
func (m *Mirror) PriceStatistics(ctx context.Context) (*catalog.PriceStats, error) {
	_, span := m.tracer.Start(ctx, "search.price_stats")
	defer span.End()

	docs, err := m.scan(nil)
	if err != nil {
		return nil, err
	}
	stats := &catalog.PriceStats{}
	for i, d := range docs {
		if i == 0 {
			stats.Min, stats.Max = d.Price, d.Price
		}
		stats.Min = math.Min(stats.Min, d.Price)
		stats.Max = math.Max(stats.Max, d.Price)
		stats.Sum += d.Price
		stats.Count++
	}
	if stats.Count > 0 {
		stats.Avg = math.Round(stats.Sum/float64(stats.Count)*100) / 100
	}
	stats.Sum = math.Round(stats.Sum*100) / 100
	span.SetAttributes(attribute.Int64("documents", stats.Count))
	return stats, nil
}

// ListAll returns every mirrored document.
func (m *Mirror) ListAll(ctx context.Context) ([]*catalog.Item, error) {
	_, span := m.tracer.Start(ctx, "search.list_all")
	defer span.End()

	docs, err := m.scan(nil)
	if err != nil {
		return nil, err
	}
	return toItems(docs)
}

func (m *Mirror) search(query string, req *meilisearch.SearchRequest) ([]document, error) {
	raw, err := m.index.SearchRaw(query, req)
	if err != nil {
		return nil, apperr.Mirror("search", err)
	}
	var resp struct {
		Hits []document `json:"hits"`
	}
	if raw != nil {
		if err := json.Unmarshal(*raw, &resp); err != nil {
			return nil, apperr.Mirror("search", err)
		}
	}
	return resp.Hits, nil
}

// scan pages through every document matching filter, or all documents when
// filter is nil. The documents endpoint is not bounded by the search hit cap.
func (m *Mirror) scan(filter interface{}) ([]document, error) {
	var docs []document
	for offset := int64(0); ; offset += scanBatch {
		var page meilisearch.DocumentsResult
		err := m.index.GetDocuments(&meilisearch.DocumentsQuery{Offset: offset, Limit: scanBatch, Filter: filter}, &page)
		if err != nil {
			return nil, apperr.Mirror("scan", err)
		}
		for _, raw := range page.Results {
			d, err := decodeDocument(raw)
			if err != nil {
				return nil, apperr.Mirror("scan", err)
			}
			docs = append(docs, d)
		}
		if int64(len(page.Results)) < scanBatch {
			return docs, nil
		}
	}
}

func decodeDocument(raw map[string]interface{}) (document, error) {
	var d document
	b, err := json.Marshal(raw)
	if err != nil {
		return d, err
	}
	err = json.Unmarshal(b, &d)
	return d, err
}

func toItems(docs []document) ([]*catalog.Item, error) {
	items := make([]*catalog.Item, 0, len(docs))
	for _, d := range docs {
		item, err := d.item()
		if err != nil {
			return nil, apperr.Mirror("decode", err)
		}
		items = append(items, item)
	}
	return items, nil
}
