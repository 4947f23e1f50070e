package search

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const idxScrapbooks = "keepsake_scrapbooks"

// Meili implements scrapbook search via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the scrapbook index.
// The caller should proceed without it if the instance stays unreachable;
// a background loop keeps probing and reconfigures on recovery.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxScrapbooks,
		PrimaryKey: "id",
	}); err != nil {
		log.Printf("search: create index %s (may already exist): %v", idxScrapbooks, err)
	}

	index := m.client.Index(idxScrapbooks)
	filterable := []interface{}{"ownerId", "isPublic"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		log.Printf("search: update filterable attrs for %s: %v", idxScrapbooks, err)
	}
	searchable := []string{"title", "description", "tags"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Printf("search: update searchable attrs for %s: %v", idxScrapbooks, err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries the scrapbook index, restricting anonymous callers to
// public scrapbooks and authenticated callers to public plus their own.
func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}

	filter := `isPublic = true`
	if q.CallerID != "" {
		filter = fmt.Sprintf(`isPublic = true OR ownerId = %q`, q.CallerID)
	}

	resp, err := m.client.Index(idxScrapbooks).Search(q.Text, &meili.SearchRequest{
		Limit:                 limit,
		Offset:                int64(q.Offset),
		Filter:                filter,
		AttributesToHighlight: []string{"*"},
		HighlightPreTag:       "<mark>",
		HighlightPostTag:      "</mark>",
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}

	results := make([]Result, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		results = append(results, hitToResult(hit))
	}
	return results, int(resp.EstimatedTotalHits), nil
}

func hitToResult(hit meili.Hit) Result {
	r := Result{
		ID:      decodeString(hit, "id"),
		OwnerID: decodeString(hit, "ownerId"),
	}
	r.Title = firstNonBlank(decodeFormattedString(hit, "title"), decodeString(hit, "title"))
	r.Snippet = firstNonBlank(decodeFormattedString(hit, "description"), decodeString(hit, "description"))

	if raw, ok := hit["isPublic"]; ok {
		_ = json.Unmarshal(raw, &r.IsPublic)
	}
	return r
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]string
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	return strings.TrimSpace(formatted[key])
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// IndexScrapbook adds or updates a scrapbook in the search index.
func (m *Meili) IndexScrapbook(record ScrapbookRecord) error {
	_, err := m.client.Index(idxScrapbooks).AddDocuments([]ScrapbookRecord{record}, nil)
	return err
}

// DeleteScrapbook removes a scrapbook from the search index.
func (m *Meili) DeleteScrapbook(id string) error {
	_, err := m.client.Index(idxScrapbooks).DeleteDocument(id, nil)
	return err
}

// IndexScrapbooks bulk-indexes scrapbooks.
func (m *Meili) IndexScrapbooks(records []ScrapbookRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxScrapbooks).AddDocuments(records, nil)
	return err
}
