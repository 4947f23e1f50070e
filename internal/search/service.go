package search

import "log"

// Service is the facade that tries Meilisearch first and falls back to
// Postgres FTS. Either backend may be nil.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	if s.pgfts == nil {
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	results, total, err := s.pgfts.Search(q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexScrapbook pushes one scrapbook to Meilisearch, fire-and-forget.
// Postgres FTS needs no upkeep; its tsvector column is generated.
func (s *Service) IndexScrapbook(record ScrapbookRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexScrapbook(record); err != nil {
			log.Printf("search: index scrapbook %s: %v", record.ID, err)
		}
	}()
}

// DeleteScrapbook removes a scrapbook from the index, fire-and-forget.
func (s *Service) DeleteScrapbook(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteScrapbook(id); err != nil {
			log.Printf("search: delete scrapbook %s: %v", id, err)
		}
	}()
}

// ReindexAll bulk-indexes scrapbooks, used at startup.
func (s *Service) ReindexAll(records []ScrapbookRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	if err := s.meili.IndexScrapbooks(records); err != nil {
		log.Printf("search: reindex scrapbooks: %v", err)
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
