package search

import (
	"errors"
	"strings"

	"github.com/blevesearch/bleve"

	"github.com/attentra/attentra/internal/cache"
	"github.com/attentra/attentra/internal/store"
)

// ErrNoIndex means the document has not been synced since the process
// started; callers should sync and retry.
var ErrNoIndex = errors.New("no search index for document")

// Hit is one AOI matching a section query.
type Hit struct {
	AoiKey  string  `json:"aoi_key"`
	Score   float64 `json:"score"`
	Heading string  `json:"heading"`
	Snippet string  `json:"snippet"`
}

type sectionDoc struct {
	Heading string `json:"heading"`
	Snippet string `json:"snippet"`
}

// Service keeps an in-memory full-text index of each synced document's AOI
// map so reviewers can find sections by content. Indexes live in a bounded
// LRU; eviction closes the displaced index.
type Service struct {
	indexes *cache.LRU[string, bleve.Index]
}

func NewService(capacity int) *Service {
	return &Service{
		indexes: cache.New[string, bleve.Index](capacity, func(_ string, idx bleve.Index) {
			_ = idx.Close()
		}),
	}
}

// Rebuild replaces the index for a document with one built from the given
// AOI map. Called after every sync.
func (s *Service) Rebuild(docID string, aois []store.AOIRecord) error {
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return err
	}
	for _, a := range aois {
		doc := sectionDoc{
			Heading: strings.Join(a.HeadingPath, " > "),
			Snippet: a.Snippet,
		}
		if err := idx.Index(a.Key, doc); err != nil {
			_ = idx.Close()
			return err
		}
	}
	s.indexes.Add(docID, idx)
	return nil
}

// Search queries one document's sections.
func (s *Service) Search(docID, query string, limit int) ([]Hit, error) {
	idx, ok := s.indexes.Get(docID)
	if !ok {
		return nil, ErrNoIndex
	}
	if limit <= 0 {
		limit = 10
	}
	req := bleve.NewSearchRequestOptions(bleve.NewQueryStringQuery(query), limit, 0, false)
	req.Fields = []string{"heading", "snippet"}
	res, err := idx.Search(req)
	if err != nil {
		return nil, err
	}
	var hits []Hit
	for _, h := range res.Hits {
		hit := Hit{AoiKey: h.ID, Score: h.Score}
		if v, ok := h.Fields["heading"].(string); ok {
			hit.Heading = v
		}
		if v, ok := h.Fields["snippet"].(string); ok {
			hit.Snippet = v
		}
		hits = append(hits, hit)
	}
	return hits, nil
}
