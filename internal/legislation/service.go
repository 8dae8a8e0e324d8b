// Package legislation serves statute text on demand: acts are fetched
// from the public register the first time anything asks for them, parsed
// into versioned articles, chunked, embedded, and kept current in the
// metadata and vector stores.
package legislation

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"pravnyk/internal/adapters"
	"pravnyk/internal/logging"
	"pravnyk/internal/store"
	"pravnyk/internal/types"
)

// Embedder produces vectors for article chunks.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// Fetcher pulls an act and its articles from the register.
type Fetcher interface {
	Fetch(ctx context.Context, actID string) (*types.LegislationAct, []types.LegislationArticle, error)
}

// Service is the lazy-loading legislation layer.
type Service struct {
	meta     *store.MetadataStore
	vectors  *store.VectorStore
	fetcher  Fetcher
	embedder Embedder
}

// NewService creates a legislation service. vectors and embedder may be
// nil; semantic search then degrades to text search.
func NewService(meta *store.MetadataStore, vectors *store.VectorStore, fetcher Fetcher, embedder Embedder) *Service {
	return &Service{meta: meta, vectors: vectors, fetcher: fetcher, embedder: embedder}
}

// EnsureExists makes sure the act is present locally, fetching, parsing,
// and embedding it on first touch. Subsequent calls are cheap.
func (s *Service) EnsureExists(ctx context.Context, actID string) error {
	n, err := s.meta.CurrentArticleCount(actID)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	timer := logging.StartTimer(logging.CategoryLegislation, "EnsureExists")
	defer timer.Stop()
	logging.Legislation("act %s not cached, fetching from register", actID)

	act, articles, err := s.fetcher.Fetch(ctx, actID)
	if err != nil {
		return fmt.Errorf("fetch act %s: %w", actID, err)
	}
	if err := s.meta.UpsertAct(act); err != nil {
		return fmt.Errorf("save act %s: %w", actID, err)
	}
	saved, err := s.meta.SaveArticles(actID, articles)
	if err != nil {
		return fmt.Errorf("save articles of %s: %w", actID, err)
	}
	logging.Legislation("act %s: saved %d of %d articles", actID, saved, len(articles))

	if err := s.embedAct(ctx, actID); err != nil {
		// Text lookups still work without vectors; log and carry on.
		logging.Get(logging.CategoryLegislation).Warn("embedding act %s failed: %v", actID, err)
	}
	return nil
}

// embedAct chunks every current article and upserts the vectors.
func (s *Service) embedAct(ctx context.Context, actID string) error {
	if s.embedder == nil || s.vectors == nil {
		return nil
	}

	articles, err := s.meta.ListArticles(actID)
	if err != nil {
		return err
	}

	for i := range articles {
		art := &articles[i]
		chunks := adapters.CreateArticleChunks(art)
		if len(chunks) == 0 {
			continue
		}
		chunkIDs, err := s.meta.SaveArticleChunks(art.ID, chunks)
		if err != nil {
			return err
		}
		vecs, err := s.embedder.EmbedBatch(ctx, chunks)
		if err != nil {
			return err
		}
		for j, vec := range vecs {
			vectorID := uuid.NewString()
			payload := types.ChunkPayload{
				DocID:        fmt.Sprintf("%s/%s", art.ActCode, art.ArticleNumber),
				DocumentType: types.DocLegislationArticle,
				SectionType:  types.SectionLawRefs,
				Text:         chunks[j],
				Date:         art.VersionDate,
				LawArticles:  []string{art.ArticleNumber},
			}
			if err := s.vectors.Upsert(vectorID, vec, payload); err != nil {
				return err
			}
			if err := s.meta.BindChunkVector(chunkIDs[j], vectorID); err != nil {
				return err
			}
		}
	}
	return nil
}

// GetArticle returns the current version of one article, fetching the
// act first if needed.
func (s *Service) GetArticle(ctx context.Context, actID, articleNumber string) (*types.LegislationArticle, error) {
	if err := s.EnsureExists(ctx, actID); err != nil {
		return nil, err
	}
	return s.meta.GetArticle(actID, articleNumber)
}

// GetArticles returns the current versions of several articles of one
// act, in the requested order where present.
func (s *Service) GetArticles(ctx context.Context, actID string, numbers []string) ([]types.LegislationArticle, error) {
	if err := s.EnsureExists(ctx, actID); err != nil {
		return nil, err
	}
	return s.meta.GetArticles(actID, numbers)
}

// StructureEntry is one table-of-contents row.
type StructureEntry struct {
	ArticleNumber string `json:"article_number"`
	Title         string `json:"title"`
	ChapterNumber string `json:"chapter_number,omitempty"`
	SectionNumber string `json:"section_number,omitempty"`
}

// GetStructure returns the act's table of contents in article order.
func (s *Service) GetStructure(ctx context.Context, actID string) ([]StructureEntry, error) {
	if err := s.EnsureExists(ctx, actID); err != nil {
		return nil, err
	}
	articles, err := s.meta.ListArticles(actID)
	if err != nil {
		return nil, err
	}
	out := make([]StructureEntry, len(articles))
	for i, a := range articles {
		out[i] = StructureEntry{
			ArticleNumber: a.ArticleNumber,
			Title:         a.Title,
			ChapterNumber: a.ChapterNumber,
			SectionNumber: a.SectionNumber,
		}
	}
	return out, nil
}

// Search runs a text search over the act's current articles.
func (s *Service) Search(ctx context.Context, query, actID string, limit int) ([]types.LegislationArticle, error) {
	const op = "legislation.Search"
	if query == "" {
		return nil, types.E(types.KindInvalidArgument, op, "query must not be empty")
	}
	if actID != "" {
		if err := s.EnsureExists(ctx, actID); err != nil {
			return nil, err
		}
	}
	return s.meta.SearchArticlesText(query, actID, limit)
}

// FindRelevant does semantic retrieval over legislation chunks, falling
// back to text search when the vector path is unavailable or errors.
func (s *Service) FindRelevant(ctx context.Context, query string, limit int) ([]types.VectorHit, error) {
	const op = "legislation.FindRelevant"
	if query == "" {
		return nil, types.E(types.KindInvalidArgument, op, "query must not be empty")
	}
	if limit <= 0 {
		limit = 10
	}

	if s.embedder != nil && s.vectors != nil {
		vecs, err := s.embedder.EmbedBatch(ctx, []string{query})
		if err == nil {
			hits, serr := s.vectors.Search(vecs[0], store.VectorFilter{
				DocumentType: types.DocLegislationArticle,
			}, limit)
			if serr == nil {
				return hits, nil
			}
			logging.Get(logging.CategoryLegislation).Warn("vector search failed, using text fallback: %v", serr)
		} else {
			logging.Get(logging.CategoryLegislation).Warn("query embedding failed, using text fallback: %v", err)
		}
	}

	articles, err := s.meta.SearchArticlesText(query, "", limit)
	if err != nil {
		return nil, err
	}
	hits := make([]types.VectorHit, len(articles))
	for i, a := range articles {
		hits[i] = types.VectorHit{
			Score: 0.5, // text match carries no distance, use a neutral score
			Payload: types.ChunkPayload{
				DocID:        fmt.Sprintf("%s/%s", a.ActCode, a.ArticleNumber),
				DocumentType: types.DocLegislationArticle,
				SectionType:  types.SectionLawRefs,
				Text:         a.Text,
				LawArticles:  []string{a.ArticleNumber},
			},
		}
	}
	return hits, nil
}
