package retrieval

import (
	"context"
	"sort"

	"github.com/nesall/ragd/internal/chunk"
	"github.com/nesall/ragd/internal/collector"
	"github.com/nesall/ragd/internal/embed"
	"github.com/nesall/ragd/internal/store"
)

const (
	// DefaultTopK bounds how many chunk hits step 2's vector search
	// returns before ranking aggregation.
	DefaultTopK = 20
	// DefaultMaxFullSources bounds the working set of sources promoted
	// to full content in step 3.
	DefaultMaxFullSources = 3
	// DefaultMaxChunks bounds the final assembled result list before it
	// is handed to the Completion Client.
	DefaultMaxChunks = 40
)

// Config configures a Planner.
type Config struct {
	TopK           int
	MaxFullSources int
	MaxChunks      int
}

func (c Config) withDefaults() Config {
	if c.TopK <= 0 {
		c.TopK = DefaultTopK
	}
	if c.MaxFullSources <= 0 {
		c.MaxFullSources = DefaultMaxFullSources
	}
	if c.MaxChunks <= 0 {
		c.MaxChunks = DefaultMaxChunks
	}
	return c
}

// Attachment is an inline file supplied with a chat request.
type Attachment struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// Request is the input to Plan: the user's message plus whatever
// attachments and explicit source hints accompany it.
type Request struct {
	Message     string
	Attachments []Attachment
	SourceIDs   []string
}

// Planner assembles chat context per the attachments → full sources →
// related sources → chunks ordering.
type Planner struct {
	collector *collector.Collector
	chunker   *chunk.Chunker
	embedder  *embed.Client
	store     *store.Store
	sources   []collector.SourceConfig
	cfg       Config
}

// New creates a Planner. sources is the full configured source list, used
// to resolve URL-kind fetches back to their headers/timeout; file and
// directory sources can be fetched without this lookup since
// Collector.FetchSource reads them by path directly.
func New(coll *collector.Collector, chunker *chunk.Chunker, embedder *embed.Client, st *store.Store, sources []collector.SourceConfig, cfg Config) *Planner {
	return &Planner{
		collector: coll,
		chunker:   chunker,
		embedder:  embedder,
		store:     st,
		sources:   sources,
		cfg:       cfg.withDefaults(),
	}
}

// Plan runs the full chat-context assembly algorithm and returns an
// ordered, deduplicated list of Search Results truncated to MaxChunks.
func (p *Planner) Plan(ctx context.Context, req Request) ([]SearchResult, error) {
	attachmentResults := p.wrapAttachments(req.Attachments)

	ranked, chunkHits, err := p.rankBySimilarity(ctx, req.Message)
	if err != nil {
		return nil, err
	}

	workingSet := p.buildWorkingSet(req.SourceIDs, ranked)

	fullResults, relatedResults, fullSourceIDs, err := p.expandFullAndRelated(ctx, workingSet)
	if err != nil {
		return nil, err
	}

	remainingChunks := make([]SearchResult, 0, len(chunkHits))
	for _, hit := range chunkHits {
		if _, covered := fullSourceIDs[hit.SourceID]; covered {
			continue
		}
		remainingChunks = append(remainingChunks, hit)
	}

	out := make([]SearchResult, 0, len(attachmentResults)+len(fullResults)+len(relatedResults)+len(remainingChunks))
	out = append(out, attachmentResults...)
	out = append(out, fullResults...)
	out = append(out, relatedResults...)
	out = append(out, remainingChunks...)

	if len(out) > p.cfg.MaxChunks {
		out = out[:p.cfg.MaxChunks]
	}
	return out, nil
}

// wrapAttachments implements step 1: each inline attachment becomes a
// full-similarity Search Result keyed by its filename.
func (p *Planner) wrapAttachments(attachments []Attachment) []SearchResult {
	out := make([]SearchResult, len(attachments))
	for i, a := range attachments {
		out[i] = SearchResult{
			Content:    a.Content,
			SourceID:   a.Filename,
			ChunkID:    WholeSource,
			Similarity: 1.0,
		}
	}
	return out
}

// rankBySimilarity implements step 2: chunk the question, embed each chunk
// as a query, search the store, and aggregate per-source similarity sums.
// It returns the source ids ranked by descending aggregate similarity
// alongside the raw chunk hits (in the store's own ranked order).
func (p *Planner) rankBySimilarity(ctx context.Context, message string) ([]string, []SearchResult, error) {
	questionChunks := p.chunker.Chunk(message, "__question__")
	if len(questionChunks) == 0 {
		return nil, nil, nil
	}

	texts := make([]string, len(questionChunks))
	for i, c := range questionChunks {
		texts[i] = c.Text
	}

	vecs, err := p.embedder.Encode(ctx, texts, embed.Query)
	if err != nil {
		return nil, nil, err
	}

	ranking := make(map[string]float64)
	seenChunk := make(map[string]bool)
	var hits []SearchResult
	for _, vec := range vecs {
		results, err := p.store.Search(ctx, vec, p.cfg.TopK)
		if err != nil {
			return nil, nil, err
		}
		for _, r := range results {
			ranking[r.SourceID] += r.Similarity
			key := r.SourceID + "|" + r.ChunkID
			if seenChunk[key] {
				continue
			}
			seenChunk[key] = true
			hits = append(hits, r)
		}
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })

	ranked := make([]string, 0, len(ranking))
	for id := range ranking {
		ranked = append(ranked, id)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranking[ranked[i]] != ranking[ranked[j]] {
			return ranking[ranked[i]] > ranking[ranked[j]]
		}
		return ranked[i] < ranked[j] // deterministic tiebreak
	})

	return ranked, hits, nil
}

// buildWorkingSet implements step 3: explicit source ids first, extended
// with the top-ranked sources up to MaxFullSources.
func (p *Planner) buildWorkingSet(explicit []string, ranked []string) []string {
	working := make([]string, 0, p.cfg.MaxFullSources)
	seen := make(map[string]bool)
	for _, id := range explicit {
		if seen[id] {
			continue
		}
		seen[id] = true
		working = append(working, id)
	}
	for _, id := range ranked {
		if len(working) >= p.cfg.MaxFullSources {
			break
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		working = append(working, id)
	}
	return working
}

// expandFullAndRelated implements steps 4: pull full content for the
// working set and, per source, its related sources, each as a
// full-similarity Search Result. fullSourceIDs covers both lists, used by
// the caller to drop redundant chunk hits.
func (p *Planner) expandFullAndRelated(ctx context.Context, workingSet []string) (full, related []SearchResult, fullSourceIDs map[string]bool, err error) {
	fullSourceIDs = make(map[string]bool)
	if len(workingSet) == 0 {
		return nil, nil, fullSourceIDs, nil
	}

	allSources, err := p.collectAllSources(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	relatedSeen := make(map[string]bool)
	for _, sourceID := range workingSet {
		src, cfg, ok := p.fetchFull(ctx, sourceID)
		if !ok {
			continue
		}
		full = append(full, toSearchResult(src))
		fullSourceIDs[sourceID] = true

		for _, rel := range collector.FilterRelatedSources(allSources, src) {
			if rel.URI == sourceID || relatedSeen[rel.URI] || fullSourceIDs[rel.URI] {
				continue
			}
			relatedSeen[rel.URI] = true
			fullSourceIDs[rel.URI] = true
			relSrc, err := p.collector.FetchSource(ctx, cfg, rel.URI)
			if err != nil {
				continue
			}
			related = append(related, toSearchResult(relSrc))
		}
	}

	return full, related, fullSourceIDs, nil
}

// collectAllSources gathers a lazy (no-content) listing across every
// configured source, used only to resolve related-source candidates.
func (p *Planner) collectAllSources(ctx context.Context) ([]collector.Source, error) {
	var all []collector.Source
	for _, src := range p.sources {
		found, err := p.collector.Collect(ctx, src, false)
		if err != nil {
			return nil, err
		}
		all = append(all, found...)
	}
	return all, nil
}

// fetchFull resolves sourceID to its owning SourceConfig and fetches full
// content. Non-URL sources can be fetched through any non-URL config,
// since Collector.FetchSource reads them by path directly; URL sources
// must be matched against the config carrying the matching URL.
func (p *Planner) fetchFull(ctx context.Context, sourceID string) (collector.Source, collector.SourceConfig, bool) {
	for _, cfg := range p.sources {
		if cfg.Kind == collector.KindURL && cfg.URL == sourceID {
			src, err := p.collector.FetchSource(ctx, cfg, sourceID)
			if err != nil {
				return collector.Source{}, collector.SourceConfig{}, false
			}
			return src, cfg, true
		}
	}
	for _, cfg := range p.sources {
		if cfg.Kind != collector.KindURL {
			src, err := p.collector.FetchSource(ctx, cfg, sourceID)
			if err != nil {
				continue
			}
			return src, cfg, true
		}
	}
	return collector.Source{}, collector.SourceConfig{}, false
}

func toSearchResult(src collector.Source) SearchResult {
	return SearchResult{
		Content:    src.Content,
		SourceID:   src.URI,
		ChunkID:    WholeSource,
		Similarity: 1.0,
	}
}
