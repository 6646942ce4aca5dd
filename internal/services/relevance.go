package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"larder/internal/metrics"
	"larder/internal/models"
	"larder/internal/utils"
)

// RelevanceWeights 相关度各项加分
type RelevanceWeights struct {
	Category      int // 3，候选池已按分类过滤，恒成立
	Subcategory   int // 2
	Tag           int // 2 / 每个共同标签
	Cuisine       int // 2
	MealType      int // 2
	CookingMethod int // 1
	DietaryTag    int // 1 / 每个共同饮食标签
	Difficulty    int // 1

	PillarTopic   int // 5
	PillarTag     int // 2 / 每个
	PillarKeyword int // 1 / 每个
}

var DefaultRelevanceWeights = RelevanceWeights{
	Category:      3,
	Subcategory:   2,
	Tag:           2,
	Cuisine:       2,
	MealType:      2,
	CookingMethod: 1,
	DietaryTag:    1,
	Difficulty:    1,

	PillarTopic:   5,
	PillarTag:     2,
	PillarKeyword: 1,
}

const (
	DefaultRelatedLimit = 4
	DefaultPillarLimit  = 3
)

// RelevanceEngine scores and orders related content for a reference record.
// It never fails: missing references, empty pools and load errors all produce an
// empty result.
type RelevanceEngine struct {
	source           ContentSource
	weights          RelevanceWeights
	containsFallback bool
	records          *utils.TTLCache[[]models.ContentRecord]
	pillars          *utils.TTLCache[[]models.PillarRecord]
	cacheTTL         time.Duration
	metrics          *metrics.Metrics
	logger           *zap.Logger
}

type RelevanceOption func(*RelevanceEngine)

// WithTopicContainsFallback enables the substring tier of PillarsForCategory.
func WithTopicContainsFallback(enabled bool) RelevanceOption {
	return func(e *RelevanceEngine) { e.containsFallback = enabled }
}

// WithResultCache keeps ranked results in a per-engine LRU for ttl. Off by
// default: with it enabled, content edits show up only after ttl. Failed loads
// and unknown references are never cached.
func WithResultCache(size int, ttl time.Duration) RelevanceOption {
	return func(e *RelevanceEngine) {
		rc, err := utils.NewTTLCache[[]models.ContentRecord](size, nil)
		if err != nil {
			e.logger.Warn("relevance result cache disabled", zap.Error(err))
			return
		}
		pc, err := utils.NewTTLCache[[]models.PillarRecord](size, nil)
		if err != nil {
			e.logger.Warn("relevance result cache disabled", zap.Error(err))
			return
		}
		e.records, e.pillars, e.cacheTTL = rc, pc, ttl
	}
}

func WithRelevanceMetrics(m *metrics.Metrics) RelevanceOption {
	return func(e *RelevanceEngine) { e.metrics = m }
}

func WithRelevanceWeights(w RelevanceWeights) RelevanceOption {
	return func(e *RelevanceEngine) { e.weights = w }
}

func NewRelevanceEngine(source ContentSource, logger *zap.Logger, opts ...RelevanceOption) *RelevanceEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &RelevanceEngine{
		source:  source,
		weights: DefaultRelevanceWeights,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// normalize is the single comparison form for every metadata string.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizedSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if n := normalize(v); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

func sharedCount(a, b []string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	left := normalizedSet(a)
	n := 0
	for v := range normalizedSet(b) {
		if _, ok := left[v]; ok {
			n++
		}
	}
	return n
}

// sameOptional is true only when both values are present and equal.
func sameOptional(a, b string) bool {
	na := normalize(a)
	return na != "" && na == normalize(b)
}

// ScoreRecord computes the additive relevance of candidate against reference.
// Category equality is assumed: Rank only scores same-category candidates.
func (e *RelevanceEngine) ScoreRecord(reference, candidate *models.ContentRecord) int {
	w := e.weights
	score := w.Category
	if sameOptional(reference.Subcategory, candidate.Subcategory) {
		score += w.Subcategory
	}
	score += sharedCount(reference.Tags, candidate.Tags) * w.Tag
	if sameOptional(reference.Cuisine, candidate.Cuisine) {
		score += w.Cuisine
	}
	if sameOptional(reference.MealType, candidate.MealType) {
		score += w.MealType
	}
	if sameOptional(reference.CookingMethod, candidate.CookingMethod) {
		score += w.CookingMethod
	}
	score += sharedCount(reference.DietaryTags, candidate.DietaryTags) * w.DietaryTag
	if sameOptional(reference.Difficulty, candidate.Difficulty) {
		score += w.Difficulty
	}
	return score
}

// ScorePillar computes the additive relevance between two guides.
func (e *RelevanceEngine) ScorePillar(reference, candidate *models.PillarRecord) int {
	w := e.weights
	score := 0
	if sameOptional(reference.Topic, candidate.Topic) {
		score += w.PillarTopic
	}
	score += sharedCount(reference.Tags, candidate.Tags) * w.PillarTag
	score += sharedCount(reference.RelatedKeywords, candidate.RelatedKeywords) * w.PillarKeyword
	return score
}

type scored[T any] struct {
	item  T
	slug  string
	score int
}

// rankScored drops non-positive scores, orders by score desc then slug asc, and truncates.
func rankScored[T any](items []scored[T], limit int) []T {
	kept := items[:0]
	for _, it := range items {
		if it.score > 0 {
			kept = append(kept, it)
		}
	}
	sort.Slice(kept, func(i, j int) bool {
		if kept[i].score != kept[j].score {
			return kept[i].score > kept[j].score
		}
		return kept[i].slug < kept[j].slug
	})
	if len(kept) > limit {
		kept = kept[:limit]
	}
	out := make([]T, len(kept))
	for i, it := range kept {
		out[i] = it.item
	}
	return out
}

// Rank returns up to limit records of contentType related to the record with
// referenceSlug. A limit ≤ 0 uses DefaultRelatedLimit.
func (e *RelevanceEngine) Rank(ctx context.Context, contentType, referenceSlug string, limit int) []models.ContentRecord {
	if limit <= 0 {
		limit = DefaultRelatedLimit
	}
	cacheKey := fmt.Sprintf("related:%s:%s:%d", contentType, referenceSlug, limit)
	if e.records != nil {
		if cached, ok := e.records.Get(cacheKey); ok {
			return append([]models.ContentRecord(nil), cached...)
		}
	}

	start := time.Now()
	result, ok := e.rank(ctx, contentType, referenceSlug, limit)
	e.metrics.ObserveRank("records", time.Since(start), len(result))

	if ok && e.records != nil {
		e.records.Set(cacheKey, result, e.cacheTTL)
	}
	return append([]models.ContentRecord(nil), result...)
}

// rank reports ok=false when the result must not be cached: the source failed
// or the reference is missing.
func (e *RelevanceEngine) rank(ctx context.Context, contentType, referenceSlug string, limit int) ([]models.ContentRecord, bool) {
	records, err := e.source.ListRecords(ctx, contentType)
	if err != nil {
		e.logger.Warn("load content for ranking", zap.String("type", contentType), zap.Error(err))
		return []models.ContentRecord{}, false
	}

	var reference *models.ContentRecord
	for i := range records {
		if records[i].Slug == referenceSlug {
			reference = &records[i]
			break
		}
	}
	if reference == nil {
		return []models.ContentRecord{}, false
	}

	category := normalize(reference.Category)
	candidates := make([]scored[models.ContentRecord], 0, len(records))
	for i := range records {
		c := &records[i]
		if c.Slug == reference.Slug || category == "" || normalize(c.Category) != category {
			continue
		}
		candidates = append(candidates, scored[models.ContentRecord]{
			item:  *c,
			slug:  c.Slug,
			score: e.ScoreRecord(reference, c),
		})
	}
	return rankScored(candidates, limit), true
}

// RankPillars ranks other guides against the guide with referenceSlug.
func (e *RelevanceEngine) RankPillars(ctx context.Context, referenceSlug string, limit int) []models.PillarRecord {
	if limit <= 0 {
		limit = DefaultPillarLimit
	}
	cacheKey := fmt.Sprintf("pillars:%s:%d", referenceSlug, limit)
	if e.pillars != nil {
		if cached, ok := e.pillars.Get(cacheKey); ok {
			return append([]models.PillarRecord(nil), cached...)
		}
	}

	start := time.Now()
	result, ok := e.rankPillars(ctx, referenceSlug, limit)
	e.metrics.ObserveRank("pillars", time.Since(start), len(result))

	if ok && e.pillars != nil {
		e.pillars.Set(cacheKey, result, e.cacheTTL)
	}
	return append([]models.PillarRecord(nil), result...)
}

func (e *RelevanceEngine) rankPillars(ctx context.Context, referenceSlug string, limit int) ([]models.PillarRecord, bool) {
	pillars, err := e.source.ListPillars(ctx)
	if err != nil {
		e.logger.Warn("load guides for ranking", zap.Error(err))
		return []models.PillarRecord{}, false
	}

	var reference *models.PillarRecord
	for i := range pillars {
		if pillars[i].Slug == referenceSlug {
			reference = &pillars[i]
			break
		}
	}
	if reference == nil {
		return []models.PillarRecord{}, false
	}

	candidates := make([]scored[models.PillarRecord], 0, len(pillars))
	for i := range pillars {
		p := &pillars[i]
		if p.Slug == reference.Slug {
			continue
		}
		candidates = append(candidates, scored[models.PillarRecord]{
			item:  *p,
			slug:  p.Slug,
			score: e.ScorePillar(reference, p),
		})
	}
	return rankScored(candidates, limit), true
}

// PillarsForCategory finds the guides whose topic matches a record's category.
// Exact matches (after normalization) come first; substring matches in either
// direction follow only when the contains fallback is enabled.
func (e *RelevanceEngine) PillarsForCategory(ctx context.Context, category string, limit int) []models.PillarRecord {
	if limit <= 0 {
		limit = DefaultPillarLimit
	}
	want := normalize(category)
	if want == "" {
		return []models.PillarRecord{}
	}

	pillars, err := e.source.ListPillars(ctx)
	if err != nil {
		e.logger.Warn("load guides for category", zap.String("category", category), zap.Error(err))
		return []models.PillarRecord{}
	}

	const exactTier, containsTier = 2, 1
	candidates := make([]scored[models.PillarRecord], 0)
	for _, p := range pillars {
		topic := normalize(p.Topic)
		tier := 0
		switch {
		case topic == "":
		case topic == want:
			tier = exactTier
		case e.containsFallback && (strings.Contains(topic, want) || strings.Contains(want, topic)):
			tier = containsTier
		}
		candidates = append(candidates, scored[models.PillarRecord]{item: p, slug: p.Slug, score: tier})
	}
	return rankScored(candidates, limit)
}
