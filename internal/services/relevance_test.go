package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"larder/internal/models"
)

type staticSource struct {
	records []models.ContentRecord
	pillars []models.PillarRecord
	err     error
	calls   int
}

func (s *staticSource) ListRecords(ctx context.Context, contentType string) ([]models.ContentRecord, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return append([]models.ContentRecord(nil), s.records...), nil
}

func (s *staticSource) GetRecord(ctx context.Context, contentType, slug string) (*models.ContentRecord, error) {
	for i := range s.records {
		if s.records[i].Slug == slug {
			return &s.records[i], nil
		}
	}
	return nil, nil
}

func (s *staticSource) ListPillars(ctx context.Context) ([]models.PillarRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	return append([]models.PillarRecord(nil), s.pillars...), nil
}

func slugs[T any](items []T, slug func(T) string) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = slug(it)
	}
	return out
}

func recordSlug(r models.ContentRecord) string { return r.Slug }
func pillarSlug(p models.PillarRecord) string  { return p.Slug }

func TestRankSoupScenario(t *testing.T) {
	src := &staticSource{records: []models.ContentRecord{
		{Slug: "a", Category: "soups", Tags: []string{"vegan", "quick"}},
		{Slug: "b", Category: "soups", Tags: []string{"vegan"}},
		{Slug: "c", Category: "soups", Tags: []string{"vegan", "quick"}},
		{Slug: "d", Category: "salads"},
	}}
	engine := NewRelevanceEngine(src, zap.NewNop())

	got := engine.Rank(context.Background(), models.ContentTypeRecipe, "a", 10)
	assert.Equal(t, []string{"c", "b"}, slugs(got, recordSlug))

	ref := &src.records[0]
	assert.Equal(t, 5, engine.ScoreRecord(ref, &src.records[1]))
	assert.Equal(t, 7, engine.ScoreRecord(ref, &src.records[2]))
}

func TestScoreRecordAllComponents(t *testing.T) {
	engine := NewRelevanceEngine(&staticSource{}, nil)
	ref := &models.ContentRecord{
		Category: "Mains", Subcategory: "pasta", Tags: []string{"Quick", "family"},
		Cuisine: "Italian", MealType: "dinner", CookingMethod: "boil",
		DietaryTags: []string{"vegetarian", "nut-free"}, Difficulty: "easy",
	}
	cand := &models.ContentRecord{
		Category: "mains", Subcategory: " Pasta ", Tags: []string{"quick", "FAMILY", "quick"},
		Cuisine: "italian", MealType: "Dinner", CookingMethod: "BOIL",
		DietaryTags: []string{"Vegetarian"}, Difficulty: "Easy",
	}
	// 3 + 2 + 2*2 + 2 + 2 + 1 + 1 + 1
	assert.Equal(t, 16, engine.ScoreRecord(ref, cand))

	// Absent optional fields never match each other.
	assert.Equal(t, 3, engine.ScoreRecord(&models.ContentRecord{Category: "x"}, &models.ContentRecord{Category: "x"}))
}

func TestRankTieBreakBySlug(t *testing.T) {
	src := &staticSource{records: []models.ContentRecord{
		{Slug: "ref", Category: "bread"},
		{Slug: "zeta", Category: "bread"},
		{Slug: "alpha", Category: "bread"},
		{Slug: "mid", Category: "bread"},
	}}
	engine := NewRelevanceEngine(src, nil)

	got := engine.Rank(context.Background(), models.ContentTypeRecipe, "ref", 2)
	assert.Equal(t, []string{"alpha", "mid"}, slugs(got, recordSlug))
}

func TestRankEmptyCases(t *testing.T) {
	ctx := context.Background()
	src := &staticSource{records: []models.ContentRecord{{Slug: "only", Category: "cakes"}}}
	engine := NewRelevanceEngine(src, nil)

	got := engine.Rank(ctx, models.ContentTypeRecipe, "only", 4)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	assert.Empty(t, engine.Rank(ctx, models.ContentTypeRecipe, "missing", 4))

	failing := NewRelevanceEngine(&staticSource{err: errors.New("disk gone")}, nil)
	assert.Empty(t, failing.Rank(ctx, models.ContentTypeRecipe, "only", 4))
}

func TestRankNegativeWeightsDropCandidates(t *testing.T) {
	w := DefaultRelevanceWeights
	w.Category = -1
	src := &staticSource{records: []models.ContentRecord{
		{Slug: "ref", Category: "pies", Cuisine: "british"},
		{Slug: "plain", Category: "pies"},
		{Slug: "british", Category: "pies", Cuisine: "British"},
	}}
	engine := NewRelevanceEngine(src, nil, WithRelevanceWeights(w))

	got := engine.Rank(context.Background(), models.ContentTypeRecipe, "ref", 4)
	assert.Equal(t, []string{"british"}, slugs(got, recordSlug))
}

func TestRankResultCache(t *testing.T) {
	src := &staticSource{records: []models.ContentRecord{
		{Slug: "a", Category: "soups"},
		{Slug: "b", Category: "soups"},
	}}
	engine := NewRelevanceEngine(src, nil, WithResultCache(16, time.Minute))

	first := engine.Rank(context.Background(), models.ContentTypeRecipe, "a", 4)
	second := engine.Rank(context.Background(), models.ContentTypeRecipe, "a", 4)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, src.calls)

	engine.Rank(context.Background(), models.ContentTypeRecipe, "a", 2)
	assert.Equal(t, 2, src.calls, "different limit is a different cache key")
}

func TestRankResultCacheSkipsFailedLoads(t *testing.T) {
	src := &staticSource{err: context.Canceled, records: []models.ContentRecord{
		{Slug: "a", Category: "soups", Tags: []string{"x"}},
		{Slug: "b", Category: "soups", Tags: []string{"x"}},
	}}
	engine := NewRelevanceEngine(src, nil, WithResultCache(16, time.Minute))

	assert.Empty(t, engine.Rank(context.Background(), models.ContentTypeRecipe, "a", 4))

	src.err = nil
	got := engine.Rank(context.Background(), models.ContentTypeRecipe, "a", 4)
	assert.Equal(t, []string{"b"}, slugs(got, recordSlug))
}

func TestRankWithCancelledCallerThenLiveCaller(t *testing.T) {
	root := t.TempDir()
	writeContent(t, root, "recipes", "a.md", "---\ncategory: soups\ntags: [x]\n---\n")
	writeContent(t, root, "recipes", "b.md", "---\ncategory: soups\ntags: [x]\n---\n")
	engine := NewRelevanceEngine(NewFileContentStore(root, nil), nil, WithResultCache(16, time.Minute))

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	engine.Rank(cancelled, models.ContentTypeRecipe, "a", 4)

	got := engine.Rank(context.Background(), models.ContentTypeRecipe, "a", 4)
	assert.Equal(t, []string{"b"}, slugs(got, recordSlug))
}

func TestRankReflectsNewContentWithoutCache(t *testing.T) {
	src := &staticSource{records: []models.ContentRecord{
		{Slug: "a", Category: "soups", Tags: []string{"x"}},
	}}
	engine := NewRelevanceEngine(src, nil)
	assert.Empty(t, engine.Rank(context.Background(), models.ContentTypeRecipe, "a", 4))

	src.records = append(src.records, models.ContentRecord{Slug: "b", Category: "soups", Tags: []string{"x"}})
	got := engine.Rank(context.Background(), models.ContentTypeRecipe, "a", 4)
	assert.Equal(t, []string{"b"}, slugs(got, recordSlug))
}

func TestRankPillars(t *testing.T) {
	src := &staticSource{pillars: []models.PillarRecord{
		{Slug: "bread-guide", Topic: "bread", Tags: []string{"baking", "yeast"}, RelatedKeywords: []string{"sourdough", "flour"}},
		{Slug: "sourdough-guide", Topic: "Bread", Tags: []string{"yeast"}, RelatedKeywords: []string{"sourdough"}},
		{Slug: "cake-guide", Topic: "cakes", Tags: []string{"baking"}, RelatedKeywords: []string{"flour"}},
		{Slug: "soup-guide", Topic: "soups"},
	}}
	engine := NewRelevanceEngine(src, nil)

	got := engine.RankPillars(context.Background(), "bread-guide", 0)
	// sourdough: 5+2+1=8, cake: 2+1=3, soup: 0 (dropped)
	assert.Equal(t, []string{"sourdough-guide", "cake-guide"}, slugs(got, pillarSlug))
	assert.Empty(t, engine.RankPillars(context.Background(), "nope", 3))
}

func TestPillarsForCategoryTiers(t *testing.T) {
	src := &staticSource{pillars: []models.PillarRecord{
		{Slug: "soup-basics", Topic: "soup"},
		{Slug: "soups-101", Topic: " Soups "},
		{Slug: "stock", Topic: "soups and stocks"},
		{Slug: "salad", Topic: "salads"},
	}}
	ctx := context.Background()

	exact := NewRelevanceEngine(src, nil)
	assert.Equal(t, []string{"soups-101"}, slugs(exact.PillarsForCategory(ctx, "SOUPS", 5), pillarSlug))

	broad := NewRelevanceEngine(src, nil, WithTopicContainsFallback(true))
	assert.Equal(t, []string{"soups-101", "soup-basics", "stock"}, slugs(broad.PillarsForCategory(ctx, "soups", 5), pillarSlug))
	assert.Empty(t, broad.PillarsForCategory(ctx, "  ", 5))
}

var (
	genCategory = gen.OneConstOf("soups", "salads", "bread")
	genTags     = gen.SliceOfN(3, gen.OneConstOf("vegan", "quick", "spicy", "cheap", "kids"))
)

func genPool() gopter.Gen {
	return gen.SliceOfN(12, gopter.CombineGens(genCategory, genTags, gen.OneConstOf("", "italian", "thai"))).
		Map(func(rows [][]interface{}) []models.ContentRecord {
			pool := make([]models.ContentRecord, len(rows))
			for i, row := range rows {
				pool[i] = models.ContentRecord{
					Slug:     fmt.Sprintf("r%02d", i),
					Category: row[0].(string),
					Tags:     row[1].([]string),
					Cuisine:  row[2].(string),
				}
			}
			return pool
		})
}

func TestRankProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("never returns the reference or another category", prop.ForAll(
		func(pool []models.ContentRecord, refIdx int) bool {
			if len(pool) == 0 {
				return true
			}
			ref := pool[refIdx%len(pool)]
			got := NewRelevanceEngine(&staticSource{records: pool}, nil).
				Rank(context.Background(), models.ContentTypeRecipe, ref.Slug, 50)
			for _, r := range got {
				if r.Slug == ref.Slug || r.Category != ref.Category {
					return false
				}
			}
			return true
		},
		genPool(), gen.IntRange(0, 100),
	))

	properties.Property("output is independent of pool order", prop.ForAll(
		func(pool []models.ContentRecord, refIdx int, seed int64) bool {
			if len(pool) == 0 {
				return true
			}
			ref := pool[refIdx%len(pool)].Slug
			shuffled := append([]models.ContentRecord(nil), pool...)
			rand.New(rand.NewSource(seed)).Shuffle(len(shuffled), func(i, j int) {
				shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
			})
			a := NewRelevanceEngine(&staticSource{records: pool}, nil).Rank(context.Background(), "recipes", ref, 5)
			b := NewRelevanceEngine(&staticSource{records: shuffled}, nil).Rank(context.Background(), "recipes", ref, 5)
			return fmt.Sprint(slugs(a, recordSlug)) == fmt.Sprint(slugs(b, recordSlug))
		},
		genPool(), gen.IntRange(0, 100), gen.Int64(),
	))

	properties.TestingRun(t)
}

func TestRankedScoresAreNonIncreasing(t *testing.T) {
	src := &staticSource{records: []models.ContentRecord{
		{Slug: "ref", Category: "soups", Tags: []string{"a", "b", "c"}, Cuisine: "thai"},
		{Slug: "x", Category: "soups", Tags: []string{"a"}},
		{Slug: "y", Category: "soups", Tags: []string{"a", "b", "c"}, Cuisine: "thai"},
		{Slug: "z", Category: "soups", Cuisine: "thai"},
	}}
	engine := NewRelevanceEngine(src, nil)
	got := engine.Rank(context.Background(), "recipes", "ref", 10)
	require.Len(t, got, 3)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, engine.ScoreRecord(&src.records[0], &got[i-1]), engine.ScoreRecord(&src.records[0], &got[i]))
	}
}
