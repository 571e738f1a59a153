package cache_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/sandrolain/dhis2expr/pkg/cache"
	"github.com/sandrolain/dhis2expr/pkg/parser"
	"github.com/sandrolain/dhis2expr/pkg/types"
)

func key(text string) cache.Key {
	return cache.Key{Text: text, Mode: types.ModeValidationRule}
}

func parse(t *testing.T, text string) *types.Expression {
	t.Helper()
	expr, err := parser.Parse(text, types.ModeValidationRule)
	if err != nil {
		t.Fatal(err)
	}
	return expr
}

func TestCacheNew(t *testing.T) {
	c := cache.New(10)
	if got := c.Len(); got != 0 {
		t.Fatalf("expected empty cache, got %d", got)
	}
	if got := c.Capacity(); got != 10 {
		t.Fatalf("expected capacity 10, got %d", got)
	}
}

func TestCacheDefaultCapacity(t *testing.T) {
	c := cache.New(0)
	if got := c.Capacity(); got != 256 {
		t.Fatalf("expected default capacity 256, got %d", got)
	}
}

func TestCacheSetGet(t *testing.T) {
	c := cache.New(4)
	expr := parse(t, "#{FTRrcoaog83} * 2")
	c.Set(key("#{FTRrcoaog83} * 2"), expr)
	if got := c.Len(); got != 1 {
		t.Fatalf("expected 1 entry, got %d", got)
	}
	got, ok := c.Get(key("#{FTRrcoaog83} * 2"))
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got != expr {
		t.Fatal("expected same expression pointer")
	}
}

func TestCacheKeyIncludesModeAndAnnotate(t *testing.T) {
	c := cache.New(4)
	c.Set(key("1"), parse(t, "1"))
	if _, ok := c.Get(cache.Key{Text: "1", Mode: types.ModeIndicator}); ok {
		t.Fatal("expected miss for a different mode")
	}
	if _, ok := c.Get(cache.Key{Text: "1", Mode: types.ModeValidationRule, Annotate: true}); ok {
		t.Fatal("expected miss for an annotated parse")
	}
}

func TestCacheLRUEviction(t *testing.T) {
	c := cache.New(3)
	for _, k := range []string{"1", "2", "3"} {
		c.Set(key(k), parse(t, k))
	}
	// touch "1" so "2" becomes the least recently used
	c.Get(key("1"))
	c.Set(key("4"), parse(t, "4"))

	if got := c.Len(); got != 3 {
		t.Fatalf("expected 3 entries after eviction, got %d", got)
	}
	if _, ok := c.Get(key("2")); ok {
		t.Fatal(`expected "2" to be evicted (LRU)`)
	}
	for _, k := range []string{"1", "3", "4"} {
		if _, ok := c.Get(key(k)); !ok {
			t.Fatalf("expected %q to survive", k)
		}
	}
}

func TestCacheReplace(t *testing.T) {
	c := cache.New(2)
	first, second := parse(t, "1"), parse(t, "1")
	c.Set(key("1"), first)
	c.Set(key("1"), second)
	if got := c.Len(); got != 1 {
		t.Fatalf("expected 1 entry, got %d", got)
	}
	if got, _ := c.Get(key("1")); got != second {
		t.Fatal("expected the replaced expression")
	}
}

func TestCacheInvalidate(t *testing.T) {
	c := cache.New(4)
	c.Set(key("1"), parse(t, "1"))
	c.Invalidate(key("1"))
	if _, ok := c.Get(key("1")); ok {
		t.Fatal("expected miss after Invalidate")
	}
	c.Invalidate(key("missing"))
}

func TestCacheStatsAndClear(t *testing.T) {
	c := cache.New(4)
	c.Set(key("1"), parse(t, "1"))
	c.Get(key("1"))
	c.Get(key("1"))
	c.Get(key("2"))

	want := cache.Stats{Hits: 2, Misses: 1, Len: 1}
	if got := c.Stats(); got != want {
		t.Fatalf("Stats() = %+v, want %+v", got, want)
	}

	c.Clear()
	if got := c.Stats(); got != (cache.Stats{}) {
		t.Fatalf("expected zero stats after Clear, got %+v", got)
	}
}

func TestCacheGetOrParse(t *testing.T) {
	c := cache.New(4)
	calls := 0
	parseOnce := func() (*types.Expression, error) {
		calls++
		return parser.Parse("1 + 1", types.ModeValidationRule)
	}

	a, err := c.GetOrParse(key("1 + 1"), parseOnce)
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.GetOrParse(key("1 + 1"), parseOnce)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatal("expected the cached expression on the second call")
	}
	if calls != 1 {
		t.Fatalf("expected parse to run once, ran %d times", calls)
	}
}

func TestCacheGetOrParseDoesNotCacheErrors(t *testing.T) {
	c := cache.New(4)
	boom := errors.New("boom")
	if _, err := c.GetOrParse(key("1 +"), func() (*types.Expression, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("expected parse error, got %v", err)
	}
	if got := c.Len(); got != 0 {
		t.Fatalf("expected nothing cached, got %d", got)
	}
}

func TestCacheConcurrent(t *testing.T) {
	c := cache.New(8)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			text := fmt.Sprintf("%d + 1", i%4)
			for j := 0; j < 50; j++ {
				if _, err := c.GetOrParse(key(text), func() (*types.Expression, error) {
					return parser.Parse(text, types.ModeValidationRule)
				}); err != nil {
					t.Error(err)
					return
				}
			}
		}(i)
	}
	wg.Wait()
	if got := c.Len(); got != 4 {
		t.Fatalf("expected 4 entries, got %d", got)
	}
}
