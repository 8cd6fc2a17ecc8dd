package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snippetQuery struct {
	Language string `json:"language"`
	Page     int    `json:"page"`
}

func TestCached_MemoizesSuccessfulResults(t *testing.T) {
	store := newTestCache(t, newFakeClock(), nil)

	calls := 0
	loader := Cached(store, "snippets", func(ctx context.Context, q snippetQuery) ([]string, error) {
		calls++
		return []string{q.Language, "result"}, nil
	})

	first, err := loader(context.Background(), snippetQuery{Language: "go", Page: 1})
	require.NoError(t, err)
	second, err := loader(context.Background(), snippetQuery{Language: "go", Page: 1})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)

	_, err = loader(context.Background(), snippetQuery{Language: "rust", Page: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.True(t, store.Has(`snippets:{"language":"go","page":1}`))
}

func TestCached_DoesNotCacheErrors(t *testing.T) {
	store := newTestCache(t, newFakeClock(), nil)

	calls := 0
	boom := errors.New("boom")
	loader := Cached(store, "flaky", func(ctx context.Context, id string) (int, error) {
		calls++
		if calls == 1 {
			return 0, boom
		}
		return 42, nil
	})

	_, err := loader(context.Background(), "a")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, store.Size())

	value, err := loader(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 42, value)
	assert.Equal(t, 2, calls)
}

func TestCached_TTLAndKeyFunc(t *testing.T) {
	clock := newFakeClock()
	store := newTestCache(t, clock, nil)

	calls := 0
	loader := Cached(store, "user", func(ctx context.Context, id int) (string, error) {
		calls++
		return "user", nil
	},
		WithTTL[int](time.Second),
		WithKeyFunc(func(id int) (string, error) { return "id-fixed", nil }),
	)

	_, _ = loader(context.Background(), 1)
	_, _ = loader(context.Background(), 2)
	assert.Equal(t, 1, calls)
	assert.True(t, store.Has("user:id-fixed"))

	clock.Advance(2 * time.Second)
	_, _ = loader(context.Background(), 1)
	assert.Equal(t, 2, calls)
}

func TestCached_KeyErrorBypassesCache(t *testing.T) {
	store := newTestCache(t, newFakeClock(), nil)

	calls := 0
	loader := Cached(store, "bypass", func(ctx context.Context, id int) (int, error) {
		calls++
		return id, nil
	}, WithKeyFunc(func(int) (string, error) { return "", errors.New("no key") }))

	_, _ = loader(context.Background(), 1)
	_, _ = loader(context.Background(), 1)

	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, store.Size())
}

func TestGetAs(t *testing.T) {
	store := newTestCache(t, newFakeClock(), nil)

	store.Set("live", snippetQuery{Language: "go"}, 0)
	store.Set("json", []byte(`{"language":"python","page":3}`), 0)
	store.Set("text", []byte("plain"), 0)
	store.Set("wrong", 12, 0)

	live, ok := GetAs[snippetQuery](store, "live")
	require.True(t, ok)
	assert.Equal(t, "go", live.Language)

	decoded, ok := GetAs[snippetQuery](store, "json")
	require.True(t, ok)
	assert.Equal(t, snippetQuery{Language: "python", Page: 3}, decoded)

	text, ok := GetAs[string](store, "text")
	require.True(t, ok)
	assert.Equal(t, "plain", text)

	_, ok = GetAs[snippetQuery](store, "wrong")
	assert.False(t, ok)

	_, ok = GetAs[snippetQuery](store, "absent")
	assert.False(t, ok)
}

func TestRevisions(t *testing.T) {
	store := newTestCache(t, newFakeClock(), nil)
	revisions := NewRevisions(store)

	initial := revisions.Current([]string{"snippets", "users"})
	assert.Equal(t, "snippets=0,users=0", initial)
	assert.Equal(t, initial, revisions.Current([]string{"users", "snippets"}))
	assert.Empty(t, revisions.Current(nil))

	revisions.Bump("snippets")
	bumped := revisions.Current([]string{"snippets", "users"})
	assert.NotEqual(t, initial, bumped)
	assert.Equal(t, "users=0", revisions.Current([]string{"users"}))

	revisions.Bump("snippets")
	assert.NotEqual(t, bumped, revisions.Current([]string{"snippets", "users"}))
}
