package snippets

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/saiset-co/kodespace/logger"
	"github.com/saiset-co/kodespace/types"
)

func newCloverRepository(t *testing.T) *CloverRepository {
	t.Helper()

	repo, err := NewCloverRepository(&types.CloverStorageConfig{Path: filepath.Join(t.TempDir(), "db")},
		logger.NewZapWrapper(zap.NewNop()))
	require.NoError(t, err)

	t.Cleanup(func() { _ = repo.Close(context.Background()) })
	return repo
}

func newSnippet(title, language, author string, tags []string, created time.Time) *Snippet {
	return &Snippet{
		ID:        uuid.NewString(),
		Title:     title,
		Code:      "fmt.Println(\"hi\")",
		Language:  language,
		Tags:      tags,
		AuthorID:  author,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestCloverRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	repo := newCloverRepository(t)

	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	snippet := newSnippet("Hello world", "go", "alice", []string{"basics"}, created)

	require.NoError(t, repo.Create(ctx, snippet))

	got, err := repo.Get(ctx, snippet.ID)
	require.NoError(t, err)
	assert.Equal(t, snippet.Title, got.Title)
	assert.Equal(t, []string{"basics"}, got.Tags)
	assert.True(t, created.Equal(got.CreatedAt))

	got.Verified = true
	got.VerifiedBy = "mod"
	require.NoError(t, repo.Update(ctx, got))

	got, err = repo.Get(ctx, snippet.ID)
	require.NoError(t, err)
	assert.True(t, got.Verified)
	assert.Equal(t, "mod", got.VerifiedBy)

	require.NoError(t, repo.Delete(ctx, snippet.ID))

	_, err = repo.Get(ctx, snippet.ID)
	assert.ErrorIs(t, err, types.ErrRecordNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, snippet.ID), types.ErrRecordNotFound)
	assert.ErrorIs(t, repo.Update(ctx, snippet), types.ErrRecordNotFound)
}

func TestCloverRepository_List(t *testing.T) {
	ctx := context.Background()
	repo := newCloverRepository(t)

	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	fixtures := []*Snippet{
		newSnippet("Go channels", "go", "alice", []string{"concurrency"}, base),
		newSnippet("Go generics", "go", "bob", []string{"types"}, base.Add(time.Minute)),
		newSnippet("Python lists", "python", "alice", []string{"basics"}, base.Add(2*time.Minute)),
	}
	fixtures[1].Verified = true

	for _, s := range fixtures {
		require.NoError(t, repo.Create(ctx, s))
	}

	verified := true

	tests := []struct {
		name      string
		filter    Filter
		wantTotal int
		wantIDs   []string
	}{
		{name: "all newest first", filter: Filter{Limit: 10}, wantTotal: 3,
			wantIDs: []string{fixtures[2].ID, fixtures[1].ID, fixtures[0].ID}},
		{name: "language", filter: Filter{Language: "go", Limit: 10}, wantTotal: 2,
			wantIDs: []string{fixtures[1].ID, fixtures[0].ID}},
		{name: "author", filter: Filter{AuthorID: "alice", Limit: 10}, wantTotal: 2,
			wantIDs: []string{fixtures[2].ID, fixtures[0].ID}},
		{name: "tag", filter: Filter{Tag: "types", Limit: 10}, wantTotal: 1,
			wantIDs: []string{fixtures[1].ID}},
		{name: "verified", filter: Filter{Verified: &verified, Limit: 10}, wantTotal: 1,
			wantIDs: []string{fixtures[1].ID}},
		{name: "search ignores case", filter: Filter{Search: "GO", Limit: 10}, wantTotal: 2,
			wantIDs: []string{fixtures[1].ID, fixtures[0].ID}},
		{name: "second page", filter: Filter{Offset: 2, Limit: 2}, wantTotal: 3,
			wantIDs: []string{fixtures[0].ID}},
		{name: "past the end", filter: Filter{Offset: 5, Limit: 2}, wantTotal: 3,
			wantIDs: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, total, err := repo.List(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTotal, total)

			ids := make([]string, 0, len(list))
			for _, s := range list {
				ids = append(ids, s.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestCloverRepository_PingAfterClose(t *testing.T) {
	repo := newCloverRepository(t)

	require.NoError(t, repo.Ping(context.Background()))
	require.NoError(t, repo.Close(context.Background()))
	require.NoError(t, repo.Close(context.Background()))

	assert.ErrorIs(t, repo.Ping(context.Background()), types.ErrStorageConnectionFailed)
}

func TestNewRepository(t *testing.T) {
	log := logger.NewZapWrapper(zap.NewNop())

	_, err := NewRepository(context.Background(), nil, log)
	assert.ErrorIs(t, err, types.ErrConfigIsNil)

	_, err = NewRepository(context.Background(), &types.StorageConfig{Type: "sqlite"}, log)
	assert.ErrorIs(t, err, types.ErrStorageTypeUnknown)

	_, err = NewRepository(context.Background(), &types.StorageConfig{Type: "mongo"}, log)
	assert.ErrorIs(t, err, types.ErrConfigIsNil)

	repo, err := NewRepository(context.Background(), &types.StorageConfig{
		Type:   "clover",
		Clover: &types.CloverStorageConfig{Path: filepath.Join(t.TempDir(), "db")},
	}, log)
	require.NoError(t, err)
	assert.IsType(t, &CloverRepository{}, repo)
	require.NoError(t, repo.Close(context.Background()))
}
