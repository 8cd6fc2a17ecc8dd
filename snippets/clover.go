package snippets

import (
	"context"
	"regexp"
	"sort"
	"sync/atomic"

	"github.com/ostafen/clover"
	"go.uber.org/zap"

	"github.com/saiset-co/kodespace/types"
	"github.com/saiset-co/kodespace/utils"
)

const collection = "snippets"

// CloverRepository stores snippets in an embedded clover database. An
// empty path keeps the data in memory.
type CloverRepository struct {
	db     *clover.DB
	logger types.Logger
	path   string
	closed atomic.Bool
}

func NewCloverRepository(config *types.CloverStorageConfig, logger types.Logger) (*CloverRepository, error) {
	var db *clover.DB
	var err error

	if config.Path == "" {
		db, err = clover.Open("", clover.InMemoryMode(true))
	} else {
		db, err = clover.Open(config.Path)
	}
	if err != nil {
		return nil, types.WrapError(types.ErrStorageConnectionFailed, err.Error())
	}

	exists, err := db.HasCollection(collection)
	if err != nil {
		_ = db.Close()
		return nil, types.WrapError(err, "failed to check collection existence")
	}

	if !exists {
		if err := db.CreateCollection(collection); err != nil {
			_ = db.Close()
			return nil, types.WrapError(err, "failed to create collection")
		}
	}

	logger.Info("Clover snippet storage opened", zap.String("path", config.Path))

	return &CloverRepository{db: db, logger: logger, path: config.Path}, nil
}

func (r *CloverRepository) Create(ctx context.Context, snippet *Snippet) error {
	fields, err := toFields(snippet)
	if err != nil {
		return err
	}

	doc := clover.NewDocument()
	for key, value := range fields {
		doc.Set(key, value)
	}

	if err := r.db.Insert(collection, doc); err != nil {
		return types.WrapError(err, "failed to insert snippet")
	}

	return nil
}

func (r *CloverRepository) Get(ctx context.Context, id string) (*Snippet, error) {
	docs, err := r.db.Query(collection).Where(clover.Field("id").Eq(id)).FindAll()
	if err != nil {
		return nil, types.WrapError(err, "failed to find snippet")
	}

	if len(docs) == 0 {
		return nil, types.Errorf(types.ErrRecordNotFound, "snippet %s", id)
	}

	return fromDocument(docs[0])
}

func (r *CloverRepository) List(ctx context.Context, filter Filter) ([]*Snippet, int, error) {
	query := r.db.Query(collection)
	if criteria := cloverCriteria(filter); criteria != nil {
		query = query.Where(criteria)
	}

	docs, err := query.FindAll()
	if err != nil {
		return nil, 0, types.WrapError(err, "failed to list snippets")
	}

	all := make([]*Snippet, 0, len(docs))
	for _, doc := range docs {
		snippet, err := fromDocument(doc)
		if err != nil {
			r.logger.Warn("Skipping unreadable snippet document", zap.Error(err))
			continue
		}
		all = append(all, snippet)
	}

	sortNewestFirst(all)

	return page(all, filter.Offset, filter.Limit), len(all), nil
}

func (r *CloverRepository) Update(ctx context.Context, snippet *Snippet) error {
	query := r.db.Query(collection).Where(clover.Field("id").Eq(snippet.ID))

	count, err := query.Count()
	if err != nil {
		return types.WrapError(err, "failed to count snippets")
	}
	if count == 0 {
		return types.Errorf(types.ErrRecordNotFound, "snippet %s", snippet.ID)
	}

	fields, err := toFields(snippet)
	if err != nil {
		return err
	}

	if err := query.Update(fields); err != nil {
		return types.WrapError(err, "failed to update snippet")
	}

	return nil
}

func (r *CloverRepository) Delete(ctx context.Context, id string) error {
	query := r.db.Query(collection).Where(clover.Field("id").Eq(id))

	count, err := query.Count()
	if err != nil {
		return types.WrapError(err, "failed to count snippets")
	}
	if count == 0 {
		return types.Errorf(types.ErrRecordNotFound, "snippet %s", id)
	}

	if err := query.Delete(); err != nil {
		return types.WrapError(err, "failed to delete snippet")
	}

	return nil
}

func (r *CloverRepository) Ping(ctx context.Context) error {
	if r.closed.Load() {
		return types.ErrStorageConnectionFailed
	}

	if _, err := r.db.HasCollection(collection); err != nil {
		return types.WrapError(types.ErrStorageConnectionFailed, err.Error())
	}

	return nil
}

func (r *CloverRepository) Close(ctx context.Context) error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}

	if err := r.db.Close(); err != nil {
		return types.WrapError(err, "failed to close clover database")
	}

	r.logger.Info("Clover snippet storage closed")
	return nil
}

func cloverCriteria(filter Filter) *clover.Criteria {
	var criteria []*clover.Criteria

	if filter.Language != "" {
		criteria = append(criteria, clover.Field("language").Eq(filter.Language))
	}
	if filter.Tag != "" {
		criteria = append(criteria, clover.Field("tags").Contains(filter.Tag))
	}
	if filter.AuthorID != "" {
		criteria = append(criteria, clover.Field("authorId").Eq(filter.AuthorID))
	}
	if filter.Verified != nil {
		criteria = append(criteria, clover.Field("verified").Eq(*filter.Verified))
	}
	if filter.Search != "" {
		criteria = append(criteria, clover.Field("title").Like("(?i)"+regexp.QuoteMeta(filter.Search)))
	}

	if len(criteria) == 0 {
		return nil
	}

	combined := criteria[0]
	for _, c := range criteria[1:] {
		combined = combined.And(c)
	}
	return combined
}

// toFields flattens a snippet to JSON-native values so the document layout
// matches the JSON representation.
func toFields(snippet *Snippet) (map[string]interface{}, error) {
	raw, err := utils.Marshal(snippet)
	if err != nil {
		return nil, types.WrapError(err, "failed to encode snippet")
	}

	fields := make(map[string]interface{})
	if err := utils.Unmarshal(raw, &fields); err != nil {
		return nil, types.WrapError(err, "failed to encode snippet")
	}

	return fields, nil
}

func fromDocument(doc *clover.Document) (*Snippet, error) {
	fields := make(map[string]interface{})
	if err := doc.Unmarshal(&fields); err != nil {
		return nil, types.WrapError(err, "failed to decode snippet document")
	}
	delete(fields, "_id")

	raw, err := utils.Marshal(fields)
	if err != nil {
		return nil, types.WrapError(err, "failed to decode snippet document")
	}

	snippet := &Snippet{}
	if err := utils.Unmarshal(raw, snippet); err != nil {
		return nil, types.WrapError(err, "failed to decode snippet document")
	}

	return snippet, nil
}

func sortNewestFirst(list []*Snippet) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}

func page(list []*Snippet, offset, limit int) []*Snippet {
	if offset >= len(list) {
		return []*Snippet{}
	}

	end := len(list)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	return list[offset:end]
}
