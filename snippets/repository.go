package snippets

import (
	"context"

	"github.com/saiset-co/kodespace/types"
)

// Repository persists snippets. Get, Update and Delete return
// types.ErrRecordNotFound for unknown IDs. List returns the requested page
// newest first together with the total number of matches.
type Repository interface {
	Create(ctx context.Context, snippet *Snippet) error
	Get(ctx context.Context, id string) (*Snippet, error)
	List(ctx context.Context, filter Filter) ([]*Snippet, int, error)
	Update(ctx context.Context, snippet *Snippet) error
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

func NewRepository(ctx context.Context, config *types.StorageConfig, logger types.Logger) (Repository, error) {
	if config == nil {
		return nil, types.Errorf(types.ErrConfigIsNil, "storage")
	}

	switch config.Type {
	case "clover", "":
		cloverConfig := config.Clover
		if cloverConfig == nil {
			cloverConfig = &types.CloverStorageConfig{}
		}
		return NewCloverRepository(cloverConfig, logger)
	case "mongo":
		if config.Mongo == nil {
			return nil, types.Errorf(types.ErrConfigIsNil, "storage.mongo")
		}
		return NewMongoRepository(ctx, config.Mongo, logger)
	default:
		return nil, types.Errorf(types.ErrStorageTypeUnknown, "type: %s", config.Type)
	}
}
