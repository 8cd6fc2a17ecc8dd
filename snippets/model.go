package snippets

import (
	"slices"
	"time"
)

const (
	RoleModerator = "moderator"
	RoleAdmin     = "admin"

	// Dependency name bumped on every write; list responses are cached
	// against it.
	cacheDependency = "snippets"

	defaultPageSize = 20
)

type Snippet struct {
	ID          string    `json:"id" bson:"_id"`
	Title       string    `json:"title" bson:"title"`
	Description string    `json:"description,omitempty" bson:"description,omitempty"`
	Code        string    `json:"code" bson:"code"`
	Language    string    `json:"language" bson:"language"`
	Tags        []string  `json:"tags" bson:"tags"`
	AuthorID    string    `json:"authorId" bson:"authorId"`
	Verified    bool      `json:"verified" bson:"verified"`
	VerifiedBy  string    `json:"verifiedBy,omitempty" bson:"verifiedBy,omitempty"`
	Likes       int       `json:"likes" bson:"likes"`
	LikedBy     []string  `json:"likedBy,omitempty" bson:"likedBy,omitempty"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Clone returns a copy that shares no slices with s.
func (s *Snippet) Clone() *Snippet {
	clone := *s
	clone.Tags = slices.Clone(s.Tags)
	clone.LikedBy = slices.Clone(s.LikedBy)
	return &clone
}

// Filter narrows a list query. Zero fields match everything.
type Filter struct {
	Language string
	Tag      string
	AuthorID string
	Verified *bool
	Search   string
	Offset   int
	Limit    int
}

type CreateRequest struct {
	Title       string   `json:"title" validate:"required,min=3,max=120"`
	Description string   `json:"description" validate:"max=1000"`
	Code        string   `json:"code" validate:"required,max=65536"`
	Language    string   `json:"language" validate:"required,max=32"`
	Tags        []string `json:"tags" validate:"max=10,dive,required,max=32"`
}

type UpdateRequest struct {
	Title       *string  `json:"title" validate:"omitempty,min=3,max=120"`
	Description *string  `json:"description" validate:"omitempty,max=1000"`
	Code        *string  `json:"code" validate:"omitempty,min=1,max=65536"`
	Language    *string  `json:"language" validate:"omitempty,min=1,max=32"`
	Tags        []string `json:"tags" validate:"omitempty,max=10,dive,required,max=32"`
}

func (r *UpdateRequest) apply(s *Snippet) {
	if r.Title != nil {
		s.Title = *r.Title
	}
	if r.Description != nil {
		s.Description = *r.Description
	}
	if r.Code != nil {
		s.Code = *r.Code
	}
	if r.Language != nil {
		s.Language = *r.Language
	}
	if r.Tags != nil {
		s.Tags = r.Tags
	}
}

type ListQuery struct {
	Page     int    `query:"page" validate:"omitempty,min=1"`
	Limit    int    `query:"limit" validate:"omitempty,min=1,max=100"`
	Language string `query:"language" validate:"omitempty,max=32"`
	Tag      string `query:"tag" validate:"omitempty,max=32"`
	Author   string `query:"author" validate:"omitempty,max=128"`
	Verified *bool  `query:"verified"`
	Search   string `query:"q" validate:"omitempty,max=100"`
}

func (q *ListQuery) filter() Filter {
	page, limit := q.Page, q.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}

	return Filter{
		Language: q.Language,
		Tag:      q.Tag,
		AuthorID: q.Author,
		Verified: q.Verified,
		Search:   q.Search,
		Offset:   (page - 1) * limit,
		Limit:    limit,
	}
}
