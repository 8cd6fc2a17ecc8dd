package middleware

import (
	"strings"

	"github.com/valyala/fasthttp"

	"github.com/saiset-co/kodespace/utils"
)

const (
	DefaultRole = "user"

	userKey     = "kodespace.user"
	metadataKey = "kodespace.metadata"
)

// User is the identity an upstream gateway asserts through trusted headers.
type User struct {
	ID            string `json:"id"`
	Role          string `json:"role"`
	EmailVerified bool   `json:"emailVerified"`
}

func (u *User) HasRole(roles ...string) bool {
	return utils.ContainsFold(roles, u.Role)
}

// CurrentUser returns the identity stored by the auth middleware, or parses
// the trusted headers when the middleware did not run.
func CurrentUser(ctx *fasthttp.RequestCtx) (*User, bool) {
	if user, ok := ctx.UserValue(userKey).(*User); ok {
		return user, true
	}

	user, ok := userFromHeaders(ctx)
	if ok {
		ctx.SetUserValue(userKey, user)
	}
	return user, ok
}

// SetUser stores user on the request. Exposed for handler tests.
func SetUser(ctx *fasthttp.RequestCtx, user *User) {
	ctx.SetUserValue(userKey, user)
}

func userFromHeaders(ctx *fasthttp.RequestCtx) (*User, bool) {
	id := strings.TrimSpace(string(ctx.Request.Header.Peek(utils.HeaderUserID)))
	if id == "" {
		return nil, false
	}

	role := strings.TrimSpace(string(ctx.Request.Header.Peek(utils.HeaderUserRole)))
	if role == "" {
		role = DefaultRole
	}

	return &User{
		ID:            id,
		Role:          role,
		EmailVerified: string(ctx.Request.Header.Peek(utils.HeaderEmailVerified)) == "true",
	}, true
}
