package middleware

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/valyala/fasthttp"

	"github.com/saiset-co/kodespace/types"
)

func TestAuthAndRoleGates(t *testing.T) {
	env := newTestEnv(t, nil)

	adminRoute := &types.RouteConfig{Middlewares: []string{"auth", "role"}, Roles: []string{"admin"}}
	verifiedRoute := &types.RouteConfig{Middlewares: []string{"auth", "email_verified"}}

	tests := []struct {
		name    string
		route   *types.RouteConfig
		headers map[string]string
		status  int
		code    string
	}{
		{"public route", nil, nil, fasthttp.StatusOK, ""},
		{"missing identity", adminRoute, nil, fasthttp.StatusUnauthorized, "UNAUTHORIZED"},
		{"wrong role", adminRoute, map[string]string{"X-User-ID": "u1"}, fasthttp.StatusForbidden, "FORBIDDEN"},
		{"role matches case-insensitively", adminRoute, map[string]string{"X-User-ID": "u1", "X-User-Role": "Admin"}, fasthttp.StatusOK, ""},
		{"email not verified", verifiedRoute, map[string]string{"X-User-ID": "u1"}, fasthttp.StatusForbidden, "EMAIL_NOT_VERIFIED"},
		{"email verified", verifiedRoute, map[string]string{"X-User-ID": "u1", "X-Email-Verified": "true"}, fasthttp.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := newRequest(fasthttp.MethodGet, "/admin", tt.headers)
			env.serve(ctx, okHandler(`{}`), tt.route)

			assert.Equal(t, tt.status, ctx.Response.StatusCode())
			if tt.code != "" {
				assert.Equal(t, tt.code, string(decodeError(t, ctx).Error.Code))
			}
		})
	}
}

func TestCurrentUser(t *testing.T) {
	ctx := newRequest(fasthttp.MethodGet, "/", map[string]string{"X-User-ID": " u7 "})

	user, ok := CurrentUser(ctx)
	assert.True(t, ok)
	assert.Equal(t, "u7", user.ID)
	assert.Equal(t, DefaultRole, user.Role)
	assert.False(t, user.EmailVerified)

	_, ok = CurrentUser(newRequest(fasthttp.MethodGet, "/", nil))
	assert.False(t, ok)

	stored := newRequest(fasthttp.MethodGet, "/", nil)
	SetUser(stored, &User{ID: "fixed", Role: "admin"})
	user, ok = CurrentUser(stored)
	assert.True(t, ok)
	assert.Equal(t, "fixed", user.ID)
}
