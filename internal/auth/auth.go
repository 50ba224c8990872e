// Package auth resolves the caller of a request. Sessions are owned by the
// upstream auth proxy, which forwards the authenticated identity in headers.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/joao-fontenele/account-storefront/internal/domain"
)

const (
	HeaderUserID      = "X-User-Id"
	HeaderUserEmail   = "X-User-Email"
	HeaderUserRole    = "X-User-Role"
	HeaderProxySecret = "X-Auth-Proxy-Secret"
)

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Principal is the identity attached to a single request.
type Principal struct {
	UserID string
	Email  string
	Role   Role
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

type Resolver struct {
	proxySecret string
}

// NewResolver returns a Resolver. A non-empty secret must be echoed by the
// proxy on every request, otherwise identity headers are ignored.
func NewResolver(proxySecret string) *Resolver {
	return &Resolver{proxySecret: proxySecret}
}

// Verified reports whether identity headers are checked against the proxy
// secret. An unverified resolver trusts any caller's headers, including the
// admin role.
func (res *Resolver) Verified() bool {
	return res.proxySecret != ""
}

// User returns the signed-in caller or ErrUnauthorized.
func (res *Resolver) User(r *http.Request) (Principal, error) {
	if res.Verified() {
		got := r.Header.Get(HeaderProxySecret)
		if subtle.ConstantTimeCompare([]byte(got), []byte(res.proxySecret)) != 1 {
			return Principal{}, domain.ErrUnauthorized
		}
	}

	id := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if id == "" {
		return Principal{}, domain.ErrUnauthorized
	}

	role := RoleUser
	if strings.EqualFold(r.Header.Get(HeaderUserRole), string(RoleAdmin)) {
		role = RoleAdmin
	}

	return Principal{
		UserID: id,
		Email:  strings.TrimSpace(r.Header.Get(HeaderUserEmail)),
		Role:   role,
	}, nil
}

// Admin returns the caller when it holds the admin role.
func (res *Resolver) Admin(r *http.Request) (Principal, error) {
	p, err := res.User(r)
	if err != nil {
		return Principal{}, err
	}
	if !p.IsAdmin() {
		return Principal{}, domain.ErrForbidden
	}
	return p, nil
}
