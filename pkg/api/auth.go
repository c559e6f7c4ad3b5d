package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/uhyunpark/hftgate/pkg/gateway"
)

const (
	headerAccount      = "X-Account-Id"
	fieldAuthorization = "authorization"
)

type accountKey struct{}

func withAccount(ctx context.Context, account string) context.Context {
	return context.WithValue(ctx, accountKey{}, account)
}

// AccountFrom returns the authenticated account of a private request.
func AccountFrom(ctx context.Context) string {
	a, _ := ctx.Value(accountKey{}).(string)
	return a
}

// private resolves the caller's account before next runs. Tokens come from
// "Authorization: Bearer <token>" or, for browser websockets that cannot set
// headers, the token query parameter.
func (s *Server) private(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		account, err := s.authenticate(r)
		if err != nil {
			respondError(w, err)
			return
		}
		next(w, r.WithContext(withAccount(r.Context(), account)))
	}
}

func (s *Server) authenticate(r *http.Request) (string, *gateway.Error) {
	if s.noAuth {
		account := r.Header.Get(headerAccount)
		if account == "" {
			account = r.URL.Query().Get("accountId")
		}
		if account == "" {
			return "", unauthorized("Account header is required")
		}
		return account, nil
	}

	token := r.URL.Query().Get("token")
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, rest, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return "", unauthorized("Bearer token is required")
		}
		token = rest
	}
	if token == "" {
		return "", unauthorized("Bearer token is required")
	}
	if s.Auth == nil {
		return "", unauthorized("Authentication is not configured")
	}
	account, err := s.Auth.Verify(token)
	if err != nil {
		s.Logger.Debugw("auth_rejected", "peer", r.RemoteAddr, "err", err)
		return "", unauthorized("Invalid token")
	}
	return account, nil
}

func unauthorized(msg string) *gateway.Error {
	return &gateway.Error{Code: gateway.CodeInvalidField, Message: msg, Field: fieldAuthorization}
}
