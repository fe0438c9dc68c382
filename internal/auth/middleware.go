package auth

import (
	"context"
	"net/http"
	"strings"

	appLog "lifehub/internal/log"
)

type ctxKey string

const userIDKey ctxKey = "user_id"

// Middleware checks bearer tokens. A zero secret disables it.
type Middleware struct {
	secret []byte
	open   map[string]bool
}

// New returns a Middleware; openPaths are served without a token.
func New(secret []byte, openPaths ...string) Middleware {
	open := make(map[string]bool, len(openPaths))
	for _, p := range openPaths {
		open[p] = true
	}
	return Middleware{secret: secret, open: open}
}

// Enabled reports whether tokens are checked at all.
func (m Middleware) Enabled() bool {
	return len(m.secret) > 0
}

func (m Middleware) Wrap(next http.Handler) http.Handler {
	if !m.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.open[r.URL.Path] || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		h := r.Header.Get("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}

		userID, err := ParseToken(m.secret, strings.TrimPrefix(h, "Bearer "))
		if err != nil {
			appLog.Debug("rejected token", "path", r.URL.Path, "err", err.Error())
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

// WithUserID attaches userID to ctx.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func UserIDFromContext(ctx context.Context) (string, bool) {
	uid, ok := ctx.Value(userIDKey).(string)
	return uid, ok && uid != ""
}
