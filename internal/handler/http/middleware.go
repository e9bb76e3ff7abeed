package httphandler

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jgivc/netfshare/internal/common"
)

const headerRequestID = "X-Request-Id"

type ctxKey int

const (
	ctxKeyAdmin ctxKey = iota
	ctxKeyAddress
)

// AdminPredicate decides whether a request comes from an administrator.
type AdminPredicate func(r *http.Request) bool

// AddressInHost treats a request as admin when the caller's address appears in
// the Host it connected to, i.e. the request was made from the serving machine
// by its own address. This is a trust placeholder, not authentication.
func AddressInHost(r *http.Request) bool {
	addr := RemoteAddress(r)

	return addr != "" && strings.Contains(r.Host, addr)
}

// RemoteAddress is the caller IP without port.
func RemoteAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}

func IsAdmin(ctx context.Context) bool {
	admin, _ := ctx.Value(ctxKeyAdmin).(bool)

	return admin
}

func Address(ctx context.Context) string {
	addr, _ := ctx.Value(ctxKeyAddress).(string)

	return addr
}

// WithIdentity stores the caller address and admin flag in the request context
// and touches the caller's client when it is identified.
func WithIdentity(isAdmin AdminPredicate, srv SessionService, log *slog.Logger) func(http.Handler) http.Handler {
	log = log.With(slog.String("middleware", "Identity"))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			addr := RemoteAddress(r)

			if err := srv.Touch(r.Context(), addr); err != nil {
				log.Warn("Cannot touch client", slog.String("address", addr), slog.Any("error", err))
			}

			ctx := context.WithValue(r.Context(), ctxKeyAddress, addr)
			ctx = context.WithValue(ctx, ctxKeyAdmin, isAdmin(r))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects non-admin callers with 403.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsAdmin(r.Context()) {
			http.Error(w, "Forbidden", http.StatusForbidden)

			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequireIdentity rejects callers that are neither admin nor identified.
func RequireIdentity(srv SessionService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if IsAdmin(r.Context()) {
				next.ServeHTTP(w, r)

				return
			}

			if _, err := srv.Resolve(r.Context(), Address(r.Context())); err != nil {
				if errors.Is(err, common.ErrNotFound) {
					http.Error(w, "Identify first", http.StatusForbidden)
				} else {
					http.Error(w, "Cannot resolve client", http.StatusInternalServerError)
				}

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack is needed by the websocket upgrade.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	r.status = http.StatusSwitchingProtocols

	return http.NewResponseController(r.ResponseWriter).Hijack()
}

// WithRequestLog tags every response with a request id and logs it at debug level.
func WithRequestLog(log *slog.Logger) func(http.Handler) http.Handler {
	log = log.With(slog.String("middleware", "RequestLog"))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := uuid.NewString()
			w.Header().Set(headerRequestID, id)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			log.Debug("Request",
				slog.String("id", id),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote", r.RemoteAddr),
				slog.Int("status", rec.status),
			)
		})
	}
}
