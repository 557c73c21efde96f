// Package httpapi is the HTTP surface of the authentication service. Routes
// are declared in a table carrying their access requirements; the guard
// chain enforces them before a handler runs.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"peopleops.org/internal/audit"
	"peopleops.org/internal/auth"
	"peopleops.org/internal/obs"
)

// ReadyProbe checks the dependencies a readiness probe should cover.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options tune the outer middleware chain.
type Options struct {
	MaxBodyBytes int64
	RateBurst    int
	RatePerSec   int
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	svc        *auth.Service
	recorder   *audit.Recorder
	readyProbe ReadyProbe
	version    string
	opts       Options
}

// route binds a handler to its access requirements. A route with neither
// roles nor permissions only requires a valid access token; a public route
// skips authentication entirely. Roles and permissions are each "any of".
type route struct {
	method      string
	pattern     string
	handler     http.HandlerFunc
	public      bool
	roles       []string
	permissions []string
}

func New(svc *auth.Service, recorder *audit.Recorder, rp ReadyProbe, version string, opts Options) *API {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	a := &API{
		mux:        http.NewServeMux(),
		svc:        svc,
		recorder:   recorder,
		readyProbe: rp,
		version:    version,
		opts:       opts,
	}

	routes := []route{
		{method: http.MethodGet, pattern: "/healthz", handler: a.Healthz, public: true},
		{method: http.MethodGet, pattern: "/readyz", handler: a.Ready, public: true},
		{method: http.MethodGet, pattern: "/v1/info", handler: a.Info, public: true},

		{method: http.MethodPost, pattern: "/v1/auth/login", handler: a.handleLogin, public: true},
		{method: http.MethodPost, pattern: "/v1/auth/register", handler: a.handleRegister, public: true},
		{method: http.MethodPost, pattern: "/v1/auth/refresh", handler: a.handleRefresh, public: true},

		{method: http.MethodPost, pattern: "/v1/auth/logout", handler: a.handleLogout},
		{method: http.MethodPost, pattern: "/v1/auth/change-password", handler: a.handleChangePassword},
		{method: http.MethodGet, pattern: "/v1/auth/validate", handler: a.handleValidate},
		{method: http.MethodGet, pattern: "/v1/auth/me", handler: a.handleMe},

		{method: http.MethodPost, pattern: "/v1/users", handler: a.handleCreateUser,
			permissions: []string{auth.PermUsersCreate}},
		{method: http.MethodGet, pattern: "/v1/users/{id}", handler: a.handleGetUser,
			permissions: []string{auth.PermUsersRead}},
		{method: http.MethodPost, pattern: "/v1/users/{id}/roles", handler: a.handleAssignRole,
			roles: []string{"System_Admin", "HR_Manager"}},
		{method: http.MethodDelete, pattern: "/v1/users/{id}/roles/{role_id}", handler: a.handleUnassignRole,
			roles: []string{"System_Admin", "HR_Manager"}},

		{method: http.MethodGet, pattern: "/v1/audit/logins/{user_id}", handler: a.handleLoginHistory,
			permissions: []string{auth.PermAuditRead}},
		{method: http.MethodGet, pattern: "/v1/audit/records/{table}/{record_id}", handler: a.handleRecordHistory,
			permissions: []string{auth.PermAuditRead}},
		{method: http.MethodGet, pattern: "/v1/audit/tables/{table}", handler: a.handleTableHistory,
			permissions: []string{auth.PermAuditRead}},
		{method: http.MethodGet, pattern: "/v1/audit/actors/{user_id}", handler: a.handleActorHistory,
			permissions: []string{auth.PermAuditRead}},
	}
	for _, rt := range routes {
		a.mux.Handle(rt.method+" "+rt.pattern, a.guard(rt))
	}

	a.mux.Handle("GET /metrics", obs.Handler())
	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})

	return a
}

// Handler returns the full middleware chain around the mux.
func (a *API) Handler() http.Handler {
	h := http.Handler(a.mux)
	h = MaxBodyBytes(h, a.opts.MaxBodyBytes)
	if a.opts.RateBurst > 0 && a.opts.RatePerSec > 0 {
		h = RateLimit(h, a.opts.RateBurst, a.opts.RatePerSec)
	}
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "peopleops-auth",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "peopleops-auth",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

// handleAuthError maps domain errors onto status codes. Credential failures
// surface uniform messages regardless of the server-side reason.
func handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var weak *auth.WeakPasswordError
	switch {
	case errors.As(err, &weak):
		payload := map[string]any{
			"error":      "password does not meet requirements",
			"violations": weak.Violations,
		}
		if rid := RequestIDFromContext(r.Context()); rid != "" {
			payload["request_id"] = rid
		}
		writeJSON(w, http.StatusBadRequest, payload)
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, auth.ErrAccountDeactivated):
		writeError(w, r, http.StatusUnauthorized, "Account is deactivated")
	case errors.Is(err, auth.ErrInvalidToken):
		writeError(w, r, http.StatusUnauthorized, "invalid token")
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, r, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "forbidden")
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "resource not found")
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, "resource already exists")
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		obs.Logger().Error().Err(err).Str("path", r.URL.Path).Msg("internal error")
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// decodeJSON reads a strict JSON body. The size cap is already applied by
// the MaxBodyBytes middleware, so only shape is checked here.
func decodeJSON(_ http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func requestMeta(r *http.Request) auth.RequestMeta {
	meta := auth.RequestMeta{}
	if ip := clientIP(r); ip != "" {
		meta.IPAddress = &ip
	}
	if ua := strings.TrimSpace(r.UserAgent()); ua != "" {
		meta.UserAgent = &ua
	}
	return meta
}

func queryPage(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	return limit, offset
}
