package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"adminhub.org/internal/audit"
	"adminhub.org/internal/auth"
	"adminhub.org/internal/config"
	"adminhub.org/internal/obs"
	"adminhub.org/internal/rbac"
)

// routeInfo is the registry entry kept per registered route. It feeds the
// audit middleware's metadata lookup and the startup route sync.
type routeInfo struct {
	Path    string
	Method  string
	Summary string
	Module  string
	// Public routes skip authentication entirely.
	Public bool
	// SkipPerm routes authenticate but skip the permission check; the
	// account endpoints under /api/v1/base behave this way.
	SkipPerm bool
}

// Deps collects the services the API layer is built from.
type Deps struct {
	DB          *sql.DB
	Store       rbac.Store
	Guard       *auth.Guard
	Resolver    *rbac.Resolver
	Provisioner *rbac.Provisioner
	AuditLogs   *audit.LogStore
	Sink        *audit.Sink
	Logger      *zap.Logger
	Config      *config.Config
	Version     string
}

// API is the HTTP layer.
type API struct {
	router   *mux.Router
	db       *sql.DB
	store    rbac.Store
	guard    *auth.Guard
	resolver *rbac.Resolver
	prov     *rbac.Provisioner
	logs     *audit.LogStore
	auditMW  *audit.Middleware
	log      *zap.Logger
	cfg      *config.Config
	version  string
	routes   map[string]routeInfo
}

// New wires every route and middleware.
func New(d Deps) *API {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	a := &API{
		router:   mux.NewRouter(),
		db:       d.DB,
		store:    d.Store,
		guard:    d.Guard,
		resolver: d.Resolver,
		prov:     d.Provisioner,
		logs:     d.AuditLogs,
		log:      log.Named("httpapi"),
		cfg:      d.Config,
		version:  d.Version,
		routes:   make(map[string]routeInfo),
	}

	a.router.HandleFunc("/healthz", a.handleHealthz).Methods(http.MethodGet)
	a.router.HandleFunc("/readyz", a.handleReady).Methods(http.MethodGet)
	a.router.Handle("/metrics", obs.Handler()).Methods(http.MethodGet)

	a.public(http.MethodPost, "/api/v1/base/access_token", "用户登录", a.handleAccessToken)
	a.public(http.MethodPost, "/api/v1/base/refresh_token", "刷新Token", a.handleRefreshToken)

	a.account(http.MethodPost, "/api/v1/base/logout", "退出登录", a.handleLogout)
	a.account(http.MethodGet, "/api/v1/base/userinfo", "查看用户信息", a.handleUserInfo)
	a.account(http.MethodGet, "/api/v1/base/userpermissions", "查看用户权限", a.handleUserPermissions)
	a.account(http.MethodPost, "/api/v1/base/password", "修改密码", a.handleChangePassword)

	a.protected(http.MethodGet, "/api/v1/role/list", "查看角色列表", a.handleRoleList)
	a.protected(http.MethodGet, "/api/v1/role/get", "查看角色", a.handleRoleGet)
	a.protected(http.MethodPost, "/api/v1/role/create", "创建角色", a.handleRoleCreate)
	a.protected(http.MethodPost, "/api/v1/role/update", "更新角色", a.handleRoleUpdate)
	a.protected(http.MethodDelete, "/api/v1/role/delete", "删除角色", a.handleRoleDelete)
	a.protected(http.MethodGet, "/api/v1/role/permissions", "查看角色权限", a.handleRolePermissions)
	a.protected(http.MethodPost, "/api/v1/role/permissions", "更新角色权限", a.handleSetRolePermissions)

	a.protected(http.MethodGet, "/api/v1/user/list", "查看用户列表", a.handleUserList)
	a.protected(http.MethodGet, "/api/v1/user/get", "查看用户", a.handleUserGet)
	a.protected(http.MethodPost, "/api/v1/user/create", "创建用户", a.handleUserCreate)
	a.protected(http.MethodPost, "/api/v1/user/update", "更新用户", a.handleUserUpdate)
	a.protected(http.MethodDelete, "/api/v1/user/delete", "删除用户", a.handleUserDelete)
	a.protected(http.MethodPost, "/api/v1/user/roles", "更新用户角色", a.handleSetUserRoles)

	a.protected(http.MethodGet, "/api/v1/auditlog/list", "查看审计日志", a.handleAuditList)
	a.protected(http.MethodDelete, "/api/v1/auditlog/delete", "删除审计日志", a.handleAuditDelete)
	a.protected(http.MethodPost, "/api/v1/auditlog/batch_delete", "批量删除审计日志", a.handleAuditBatchDelete)
	a.protected(http.MethodPost, "/api/v1/auditlog/clear", "清理审计日志", a.handleAuditClear)

	a.router.Use(a.withAuth)
	// mux middleware never runs for unmatched requests, so the anonymous
	// fallbacks are installed explicitly.
	a.router.NotFoundHandler = http.HandlerFunc(a.handleNotFound)
	a.router.MethodNotAllowedHandler = http.HandlerFunc(a.handleMethodNotAllowed)

	a.auditMW = audit.NewMiddleware(
		d.Config.Audit.Methods,
		d.Config.Audit.ExcludePatterns,
		d.Config.Audit.MaxBodyBytes,
		a.auditIdentity,
		a.routeMeta,
		d.Sink,
		log,
	)
	return a
}

func (a *API) public(method, path, summary string, h http.HandlerFunc) {
	a.register(method, path, summary, h, routeInfo{Public: true})
}

func (a *API) account(method, path, summary string, h http.HandlerFunc) {
	a.register(method, path, summary, h, routeInfo{SkipPerm: true})
}

func (a *API) protected(method, path, summary string, h http.HandlerFunc) {
	a.register(method, path, summary, h, routeInfo{})
}

func (a *API) register(method, path, summary string, h http.HandlerFunc, info routeInfo) {
	name := method + " " + path
	info.Path = path
	info.Method = method
	info.Summary = summary
	info.Module = rbac.ModuleFromPath(path)
	a.router.HandleFunc(path, h).Methods(method).Name(name)
	a.routes[name] = info
}

// Handler returns the fully wrapped handler chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.router
	h = a.auditMW.Wrap(h)
	h = LoggingJSON(a.log)(h)
	if a.cfg.Server.BurstPerSecond > 0 {
		h = RateLimit(h, a.cfg.Server.Burst, a.cfg.Server.BurstPerSecond)
	}
	h = MaxBodyBytes(h, a.cfg.Server.MaxBodyBytes)
	h = SecurityHeaders(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// auditIdentity resolves the acting user for audit rows from the bearer
// token's claims alone.
func (a *API) auditIdentity(r *http.Request) (int64, string) {
	token, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		return 0, ""
	}
	return a.guard.Peek(token)
}

// routeMeta resolves the matched route's module and summary for audit rows.
func (a *API) routeMeta(r *http.Request) (module, summary string) {
	var match mux.RouteMatch
	if !a.router.Match(r, &match) || match.Route == nil {
		return "", ""
	}
	info, ok := a.routes[match.Route.GetName()]
	if !ok {
		return "", ""
	}
	return info.Module, info.Summary
}

// handleNotFound keeps unregistered paths under /api from being served
// anonymously; everything else is a plain 404.
func (a *API) handleNotFound(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return
	}
	writeError(w, r, http.StatusNotFound, "not found")
}

func (a *API) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	var allowed []string
	for _, info := range a.routes {
		if info.Path == r.URL.Path {
			allowed = append(allowed, info.Method)
		}
	}
	sort.Strings(allowed)
	methodNotAllowed(w, r, allowed...)
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "adminhub-api",
		"version": a.version,
	})
}

func (a *API) handleReady(w http.ResponseWriter, r *http.Request) {
	if a.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.db.PingContext(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "not_ready",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}
