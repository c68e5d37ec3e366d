package audit

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// IdentityFunc resolves the acting user from a request. Best-effort: failures
// report the anonymous identity (0, "").
type IdentityFunc func(r *http.Request) (userID int64, username string)

// RouteMetaFunc resolves the module and human summary of the matched route.
type RouteMetaFunc func(r *http.Request) (module, summary string)

// Middleware records one audit row per matching request. Methods outside the
// allow-list and paths matching an exclusion regex pass through untouched.
// Persistence is asynchronous; the middleware never fails a request.
type Middleware struct {
	methods   map[string]struct{}
	excludes  []*regexp.Regexp
	maxBody   int64
	identity  IdentityFunc
	routeMeta RouteMetaFunc
	sink      *Sink
	log       *zap.Logger
	now       func() time.Time
}

// auditLogPaths get their response bodies stripped before capture so the
// audit log never recursively embeds itself.
var auditLogPaths = []string{"/api/v1/auditlog"}

// NewMiddleware constructs the audit middleware. Exclusion patterns compile
// case-insensitively; invalid patterns are skipped with a log line rather
// than refusing to start.
func NewMiddleware(methods []string, excludePatterns []string, maxBody int64, identity IdentityFunc, routeMeta RouteMetaFunc, sink *Sink, log *zap.Logger) *Middleware {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("audit")
	m := &Middleware{
		methods:   make(map[string]struct{}, len(methods)),
		maxBody:   maxBody,
		identity:  identity,
		routeMeta: routeMeta,
		sink:      sink,
		log:       log,
		now:       time.Now,
	}
	if m.maxBody <= 0 {
		m.maxBody = 1 << 20
	}
	for _, method := range methods {
		m.methods[strings.ToUpper(strings.TrimSpace(method))] = struct{}{}
	}
	for _, pat := range excludePatterns {
		re, err := regexp.Compile("(?i)" + pat)
		if err != nil {
			log.Warn("invalid audit exclude pattern", zap.String("pattern", pat), zap.Error(err))
			continue
		}
		m.excludes = append(m.excludes, re)
	}
	return m
}

// Wrap returns the instrumented handler.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.shouldAudit(r) {
			next.ServeHTTP(w, r)
			return
		}

		args := m.requestArgs(r)
		rec := &captureWriter{ResponseWriter: w, status: http.StatusOK, limit: m.maxBody}
		start := m.now()
		next.ServeHTTP(rec, r)
		elapsed := m.now().Sub(start)

		row := &Record{
			Method:         r.Method,
			Path:           r.URL.Path,
			Status:         rec.status,
			ResponseTimeMS: elapsed.Milliseconds(),
			RequestArgs:    args,
			ResponseBody:   m.responseBody(r, rec),
			IPAddress:      ClientIP(r),
			UserAgent:      r.UserAgent(),
			OperationType:  OperationTypeFor(r.Method),
			LogLevel:       LogLevelFor(rec.status),
			CreatedAt:      start.UTC(),
		}
		if m.routeMeta != nil {
			row.Module, row.Summary = m.routeMeta(r)
		}
		if m.identity != nil {
			row.UserID, row.Username = m.identity(r)
		}
		m.sink.Enqueue(row)
	})
}

func (m *Middleware) shouldAudit(r *http.Request) bool {
	if _, ok := m.methods[r.Method]; !ok {
		return false
	}
	for _, re := range m.excludes {
		if re.MatchString(r.URL.Path) {
			return false
		}
	}
	return true
}

// requestArgs merges query parameters with the request body. Bodies are read
// fully and restored so the handler sees an untouched stream. Every failure
// mode degrades to a note inside the args map; capture never fails a request.
func (m *Middleware) requestArgs(r *http.Request) map[string]any {
	args := map[string]any{}
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			args[key] = values[0]
		}
	}
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
	default:
		return args
	}
	if r.Body == nil {
		return args
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		args["parse_error"] = truncate(err.Error(), 200)
		r.Body = io.NopCloser(bytes.NewReader(nil))
		return args
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	if len(body) == 0 {
		return args
	}

	ctype, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch {
	case strings.Contains(ctype, "json"):
		var decoded any
		if err := json.Unmarshal(body, &decoded); err == nil {
			if obj, ok := Sanitize(decoded).(map[string]any); ok {
				for k, v := range obj {
					args[k] = v
				}
			} else {
				args["body"] = Sanitize(decoded)
			}
		} else {
			args["raw_body"] = truncate(string(body), maxLeafLen)
		}
	case ctype == "application/x-www-form-urlencoded", ctype == "multipart/form-data":
		m.mergeFormArgs(r, body, args)
	default:
		args["raw_body"] = truncate(string(body), maxLeafLen)
	}

	// Parsing may have consumed the stream; hand the handler a fresh one.
	r.Body = io.NopCloser(bytes.NewReader(body))
	return args
}

// mergeFormArgs parses form fields and summarizes uploaded files as
// {filename, content_type, size} instead of capturing their bytes.
func (m *Middleware) mergeFormArgs(r *http.Request, body []byte, args map[string]any) {
	r.Body = io.NopCloser(bytes.NewReader(body))
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		r.Body = io.NopCloser(bytes.NewReader(body))
		if err := r.ParseForm(); err != nil {
			args["raw_body"] = truncate(string(body), maxLeafLen)
			return
		}
	}
	for key, values := range r.PostForm {
		if len(values) > 0 {
			args[key] = truncate(values[0], maxLeafLen)
		}
	}
	if r.MultipartForm != nil {
		for key, files := range r.MultipartForm.File {
			if len(files) == 0 {
				continue
			}
			f := files[0]
			args[key] = map[string]any{
				"filename":     f.Filename,
				"content_type": f.Header.Get("Content-Type"),
				"size":         f.Size,
			}
		}
	}
}

// responseBody renders the captured response for persistence: oversized
// bodies become a marker object, audit-console responses are stripped of
// their own captured bodies, everything else goes through the lenient codec.
func (m *Middleware) responseBody(r *http.Request, rec *captureWriter) any {
	if rec.overflow {
		return tooLargeMarker()
	}
	if cl := rec.Header().Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil && n > m.maxBody {
			return tooLargeMarker()
		}
	}
	body := LenientJSON(rec.buf.Bytes())
	for _, prefix := range auditLogPaths {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return stripResponseBodies(body)
		}
	}
	return body
}

// stripResponseBodies removes nested response_body fields from an audit-list
// payload, keeping only the envelope.
func stripResponseBodies(v any) any {
	obj, ok := v.(map[string]any)
	if !ok {
		return v
	}
	delete(obj, "response_body")
	if items, ok := obj["data"].([]any); ok {
		for _, item := range items {
			if entry, ok := item.(map[string]any); ok {
				delete(entry, "response_body")
			}
		}
	}
	return obj
}

// captureWriter tees the response into a bounded buffer while writing through
// to the client. Overflow past the limit stops buffering but never the write.
type captureWriter struct {
	http.ResponseWriter
	status   int
	limit    int64
	buf      bytes.Buffer
	overflow bool
}

func (w *captureWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *captureWriter) Write(p []byte) (int, error) {
	if !w.overflow {
		if int64(w.buf.Len())+int64(len(p)) > w.limit {
			w.overflow = true
			w.buf.Reset()
		} else {
			w.buf.Write(p)
		}
	}
	return w.ResponseWriter.Write(p)
}

// ClientIP extracts the originating client address, preferring proxy headers
// and falling back to "0.0.0.0" when nothing usable is present.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			xff = xff[:i]
		}
		if ip := strings.TrimSpace(xff); ip != "" {
			return ip
		}
	}
	if rip := strings.TrimSpace(r.Header.Get("X-Real-Ip")); rip != "" {
		return rip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "0.0.0.0"
}
