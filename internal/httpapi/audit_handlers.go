package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"adminhub.org/internal/audit"
)

type batchDeleteRequest struct {
	IDs []int64 `json:"ids"`
}

type clearRequest struct {
	Days int `json:"days"`
}

func (a *API) handleAuditList(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireSuperuser(w, r); !ok {
		return
	}
	q := r.URL.Query()
	page, err := parsePositiveInt(q.Get("page"), 1, 1, 10000)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "page "+err.Error())
		return
	}
	pageSize, err := parsePositiveInt(q.Get("page_size"), 10, 1, 100)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "page_size "+err.Error())
		return
	}

	filter := audit.ListFilter{
		Username:      q.Get("username"),
		Module:        q.Get("module"),
		Method:        q.Get("method"),
		Summary:       q.Get("summary"),
		IPAddress:     q.Get("ip_address"),
		OperationType: q.Get("operation_type"),
		LogLevel:      q.Get("log_level"),
	}
	if raw := q.Get("status"); raw != "" {
		status, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "status must be an integer")
			return
		}
		filter.Status = status
	}
	var parseErr error
	filter.Since, parseErr = parseTimeParam(q.Get("start_time"))
	if parseErr != nil {
		writeError(w, r, http.StatusBadRequest, "start_time: "+parseErr.Error())
		return
	}
	filter.Until, parseErr = parseTimeParam(q.Get("end_time"))
	if parseErr != nil {
		writeError(w, r, http.StatusBadRequest, "end_time: "+parseErr.Error())
		return
	}

	records, total, err := a.logs.List(r.Context(), filter, page, pageSize)
	if err != nil {
		a.log.Error("audit list failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "audit list failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":      records,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

func (a *API) handleAuditDelete(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireSuperuser(w, r); !ok {
		return
	}
	id, err := queryInt64(r, "id")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	n, err := a.logs.SoftDelete(r.Context(), id)
	if err != nil {
		a.log.Error("audit delete failed", zap.Int64("id", id), zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "audit delete failed")
		return
	}
	if n == 0 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": n})
}

func (a *API) handleAuditBatchDelete(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.requireSuperuser(w, r); !ok {
		return
	}
	var req batchDeleteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, r, http.StatusBadRequest, "ids are required")
		return
	}
	n, err := a.logs.SoftDeleteBatch(r.Context(), req.IDs)
	if err != nil {
		a.log.Error("audit batch delete failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "audit batch delete failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": n})
}

func (a *API) handleAuditClear(w http.ResponseWriter, r *http.Request) {
	user, ok := a.requireSuperuser(w, r)
	if !ok {
		return
	}
	var req clearRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Days <= 0 {
		writeError(w, r, http.StatusBadRequest, "days must be positive")
		return
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -req.Days)
	n, err := a.logs.DeleteOlderThan(r.Context(), cutoff)
	if err != nil {
		a.log.Error("audit clear failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "audit clear failed")
		return
	}
	a.log.Info("audit log cleared",
		zap.Int64("user_id", user.ID),
		zap.Int("days", req.Days),
		zap.Int64("deleted", n))
	writeJSON(w, http.StatusOK, map[string]any{"deleted": n})
}

func parseTimeParam(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, strconv.ErrSyntax
}
