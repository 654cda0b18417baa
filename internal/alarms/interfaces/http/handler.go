package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	alarmapp "metrics-cloud/internal/alarms/application"
	alarms "metrics-cloud/internal/alarms/domain"
	alarmexport "metrics-cloud/internal/alarms/interfaces"
	"metrics-cloud/internal/audit"
	"metrics-cloud/internal/auth"
	"metrics-cloud/internal/observability/metrics"
)

const basePath = "/v2.0/alarms"

// Handler provides the alarm resource endpoints.
type Handler struct {
	service *alarmapp.Service
	audit   audit.Logger
	logger  *log.Logger
}

// NewHandler constructs a handler.
func NewHandler(service *alarmapp.Service, auditLogger audit.Logger, logger *log.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("alarms handler: nil service")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{service: service, audit: auditLogger, logger: logger}, nil
}

// ServeHTTP handles /v2.0/alarms and subroutes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantIDFromContext(r.Context())
	if tenantID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	switch {
	case r.URL.Path == basePath:
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleList(w, r, tenantID)
	case strings.HasPrefix(r.URL.Path, basePath+"/"):
		h.handleResource(w, r, tenantID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleResource(w http.ResponseWriter, r *http.Request, tenantID string) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, basePath+"/"), "/")
	parts := strings.Split(rest, "/")

	switch {
	case len(parts) == 1:
		id := parts[0]
		// The router would otherwise treat "state-history" as an alarm id
		// and mask the cross-alarm history listing.
		if strings.EqualFold(id, "state-history") {
			if r.Method != http.MethodGet {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			h.handleHistoryList(w, r, tenantID)
			return
		}
		if id == "export.xlsx" || id == "export.pdf" {
			if r.Method != http.MethodGet {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			h.handleExport(w, r, tenantID, strings.TrimPrefix(id, "export."))
			return
		}
		switch r.Method {
		case http.MethodGet:
			h.handleShow(w, r, tenantID, id)
		case http.MethodPut:
			h.handleReplace(w, r, tenantID, id)
		case http.MethodPatch:
			h.handleMerge(w, r, tenantID, id)
		case http.MethodDelete:
			h.handleDelete(w, r, tenantID, id)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case len(parts) == 2 && parts[1] == "state-history":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleHistory(w, r, tenantID, parts[0])
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request, tenantID string) {
	start := time.Now()
	filter, err := parseAlarmFilter(r)
	if err != nil {
		h.respondError(w, "list", start, err)
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		h.respondError(w, "list", start, err)
		return
	}
	offset := r.URL.Query().Get("offset")

	page, err := h.service.List(r.Context(), tenantID, filter, offset, limit, r.URL.RequestURI())
	if err != nil {
		h.respondError(w, "list", start, err)
		return
	}
	h.respondJSON(w, "list", start, http.StatusOK, page)
}

func (h *Handler) handleShow(w http.ResponseWriter, r *http.Request, tenantID, id string) {
	start := time.Now()
	view, err := h.service.Show(r.Context(), tenantID, id, r.URL.RequestURI())
	if err != nil {
		h.respondError(w, "show", start, err)
		return
	}
	h.respondJSON(w, "show", start, http.StatusOK, view)
}

func (h *Handler) handleReplace(w http.ResponseWriter, r *http.Request, tenantID, id string) {
	start := time.Now()
	req, err := decodeUpdateRequest(r)
	if err != nil {
		h.respondError(w, "replace", start, err)
		return
	}
	view, err := h.service.Replace(r.Context(), tenantID, id, req, r.URL.RequestURI())
	if err != nil {
		h.respondError(w, "replace", start, err)
		return
	}
	h.auditMutation(r, tenantID, "alarm.replace", id)
	h.respondJSON(w, "replace", start, http.StatusOK, view)
}

func (h *Handler) handleMerge(w http.ResponseWriter, r *http.Request, tenantID, id string) {
	start := time.Now()
	req, err := decodeUpdateRequest(r)
	if err != nil {
		h.respondError(w, "merge", start, err)
		return
	}
	view, err := h.service.Merge(r.Context(), tenantID, id, req, r.URL.RequestURI())
	if err != nil {
		h.respondError(w, "merge", start, err)
		return
	}
	h.auditMutation(r, tenantID, "alarm.merge", id)
	h.respondJSON(w, "merge", start, http.StatusOK, view)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request, tenantID, id string) {
	start := time.Now()
	if err := h.service.Delete(r.Context(), tenantID, id); err != nil {
		h.respondError(w, "delete", start, err)
		return
	}
	h.auditMutation(r, tenantID, "alarm.delete", id)
	metrics.ObserveAPIRequest("delete", "success", time.Since(start))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request, tenantID, id string) {
	start := time.Now()
	offset, err := parseNumericOffset(r)
	if err != nil {
		h.respondError(w, "history", start, err)
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		h.respondError(w, "history", start, err)
		return
	}
	page, err := h.service.History(r.Context(), tenantID, id, offset, limit, r.URL.RequestURI())
	if err != nil {
		h.respondError(w, "history", start, err)
		return
	}
	h.respondJSON(w, "history", start, http.StatusOK, page)
}

func (h *Handler) handleHistoryList(w http.ResponseWriter, r *http.Request, tenantID string) {
	start := time.Now()
	dimensions, err := parseDimensionsParam(r.URL.Query().Get("dimensions"))
	if err != nil {
		h.respondError(w, "history-list", start, err)
		return
	}
	startTime, err := parseTimeQuery(r, "start_time")
	if err != nil {
		h.respondError(w, "history-list", start, err)
		return
	}
	endTime, err := parseTimeQuery(r, "end_time")
	if err != nil {
		h.respondError(w, "history-list", start, err)
		return
	}
	offset, err := parseNumericOffset(r)
	if err != nil {
		h.respondError(w, "history-list", start, err)
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		h.respondError(w, "history-list", start, err)
		return
	}
	page, err := h.service.HistoryList(r.Context(), tenantID, dimensions, startTime, endTime, offset, limit, r.URL.RequestURI())
	if err != nil {
		h.respondError(w, "history-list", start, err)
		return
	}
	h.respondJSON(w, "history-list", start, http.StatusOK, page)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request, tenantID, format string) {
	start := time.Now()
	filter, err := parseAlarmFilter(r)
	if err != nil {
		h.respondError(w, "export", start, err)
		return
	}
	page, err := h.service.List(r.Context(), tenantID, filter, "", 0, r.URL.RequestURI())
	if err != nil {
		h.respondError(w, "export", start, err)
		return
	}
	views, _ := page.Elements.([]alarmapp.AlarmView)

	var data []byte
	var contentType string
	switch format {
	case "xlsx":
		data, err = alarmexport.BuildAlarmsXLSX(views)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case "pdf":
		data, err = alarmexport.BuildAlarmsPDF(views)
		contentType = "application/pdf"
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		h.respondError(w, "export", start, err)
		return
	}
	metrics.ObserveAPIRequest("export", "success", time.Since(start))
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename=alarms."+format)
	_, _ = w.Write(data)
}

func (h *Handler) respondJSON(w http.ResponseWriter, op string, start time.Time, status int, body any) {
	metrics.ObserveAPIRequest(op, "success", time.Since(start))
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, start time.Time, err error) {
	metrics.ObserveAPIRequest(op, "error", time.Since(start))

	var validation *alarms.ValidationError
	switch {
	case errors.As(err, &validation):
		http.Error(w, validation.Error(), http.StatusBadRequest)
	case errors.Is(err, alarms.ErrNotFound):
		http.Error(w, "alarm not found", http.StatusNotFound)
	default:
		h.logger.Printf("alarms handler: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *Handler) auditMutation(r *http.Request, tenantID, action, alarmID string) {
	if h.audit == nil {
		return
	}
	entry := audit.Entry{
		TenantID:     tenantID,
		Actor:        auth.SubjectFromContext(r.Context()),
		Action:       action,
		ResourceType: "alarm",
		ResourceID:   alarmID,
	}
	if err := h.audit.Log(r.Context(), entry); err != nil {
		h.logger.Printf("audit log failed: %v", err)
	}
}
