package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"loancalc/internal/core"
	applog "loancalc/internal/log"
	"loancalc/internal/services"
	"loancalc/internal/session"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).String(),
	})
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]interface{})

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	if err := s.calc.Ping(ctx); err != nil {
		checks["session_store"] = fmt.Sprintf("failed: %v", err)
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["session_store"] = "ok"
	}

	checks["rate_limiter"] = map[string]interface{}{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}

	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics provides request and security counters in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()

	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "# HELP http_requests_total Total number of HTTP requests\n")
	fmt.Fprintf(w, "# TYPE http_requests_total counter\n")
	fmt.Fprintf(w, "http_requests_total %d\n\n", traceMetrics.TotalRequests)

	fmt.Fprintf(w, "# HELP http_response_time_microseconds Average response time\n")
	fmt.Fprintf(w, "# TYPE http_response_time_microseconds gauge\n")
	fmt.Fprintf(w, "http_response_time_microseconds %d\n\n", traceMetrics.AverageResponseTime)

	fmt.Fprintf(w, "# HELP rate_limit_hits_total Total rate limit hits\n")
	fmt.Fprintf(w, "# TYPE rate_limit_hits_total counter\n")
	fmt.Fprintf(w, "rate_limit_hits_total %d\n\n", rateLimitMetrics.TotalHits)

	fmt.Fprintf(w, "# HELP active_rate_limit_clients Currently tracked rate limit clients\n")
	fmt.Fprintf(w, "# TYPE active_rate_limit_clients gauge\n")
	fmt.Fprintf(w, "active_rate_limit_clients %d\n\n", rateLimitMetrics.ClientCount)

	fmt.Fprintf(w, "# HELP suspicious_requests_total Total suspicious requests detected\n")
	fmt.Fprintf(w, "# TYPE suspicious_requests_total counter\n")
	fmt.Fprintf(w, "suspicious_requests_total %d\n\n", securityMetrics.SuspiciousRequests)

	fmt.Fprintf(w, "# HELP uptime_seconds Application uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n", time.Since(s.started).Seconds())
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	sid := sessionID(w, r)
	view, err := s.calc.View(r.Context(), sid)
	if err != nil {
		s.writeError(w, r, applog.OpView, sid, err)
		return
	}
	s.writePage(w, r, "index.html", newLedgerPage(view), nil)
}

// handleLedger renders the ledger partial.
func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	if resp := RequireGET(r); resp != nil {
		resp.Write(w)
		return
	}
	sid := sessionID(w, r)
	view, err := s.calc.View(r.Context(), sid)
	if err != nil {
		s.writeError(w, r, applog.OpView, sid, err)
		return
	}
	s.writePage(w, r, "ledger", newLedgerPage(view), nil)
}

func (s *Server) handleAddEntry(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	sid := sessionID(w, r)
	entry, view, err := s.calc.AddEntry(r.Context(), sid)
	if err != nil {
		s.writeError(w, r, applog.OpAdd, sid, err)
		return
	}
	s.structured(r).LogLedgerChange(r.Context(), applog.OpAdd, sid, entry.ID)
	s.writePage(w, r, "ledger", newLedgerPage(view),
		NewHTMXResponse().TriggerLedgerChanged(len(view.Rows), view.MinimumID))
}

func (s *Server) handleRemoveEntry(w http.ResponseWriter, r *http.Request) {
	if resp := RequireDeleteOrPOST(r); resp != nil {
		resp.Write(w)
		return
	}
	sid := sessionID(w, r)
	id, err := ParseEntryID(r)
	if err != nil {
		BadRequestError("Invalid loan id").Write(w)
		return
	}
	view, err := s.calc.RemoveEntry(r.Context(), sid, id)
	if err != nil {
		s.writeError(w, r, applog.OpRemove, sid, err)
		return
	}
	s.structured(r).LogLedgerChange(r.Context(), applog.OpRemove, sid, id)
	s.writePage(w, r, "ledger", newLedgerPage(view),
		NewHTMXResponse().TriggerLedgerChanged(len(view.Rows), view.MinimumID))
}

// handleUpdateField applies one edited input. The response carries only
// out-of-band fragments; the edited input itself is never re-rendered.
func (s *Server) handleUpdateField(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	sid := sessionID(w, r)

	upd, err := ParseFieldUpdate(r)
	switch {
	case errors.Is(err, errEmptyValue):
		w.WriteHeader(http.StatusNoContent)
		return
	case errors.Is(err, errBadEntryID):
		BadRequestError("Invalid loan id").Write(w)
		return
	case errors.Is(err, errBadNumber):
		BadRequestError("Please enter a number").Write(w)
		return
	case err != nil:
		s.writeError(w, r, applog.OpParse, sid, err)
		return
	}

	view, err := s.calc.UpdateField(r.Context(), sid, upd.EntryID, upd.Field, upd.Value)
	if err != nil {
		s.writeError(w, r, applog.OpUpdate, sid, err)
		return
	}
	s.structured(r).LogLedgerChange(r.Context(), applog.OpUpdate, sid, upd.EntryID)
	s.writePage(w, r, "field-updated", newFieldUpdate(view, upd.EntryID),
		NewHTMXResponse().TriggerLedgerChanged(len(view.Rows), view.MinimumID))
}

func (s *Server) handleSetCurrency(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	if resp := ParseFormOrFail(r); resp != nil {
		resp.Write(w)
		return
	}
	sid := sessionID(w, r)
	c, err := core.ParseCurrency(r.Form.Get("currency"))
	if err != nil {
		s.writeError(w, r, applog.OpCurrency, sid, err)
		return
	}
	view, err := s.calc.SetCurrency(r.Context(), sid, c)
	if err != nil {
		s.writeError(w, r, applog.OpCurrency, sid, err)
		return
	}
	s.writePage(w, r, "ledger", newLedgerPage(view), nil)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if resp := RequirePOST(r); resp != nil {
		resp.Write(w)
		return
	}
	sid := sessionID(w, r)
	cmp, err := s.calc.Export(r.Context(), sid)
	switch {
	case errors.Is(err, services.ErrExportDisabled):
		NoticeResponse("Export is not configured on this server").Write(w)
		return
	case err != nil:
		s.writeError(w, r, applog.OpExport, sid, err)
		return
	}

	msg := fmt.Sprintf("Comparison of %d loans queued for export", len(cmp.Lines))
	if len(cmp.Lines) == 1 {
		msg = "Comparison of 1 loan queued for export"
	}
	NoticeResponse(msg).
		TriggerComparisonExported(len(cmp.Lines)).
		TriggerSuccessNotification(msg).
		Write(w)
}

// writePage renders a template into a buffer first so a failed execution
// never leaves a half-written partial.
func (s *Server) writePage(w http.ResponseWriter, r *http.Request, name string, data any, resp *HTMXResponseBuilder) {
	if s.templates == nil {
		s.logger.ErrorContext(r.Context(), "Templates not loaded",
			applog.FieldPath, r.URL.Path,
			applog.FieldComponent, applog.ComponentTemplate)
		InternalServerError("Templates not loaded").Write(w)
		return
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.structured(r).LogError(r.Context(), "Template execution failed", err,
			applog.ComponentTemplate, applog.OpRender, applog.LogFields{"template": name})
		InternalServerError("Could not render page").Write(w)
		return
	}
	if resp == nil {
		resp = NewHTMXResponse()
	}
	resp.BodyHTML(buf.String()).Write(w)
}

// writeError maps service and parse errors onto status codes. Only
// unexpected failures are logged as errors.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op, sid string, err error) {
	switch {
	case errors.Is(err, core.ErrEntryNotFound):
		NotFoundError("Loan not found").Write(w)
	case errors.Is(err, session.ErrSessionNotFound):
		NotFoundError("Session not found").Write(w)
	case errors.Is(err, core.ErrUnknownField):
		UnprocessableEntityError("Unknown loan field").Write(w)
	case errors.Is(err, core.ErrUnknownCurrency):
		UnprocessableEntityError("Unknown currency").Write(w)
	case errors.Is(err, services.ErrNothingToExport):
		UnprocessableEntityError("There are no valid loans to export").Write(w)
	default:
		s.structured(r).LogError(r.Context(), "Request failed", err,
			applog.ComponentHTTP, op, applog.NewFields().WithSession(sid))
		InternalServerError("Something went wrong, please try again").
			TriggerErrorNotification("Something went wrong, please try again").
			Write(w)
	}
}

func (s *Server) structured(r *http.Request) *applog.StructuredLogger {
	return applog.NewStructuredLogger(applog.FromContext(r.Context()))
}
