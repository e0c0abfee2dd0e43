// Package web serves the dashboard: JSON views of the defense state, manual
// action endpoints, a websocket live feed and an incident report export.
package web

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/lcalzada-xor/trapwire/internal/adapters/web/middleware"
	"github.com/lcalzada-xor/trapwire/internal/core/domain"
	"github.com/lcalzada-xor/trapwire/internal/core/ports"
	"github.com/lcalzada-xor/trapwire/internal/core/services/correlation"
)

const interactionTail = 20

// Handlers bundles the HTTP endpoints over the defense service.
type Handlers struct {
	service    ports.DefenseService
	auth       ports.AuthService
	audits     ports.AuditRepository
	correlator *correlation.Engine
	report     *ReportBuilder
}

// NewHandlers wires the endpoint set. audits and correlator may be nil.
func NewHandlers(service ports.DefenseService, auth ports.AuthService, audits ports.AuditRepository, correlator *correlation.Engine) *Handlers {
	return &Handlers{
		service:    service,
		auth:       auth,
		audits:     audits,
		correlator: correlator,
		report:     NewReportBuilder(service),
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Web: response encode failed: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"status": "error", "reason": err.Error()})
}

// HandleLogin issues a session cookie.
func (h *Handlers) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	token, user, err := h.auth.Login(r.Context(), creds.Username, creds.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name: "auth_token", Value: token, Path: "/",
		HttpOnly: true, SameSite: http.SameSiteStrictMode,
	})
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "role": user.Role})
}

// HandleLogout drops the session.
func (h *Handlers) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie("auth_token"); err == nil {
		h.auth.Logout(r.Context(), cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{Name: "auth_token", Value: "", Path: "/", MaxAge: -1})
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleDevices serves the device table published by the last cycle.
func (h *Handlers) HandleDevices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Devices(r.Context()))
}

// HandleAlerts serves the bounded alert ring.
func (h *Handlers) HandleAlerts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Alerts(r.Context()))
}

// HandleHoneypot serves the decoy-interaction log tail.
func (h *Handlers) HandleHoneypot(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.Interactions(r.Context(), interactionTail)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if records == nil {
		records = []domain.InteractionRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// HandleAction routes a manual enforcement action by name.
func (h *Handlers) HandleAction(w http.ResponseWriter, r *http.Request) {
	action := mux.Vars(r)["name"]

	var body struct {
		IP string `json:"ip"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.service.ManualAction(r.Context(), action, body.IP, actorName(r)); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleLockdown drops the forwarding default policy. No argument.
func (h *Handlers) HandleLockdown(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Lockdown(r.Context(), actorName(r)); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleAuditLogs serves the relational audit history tail.
func (h *Handlers) HandleAuditLogs(w http.ResponseWriter, r *http.Request) {
	if h.audits == nil {
		writeJSON(w, http.StatusOK, []domain.AuditEntry{})
		return
	}
	entries, err := h.audits.GetAudits(r.Context(), 100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleInteractionEvent is the ingest bridge for decoy listeners: the event
// lands in the audit-trail CSV and in the correlation engine's live buffer.
func (h *Handlers) HandleInteractionEvent(w http.ResponseWriter, r *http.Request) {
	var rec domain.InteractionRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if h.correlator != nil {
		h.correlator.Notify(rec)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleReport streams the incident report PDF.
func (h *Handlers) HandleReport(w http.ResponseWriter, r *http.Request) {
	data, err := h.report.Build(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="trapwire_report.pdf"`)
	w.Write(data)
}

func actorName(r *http.Request) string {
	if user := middleware.UserFrom(r.Context()); user != nil {
		return user.Username
	}
	return "operator"
}
