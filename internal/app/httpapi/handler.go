// Package httpapi exposes the console's REST surface.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	app "github.com/launchbase/console/internal/app"
	"github.com/launchbase/console/internal/app/domain/billing"
	"github.com/launchbase/console/internal/app/domain/document"
	"github.com/launchbase/console/internal/app/services/forms"
	"github.com/launchbase/console/internal/app/services/incorporations"
	"github.com/launchbase/console/internal/app/services/payments"
	"github.com/launchbase/console/internal/errors"
	"github.com/launchbase/console/internal/metrics"
	"github.com/launchbase/console/internal/middleware"
	"github.com/launchbase/console/internal/render"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app         *app.Application
	render      *render.Client
	templateDir string
}

// Options configures the HTTP surface.
type Options struct {
	Auth          *middleware.Auth
	RateLimiter   *middleware.RateLimiter
	AllowedOrigin string
	Render        *render.Client
	TemplateDir   string
}

// NewHandler returns the console router. /healthz and /metrics are public;
// everything under /api/v1 requires a session.
func NewHandler(application *app.Application, opts Options) http.Handler {
	h := &handler{app: application, render: opts.Render, templateDir: opts.TemplateDir}

	r := chi.NewRouter()
	r.Use(middleware.CORS(opts.AllowedOrigin))
	r.Use(metrics.InstrumentHandler)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if opts.Auth != nil {
			r.Use(opts.Auth.Handler)
		}
		if opts.RateLimiter != nil {
			r.Use(opts.RateLimiter.Handler)
		}

		r.Post("/forms/submissions", h.submitForm)
		r.Get("/forms/submissions", h.listSubmissions)

		r.Get("/referrals", h.listReferrals)
		r.Post("/referrals/redeem", h.redeemReferral)

		r.Post("/incorporations", h.createIncorporation)
		r.Get("/incorporations", h.listIncorporations)
		r.Get("/incorporations/{id}", h.getIncorporation)

		r.Put("/billing", h.upsertBilling)
		r.Get("/billing", h.getBilling)

		r.Post("/documents", h.registerDocument)
		r.Get("/documents", h.listDocuments)

		r.Post("/payments/intent", h.createPaymentIntent)
		r.Get("/payments", h.listPayments)

		r.Post("/pdf", h.renderPDF)
	})

	return r
}

// --- forms ------------------------------------------------------------------

func (h *handler) submitForm(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		FormID          string          `json:"form_id"`
		IncorporationID string          `json:"incorporation_id"`
		Data            json.RawMessage `json:"data"`
		ProgressPercent *int            `json:"progress_percent"`
		Finalize        bool            `json:"finalize"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeServiceError(w, errors.Validation("invalid request body"))
		return
	}

	sub, err := h.app.Forms.Submit(r.Context(), forms.SubmitInput{
		FormID:          payload.FormID,
		UserID:          middleware.GetUserID(r.Context()),
		IncorporationID: resolveIncorporationID(r, payload.IncorporationID),
		Answers:         payload.Data,
		ProgressPercent: payload.ProgressPercent,
		Finalize:        payload.Finalize,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":     true,
		"id":     sub.ID,
		"status": string(sub.Status),
	})
}

func (h *handler) listSubmissions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.app.Forms.List(r.Context(), r.URL.Query().Get("form_id"), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "submissions": subs})
}

// resolveIncorporationID reads the scoping case id from the query string,
// the Referer page URL, or the body, in that order.
func resolveIncorporationID(r *http.Request, fromBody string) string {
	if id := r.URL.Query().Get("incorporation_id"); id != "" {
		return id
	}
	if referer := r.Header.Get("Referer"); referer != "" {
		if u, err := url.Parse(referer); err == nil {
			if id := u.Query().Get("incorporation_id"); id != "" {
				return id
			}
		}
	}
	return fromBody
}

// --- referrals --------------------------------------------------------------

func (h *handler) listReferrals(w http.ResponseWriter, r *http.Request) {
	refs, err := h.app.Referrals.ListForPartner(r.Context(), middleware.GetUserEmail(r.Context()))
	if err != nil {
		// An unreachable ERP must not break the partner page; degrade to an
		// empty list with a warning instead of a failure status.
		if svcErr := errors.GetServiceError(err); svcErr != nil &&
			(svcErr.Code == errors.CodeTimeout || svcErr.Code == errors.CodeInternal) {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"ok":        true,
				"referrals": []interface{}{},
				"warning":   "referral data is temporarily unavailable",
			})
			return
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "referrals": refs})
}

func (h *handler) redeemReferral(w http.ResponseWriter, r *http.Request) {
	code, redirectTo := redeemParams(r)

	_, err := h.app.Referrals.Redeem(r.Context(), middleware.GetUserID(r.Context()), code)

	// Browser form posts get the outcome as a redirect with a status flag
	// and message; API callers get JSON.
	if redirectTo != "" {
		status, msg := "ok", "referral code applied"
		if err != nil {
			status = "error"
			msg = redeemMessage(err)
		}
		target := redirectTo + "?status=" + url.QueryEscape(status) + "&msg=" + url.QueryEscape(msg)
		http.Redirect(w, r, target, http.StatusSeeOther)
		return
	}

	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

func redeemParams(r *http.Request) (code, redirectTo string) {
	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/x-www-form-urlencoded") || strings.HasPrefix(contentType, "multipart/form-data") {
		_ = r.ParseForm()
		return r.FormValue("code"), r.FormValue("redirect")
	}

	var payload struct {
		Code     string `json:"code"`
		Redirect string `json:"redirect"`
	}
	_ = decodeJSON(r.Body, &payload)
	return payload.Code, payload.Redirect
}

func redeemMessage(err error) string {
	if svcErr := errors.GetServiceError(err); svcErr != nil {
		return svcErr.Message
	}
	return "could not apply referral code"
}

// --- incorporations ---------------------------------------------------------

func (h *handler) createIncorporation(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		CompanyType    string   `json:"company_type"`
		FormationState string   `json:"formation_state"`
		NameOptions    []string `json:"name_options"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeServiceError(w, errors.Validation("invalid request body"))
		return
	}

	inc, err := h.app.Incorporations.Create(r.Context(), incorporations.CreateInput{
		UserID:         middleware.GetUserID(r.Context()),
		CompanyType:    payload.CompanyType,
		FormationState: payload.FormationState,
		NameOptions:    payload.NameOptions,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"ok": true, "id": inc.ID, "incorporation": inc})
}

func (h *handler) getIncorporation(w http.ResponseWriter, r *http.Request) {
	inc, err := h.app.Incorporations.Get(r.Context(), chi.URLParam(r, "id"), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "incorporation": inc})
}

func (h *handler) listIncorporations(w http.ResponseWriter, r *http.Request) {
	incs, err := h.app.Incorporations.List(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "incorporations": incs})
}

// --- billing ----------------------------------------------------------------

func (h *handler) upsertBilling(w http.ResponseWriter, r *http.Request) {
	var payload billing.Profile
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeServiceError(w, errors.Validation("invalid request body"))
		return
	}
	payload.UserID = middleware.GetUserID(r.Context())

	saved, err := h.app.Billing.Upsert(r.Context(), payload)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "billing": saved})
}

func (h *handler) getBilling(w http.ResponseWriter, r *http.Request) {
	profile, err := h.app.Billing.Get(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "billing": profile})
}

// --- documents --------------------------------------------------------------

func (h *handler) registerDocument(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		IncorporationID string `json:"incorporation_id"`
		Name            string `json:"name"`
		StoragePath     string `json:"storage_path"`
		ContentType     string `json:"content_type"`
		SizeBytes       int64  `json:"size_bytes"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeServiceError(w, errors.Validation("invalid request body"))
		return
	}

	doc, err := h.app.Documents.Register(r.Context(), document.Document{
		UserID:          middleware.GetUserID(r.Context()),
		IncorporationID: payload.IncorporationID,
		Name:            payload.Name,
		StoragePath:     payload.StoragePath,
		ContentType:     payload.ContentType,
		SizeBytes:       payload.SizeBytes,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"ok": true, "id": doc.ID, "document": doc})
}

func (h *handler) listDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.app.Documents.List(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "documents": docs})
}

// --- payments ---------------------------------------------------------------

func (h *handler) createPaymentIntent(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ServiceID       string `json:"service_id"`
		IncorporationID string `json:"incorporation_id"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeServiceError(w, errors.Validation("invalid request body"))
		return
	}

	result, err := h.app.Payments.CreateIntent(r.Context(), payments.CreateIntentInput{
		UserID:          middleware.GetUserID(r.Context()),
		ServiceID:       payload.ServiceID,
		IncorporationID: payload.IncorporationID,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":            true,
		"id":            result.Payment.ID,
		"client_secret": result.ClientSecret,
		"amount_cents":  result.Payment.AmountCents,
	})
}

func (h *handler) listPayments(w http.ResponseWriter, r *http.Request) {
	pays, err := h.app.Payments.List(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "payments": pays})
}

// --- pdf --------------------------------------------------------------------

func (h *handler) renderPDF(w http.ResponseWriter, r *http.Request) {
	if h.render == nil {
		writeServiceError(w, errors.Internal("render service not configured", nil))
		return
	}

	var payload struct {
		Template string                 `json:"template"`
		Data     map[string]interface{} `json:"data"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeServiceError(w, errors.Validation("invalid request body"))
		return
	}

	// Template names index files under the template dir; reject anything
	// that is not a bare name.
	name := filepath.Base(strings.TrimSpace(payload.Template))
	if name == "" || name == "." || name != payload.Template {
		writeServiceError(w, errors.Validation("template must be a bare template name"))
		return
	}

	pdf, err := h.render.RenderFile(r.Context(), filepath.Join(h.templateDir, name+".html"), payload.Data)
	if err != nil {
		writeServiceError(w, errors.Internal("pdf rendering failed", err))
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

// --- helpers ----------------------------------------------------------------

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeServiceError(w http.ResponseWriter, err error) {
	svcErr := errors.GetServiceError(err)
	if svcErr == nil {
		svcErr = errors.Internal("unexpected error", err)
	}
	writeJSON(w, svcErr.HTTPStatus, map[string]interface{}{
		"ok":     false,
		"error":  string(svcErr.Code),
		"detail": svcErr.Message,
	})
}
