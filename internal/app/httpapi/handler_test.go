package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	app "github.com/launchbase/console/internal/app"
	"github.com/launchbase/console/internal/app/domain/form"
	"github.com/launchbase/console/internal/app/domain/payment"
	"github.com/launchbase/console/internal/app/domain/user"
	"github.com/launchbase/console/internal/app/services/payments"
	"github.com/launchbase/console/internal/app/storage/memory"
	"github.com/launchbase/console/internal/middleware"
	"github.com/launchbase/console/internal/odoo"
)

const testSecret = "handler-test-secret"

type fakeProvider struct {
	lastAmount   int64
	lastMetadata map[string]string
}

func (f *fakeProvider) CreateIntent(_ context.Context, amountCents int64, _ string, metadata map[string]string) (payments.Intent, error) {
	f.lastAmount = amountCents
	f.lastMetadata = metadata
	return payments.Intent{ID: "pi_test", ClientSecret: "pi_test_secret"}, nil
}

func newTestServer(t *testing.T) (http.Handler, *memory.Store, *fakeProvider) {
	t.Helper()
	store := memory.New()
	store.PutForm(form.Definition{
		ID:     "F1",
		Name:   "Company Formation",
		Schema: json.RawMessage(`{"pages":[{"elements":[{"name":"a"},{"name":"b"}]}]}`),
		Active: true,
	})
	store.PutUser(user.User{ID: "U1", Email: "client@example.com", RoleID: user.RoleClient})
	store.PutUser(user.User{ID: "P1", Email: "partner@example.com", RoleID: user.RolePartner, PartnerCode: "PARTNER10"})
	store.PutService(payment.Service{ID: "SVC1", Name: "Registered Agent", PriceCents: 10000, Active: true})

	provider := &fakeProvider{}
	application := app.New(app.Stores{
		Forms: store, Submissions: store, Incorporations: store,
		Billing: store, Documents: store, Payments: store, Users: store,
	}, app.Dependencies{PaymentProvider: provider}, nil)

	handler := NewHandler(application, Options{
		Auth: middleware.NewAuth(testSecret, nil),
	})
	return handler, store, provider
}

func sessionCookies(t *testing.T, userID, email string) []*http.Cookie {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return []*http.Cookie{
		{Name: middleware.AccessTokenCookie, Value: signed},
		{Name: middleware.RefreshTokenCookie, Value: "refresh"},
	}
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body interface{}, cookies []*http.Cookie) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	r := httptest.NewRequest(method, path, reader)
	r.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		r.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)

	var decoded map[string]interface{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		_ = json.Unmarshal(rec.Body.Bytes(), &decoded)
	}
	return rec, decoded
}

func TestHealthzIsPublic(t *testing.T) {
	handler, _, _ := newTestServer(t)
	rec, body := doJSON(t, handler, http.MethodGet, "/healthz", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestAPIRequiresSession(t *testing.T) {
	handler, _, _ := newTestServer(t)
	rec, body := doJSON(t, handler, http.MethodPost, "/api/v1/forms/submissions",
		map[string]interface{}{"form_id": "F1", "data": map[string]int{"a": 1}}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if body["ok"] != false {
		t.Fatalf("expected ok=false, got %v", body)
	}
}

func TestSubmissionLifecycleOverHTTP(t *testing.T) {
	handler, _, _ := newTestServer(t)
	cookies := sessionCookies(t, "U1", "client@example.com")

	rec, body := doJSON(t, handler, http.MethodPost, "/api/v1/forms/submissions",
		map[string]interface{}{"form_id": "F1", "data": map[string]int{"a": 1}}, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("first submit: expected 200, got %d: %v", rec.Code, body)
	}
	if body["ok"] != true || body["status"] != "in_progress" {
		t.Fatalf("unexpected first response: %v", body)
	}
	firstID, _ := body["id"].(string)
	if firstID == "" {
		t.Fatal("expected submission id")
	}

	rec, body = doJSON(t, handler, http.MethodPost, "/api/v1/forms/submissions",
		map[string]interface{}{"form_id": "F1", "data": map[string]int{"a": 2}, "finalize": true}, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("finalize: expected 200, got %d: %v", rec.Code, body)
	}
	if body["status"] != "submitted" || body["id"] != firstID {
		t.Fatalf("finalize must reuse the draft row: %v", body)
	}

	rec, body = doJSON(t, handler, http.MethodPost, "/api/v1/forms/submissions",
		map[string]interface{}{"form_id": "F1", "data": map[string]int{"a": 3}}, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("new draft: expected 200, got %d: %v", rec.Code, body)
	}
	if body["status"] != "in_progress" || body["id"] == firstID {
		t.Fatalf("draft after finalization must be a new row: %v", body)
	}
}

func TestSubmissionErrorStatuses(t *testing.T) {
	handler, _, _ := newTestServer(t)
	cookies := sessionCookies(t, "U1", "client@example.com")

	rec, body := doJSON(t, handler, http.MethodPost, "/api/v1/forms/submissions",
		map[string]interface{}{"data": map[string]int{"a": 1}}, cookies)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing form_id: expected 400, got %d", rec.Code)
	}
	if body["error"] != "VALIDATION_ERROR" {
		t.Fatalf("unexpected error code: %v", body)
	}

	rec, body = doJSON(t, handler, http.MethodPost, "/api/v1/forms/submissions",
		map[string]interface{}{"form_id": "missing", "data": map[string]int{"a": 1}}, cookies)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown form: expected 404, got %d", rec.Code)
	}
	if body["error"] != "NOT_FOUND" {
		t.Fatalf("unexpected error code: %v", body)
	}
}

func TestIncorporationRoutes(t *testing.T) {
	handler, _, _ := newTestServer(t)
	cookies := sessionCookies(t, "U1", "client@example.com")

	rec, body := doJSON(t, handler, http.MethodPost, "/api/v1/incorporations",
		map[string]interface{}{
			"company_type":    "LLC",
			"formation_state": "WY",
			"name_options":    []string{"Acme LLC"},
		}, cookies)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %v", rec.Code, body)
	}
	id, _ := body["id"].(string)

	rec, body = doJSON(t, handler, http.MethodGet, "/api/v1/incorporations/"+id, nil, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d: %v", rec.Code, body)
	}

	otherCookies := sessionCookies(t, "U2", "other@example.com")
	rec, _ = doJSON(t, handler, http.MethodGet, "/api/v1/incorporations/"+id, nil, otherCookies)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("non-owner get: expected 404, got %d", rec.Code)
	}
}

func TestBillingUpsertAndGet(t *testing.T) {
	handler, _, _ := newTestServer(t)
	cookies := sessionCookies(t, "U1", "client@example.com")

	rec, _ := doJSON(t, handler, http.MethodGet, "/api/v1/billing", nil, cookies)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before upsert, got %d", rec.Code)
	}

	rec, body := doJSON(t, handler, http.MethodPut, "/api/v1/billing",
		map[string]interface{}{"legal_name": "Acme LLC", "tax_id": "12-3456789"}, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("upsert: expected 200, got %d: %v", rec.Code, body)
	}

	rec, body = doJSON(t, handler, http.MethodGet, "/api/v1/billing", nil, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rec.Code)
	}
	profile, _ := body["billing"].(map[string]interface{})
	if profile["legal_name"] != "Acme LLC" {
		t.Fatalf("unexpected profile: %v", profile)
	}
}

func TestPaymentIntentAddsFeeAndMetadata(t *testing.T) {
	handler, _, provider := newTestServer(t)
	cookies := sessionCookies(t, "U1", "client@example.com")

	rec, body := doJSON(t, handler, http.MethodPost, "/api/v1/payments/intent",
		map[string]interface{}{"service_id": "SVC1"}, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", rec.Code, body)
	}
	// 10000 cents + 4.5% fee
	if provider.lastAmount != 10450 {
		t.Fatalf("expected 10450 cents, got %d", provider.lastAmount)
	}
	if provider.lastMetadata["user_id"] != "U1" || provider.lastMetadata["service_id"] != "SVC1" {
		t.Fatalf("unexpected metadata: %v", provider.lastMetadata)
	}
	if body["client_secret"] != "pi_test_secret" {
		t.Fatalf("expected client secret in response: %v", body)
	}
}

func TestRedeemReferralRedirectFlow(t *testing.T) {
	handler, _, _ := newTestServer(t)
	cookies := sessionCookies(t, "U1", "client@example.com")

	formBody := strings.NewReader("code=PARTNER10&redirect=/account")
	r := httptest.NewRequest(http.MethodPost, "/api/v1/referrals/redeem", formBody)
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		r.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rec.Code)
	}
	location := rec.Header().Get("Location")
	if !strings.HasPrefix(location, "/account?status=ok") {
		t.Fatalf("unexpected redirect target %q", location)
	}

	// Second redemption fails and carries the message in the redirect.
	r = httptest.NewRequest(http.MethodPost, "/api/v1/referrals/redeem",
		strings.NewReader("code=PARTNER10&redirect=/account"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		r.AddCookie(c)
	}
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, r)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rec.Code)
	}
	if location := rec.Header().Get("Location"); !strings.Contains(location, "status=error") {
		t.Fatalf("expected error status in redirect, got %q", location)
	}
}

func TestRedeemReferralJSON(t *testing.T) {
	handler, _, _ := newTestServer(t)
	cookies := sessionCookies(t, "U1", "client@example.com")

	rec, body := doJSON(t, handler, http.MethodPost, "/api/v1/referrals/redeem",
		map[string]string{"code": "NOPE"}, cookies)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid code, got %d", rec.Code)
	}
	if body["error"] != "VALIDATION_ERROR" {
		t.Fatalf("unexpected error code: %v", body)
	}

	rec, body = doJSON(t, handler, http.MethodPost, "/api/v1/referrals/redeem",
		map[string]string{"code": "PARTNER10"}, cookies)
	if rec.Code != http.StatusOK || body["ok"] != true {
		t.Fatalf("expected successful redemption, got %d: %v", rec.Code, body)
	}
}

type downGateway struct{}

func (downGateway) SearchRead(context.Context, string, []interface{}, []string, int) ([]map[string]interface{}, error) {
	return nil, odoo.ErrConnectionTimeout
}

func TestListReferralsDegradesWhenERPUnavailable(t *testing.T) {
	store := memory.New()
	store.PutUser(user.User{ID: "P1", Email: "partner@example.com", RoleID: user.RolePartner, PartnerCode: "PARTNER10"})
	application := app.New(app.Stores{
		Forms: store, Submissions: store, Incorporations: store,
		Billing: store, Documents: store, Payments: store, Users: store,
	}, app.Dependencies{Gateway: downGateway{}}, nil)
	handler := NewHandler(application, Options{Auth: middleware.NewAuth(testSecret, nil)})

	cookies := sessionCookies(t, "P1", "partner@example.com")
	rec, body := doJSON(t, handler, http.MethodGet, "/api/v1/referrals", nil, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("an unreachable erp must not fail the page, got %d: %v", rec.Code, body)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok=true, got %v", body)
	}
	refs, ok := body["referrals"].([]interface{})
	if !ok || len(refs) != 0 {
		t.Fatalf("expected empty referrals list, got %v", body["referrals"])
	}
	if warning, _ := body["warning"].(string); warning == "" {
		t.Fatalf("expected a warning flag, got %v", body)
	}
}

func TestResolveIncorporationIDOrder(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/api/v1/forms/submissions?incorporation_id=QRY", nil)
	r.Header.Set("Referer", "https://app.example.com/incorp?incorporation_id=REF")
	if got := resolveIncorporationID(r, "BODY"); got != "QRY" {
		t.Fatalf("query must win, got %q", got)
	}

	r = httptest.NewRequest(http.MethodPost, "/api/v1/forms/submissions", nil)
	r.Header.Set("Referer", "https://app.example.com/incorp?incorporation_id=REF")
	if got := resolveIncorporationID(r, "BODY"); got != "REF" {
		t.Fatalf("referer must beat the body, got %q", got)
	}

	r = httptest.NewRequest(http.MethodPost, "/api/v1/forms/submissions", nil)
	if got := resolveIncorporationID(r, "BODY"); got != "BODY" {
		t.Fatalf("body is the fallback, got %q", got)
	}
}

func TestRegisterAndListDocuments(t *testing.T) {
	handler, _, _ := newTestServer(t)
	cookies := sessionCookies(t, "U1", "client@example.com")

	rec, body := doJSON(t, handler, http.MethodPost, "/api/v1/documents",
		map[string]interface{}{"name": "operating-agreement.pdf", "storage_path": "u1/docs/oa.pdf"}, cookies)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %v", rec.Code, body)
	}

	rec, body = doJSON(t, handler, http.MethodGet, "/api/v1/documents", nil, cookies)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", rec.Code)
	}
	docs, _ := body["documents"].([]interface{})
	if len(docs) != 1 {
		t.Fatalf("expected one document, got %v", body)
	}
}
