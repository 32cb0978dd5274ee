package forms

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"

	"github.com/launchbase/console/internal/app/domain/form"
	"github.com/launchbase/console/internal/app/domain/incorporation"
	"github.com/launchbase/console/internal/app/storage/memory"
	"github.com/launchbase/console/internal/cache"
	"github.com/launchbase/console/internal/errors"
	"github.com/launchbase/console/internal/metrics"
)

var testSchema = json.RawMessage(`{
	"pages": [
		{"elements": [
			{"type": "text", "name": "company_name"},
			{"type": "text", "name": "state"}
		]},
		{"elements": [
			{"type": "text", "name": "ein"},
			{"type": "text", "name": "agent"}
		]}
	]
}`)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	store.PutForm(form.Definition{ID: "F1", Name: "Company Formation", Schema: testSchema, Active: true})
	svc := New(store, store, store, nil)
	svc.AttachCache(cache.NewMemory())
	return svc, store
}

func TestSubmitFirstDraftCapturesSnapshot(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	sub, err := svc.Submit(ctx, SubmitInput{
		FormID:  "F1",
		UserID:  "U1",
		Answers: json.RawMessage(`{"company_name":"Acme"}`),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sub.Status != form.StatusInProgress {
		t.Fatalf("expected in_progress, got %s", sub.Status)
	}
	if len(sub.SchemaSnapshot) == 0 || sub.SchemaHash == "" {
		t.Fatal("expected schema snapshot and hash on first draft")
	}
	if sub.SubmittedAt != nil {
		t.Fatal("draft must not carry a finalization timestamp")
	}
	if sub.ProgressPercent == nil || *sub.ProgressPercent != 25 {
		t.Fatalf("expected derived progress 25, got %v", sub.ProgressPercent)
	}
}

func TestSubmitLifecycleScenario(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Submit(ctx, SubmitInput{
		FormID:  "F1",
		UserID:  "U1",
		Answers: json.RawMessage(`{"a":1}`),
	})
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if first.Status != form.StatusInProgress {
		t.Fatalf("expected in_progress, got %s", first.Status)
	}

	second, err := svc.Submit(ctx, SubmitInput{
		FormID:   "F1",
		UserID:   "U1",
		Answers:  json.RawMessage(`{"a":2}`),
		Finalize: true,
	})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("finalize must reuse the draft row, got %s vs %s", second.ID, first.ID)
	}
	if second.Status != form.StatusSubmitted || second.SubmittedAt == nil {
		t.Fatalf("expected submitted with timestamp, got %s %v", second.Status, second.SubmittedAt)
	}

	third, err := svc.Submit(ctx, SubmitInput{
		FormID:  "F1",
		UserID:  "U1",
		Answers: json.RawMessage(`{"a":3}`),
	})
	if err != nil {
		t.Fatalf("new draft: %v", err)
	}
	if third.ID == first.ID {
		t.Fatal("draft after finalization must be a new row")
	}
	if third.Status != form.StatusInProgress || third.SubmittedAt != nil {
		t.Fatalf("expected fresh in_progress draft, got %s %v", third.Status, third.SubmittedAt)
	}
	if third.SchemaHash != first.SchemaHash {
		t.Fatal("snapshot must be carried forward from the finalized row")
	}
}

func TestFinalizeIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Submit(ctx, SubmitInput{
		FormID:   "F1",
		UserID:   "U1",
		Answers:  json.RawMessage(`{"a":1}`),
		Finalize: true,
	})
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	again, err := svc.Submit(ctx, SubmitInput{
		FormID:   "F1",
		UserID:   "U1",
		Answers:  json.RawMessage(`{"a":2}`),
		Finalize: true,
	})
	if err != nil {
		t.Fatalf("re-finalize: %v", err)
	}
	if again.ID != first.ID {
		t.Fatal("re-finalizing must keep the same row id")
	}
	if again.Status != form.StatusSubmitted {
		t.Fatalf("expected submitted, got %s", again.Status)
	}
}

func TestSnapshotNeverReplaced(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	first, err := svc.Submit(ctx, SubmitInput{
		FormID:  "F1",
		UserID:  "U1",
		Answers: json.RawMessage(`{"company_name":"Acme"}`),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Mutate the live definition; the row's snapshot must not follow.
	store.PutForm(form.Definition{ID: "F1", Name: "Company Formation", Schema: json.RawMessage(`{"pages":[]}`), Active: true})

	updated, err := svc.Submit(ctx, SubmitInput{
		FormID:  "F1",
		UserID:  "U1",
		Answers: json.RawMessage(`{"company_name":"Acme Holdings"}`),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.ID != first.ID {
		t.Fatal("expected in-place update")
	}
	if updated.SchemaHash != first.SchemaHash {
		t.Fatal("schema snapshot must be immutable for the life of the row")
	}
}

func TestSubmitValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		in   SubmitInput
	}{
		{"missing form id", SubmitInput{UserID: "U1", Answers: json.RawMessage(`{}`)}},
		{"missing answers", SubmitInput{FormID: "F1", UserID: "U1"}},
		{"answers not object", SubmitInput{FormID: "F1", UserID: "U1", Answers: json.RawMessage(`[1,2]`)}},
		{"progress out of range", SubmitInput{FormID: "F1", UserID: "U1", Answers: json.RawMessage(`{}`), ProgressPercent: intPtr(120)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Submit(ctx, tc.in)
			svcErr := errors.GetServiceError(err)
			if svcErr == nil || svcErr.Code != errors.CodeValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestSubmitUnknownFormNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Submit(context.Background(), SubmitInput{
		FormID:  "unknown",
		UserID:  "U1",
		Answers: json.RawMessage(`{}`),
	})
	svcErr := errors.GetServiceError(err)
	if svcErr == nil || svcErr.Code != errors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSubmitIncorporationOwnershipChecks(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	mine, _ := store.CreateIncorporation(ctx, incorporation.Incorporation{
		UserID: "U1", CompanyType: "LLC", FormationState: "WY", State: incorporation.StateActive,
	})
	theirs, _ := store.CreateIncorporation(ctx, incorporation.Incorporation{
		UserID: "U2", CompanyType: "LLC", FormationState: "DE", State: incorporation.StateActive,
	})
	closed, _ := store.CreateIncorporation(ctx, incorporation.Incorporation{
		UserID: "U1", CompanyType: "LLC", FormationState: "WY", State: incorporation.StateClosed,
	})

	if _, err := svc.Submit(ctx, SubmitInput{
		FormID: "F1", UserID: "U1", IncorporationID: mine.ID,
		Answers: json.RawMessage(`{"a":1}`),
	}); err != nil {
		t.Fatalf("owned active incorporation must be accepted: %v", err)
	}

	for name, incID := range map[string]string{
		"not owned": theirs.ID,
		"not active": closed.ID,
		"absent":    "missing",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Submit(ctx, SubmitInput{
				FormID: "F1", UserID: "U1", IncorporationID: incID,
				Answers: json.RawMessage(`{"a":1}`),
			})
			svcErr := errors.GetServiceError(err)
			if svcErr == nil || svcErr.Code != errors.CodeForbidden {
				t.Fatalf("expected forbidden, got %v", err)
			}
		})
	}
}

func TestSubmitScopedByIncorporation(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	inc, _ := store.CreateIncorporation(ctx, incorporation.Incorporation{
		UserID: "U1", CompanyType: "LLC", FormationState: "WY", State: incorporation.StateActive,
	})

	scoped, err := svc.Submit(ctx, SubmitInput{
		FormID: "F1", UserID: "U1", IncorporationID: inc.ID,
		Answers: json.RawMessage(`{"a":1}`),
	})
	if err != nil {
		t.Fatalf("scoped submit: %v", err)
	}

	unscoped, err := svc.Submit(ctx, SubmitInput{
		FormID: "F1", UserID: "U1",
		Answers: json.RawMessage(`{"a":2}`),
	})
	if err != nil {
		t.Fatalf("unscoped submit: %v", err)
	}
	if unscoped.ID == scoped.ID {
		t.Fatal("submissions for different incorporation scopes must not collide")
	}

	kept, err := store.GetSubmission(ctx, scoped.ID)
	if err != nil {
		t.Fatalf("get scoped: %v", err)
	}
	if string(kept.Answers) != `{"a":1}` {
		t.Fatalf("unscoped submit must not clobber the scoped row, got %s", kept.Answers)
	}
}

type failingSubmissions struct {
	*memory.Store
}

func (failingSubmissions) CreateSubmission(context.Context, form.Submission) (form.Submission, error) {
	return form.Submission{}, stderrors.New("insert refused")
}

func TestInsertFailureDoesNotCountAsCreate(t *testing.T) {
	store := memory.New()
	store.PutForm(form.Definition{ID: "F1", Name: "Company Formation", Schema: testSchema, Active: true})
	svc := New(store, failingSubmissions{store}, store, nil)

	before := submissionOutcomeCount(t, "create", "in_progress")

	_, err := svc.Submit(context.Background(), SubmitInput{
		FormID:  "F1",
		UserID:  "U1",
		Answers: json.RawMessage(`{"company_name":"Acme"}`),
	})
	svcErr := errors.GetServiceError(err)
	if svcErr == nil || svcErr.Code != errors.CodePersistence {
		t.Fatalf("expected persistence error, got %v", err)
	}

	if after := submissionOutcomeCount(t, "create", "in_progress"); after != before {
		t.Fatalf("failed insert must not count as a successful create: %v -> %v", before, after)
	}
}

func submissionOutcomeCount(t *testing.T, action, status string) float64 {
	t.Helper()
	families, err := metrics.Registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, family := range families {
		if family.GetName() != "console_forms_submission_outcomes_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			labels := map[string]string{}
			for _, pair := range metric.GetLabel() {
				labels[pair.GetName()] = pair.GetValue()
			}
			if labels["action"] == action && labels["status"] == status {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestDerivedProgressCountsAnsweredFields(t *testing.T) {
	answers := json.RawMessage(`{"company_name":"Acme","state":"WY","ein":"","ignored":"x"}`)
	pct := resolveProgress(nil, testSchema, answers)
	if pct == nil || *pct != 50 {
		t.Fatalf("expected 50, got %v", pct)
	}

	if pct := resolveProgress(intPtr(80), testSchema, answers); pct == nil || *pct != 80 {
		t.Fatalf("explicit progress must win, got %v", pct)
	}

	if pct := resolveProgress(nil, nil, answers); pct != nil {
		t.Fatalf("no schema means no derived progress, got %v", pct)
	}
}

func TestGetScopedToOwner(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	sub, err := svc.Submit(ctx, SubmitInput{
		FormID: "F1", UserID: "U1", Answers: json.RawMessage(`{"a":1}`),
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if _, err := svc.Get(ctx, sub.ID, "U1"); err != nil {
		t.Fatalf("owner get: %v", err)
	}
	_, err = svc.Get(ctx, sub.ID, "U2")
	svcErr := errors.GetServiceError(err)
	if svcErr == nil || svcErr.Code != errors.CodeNotFound {
		t.Fatalf("expected not found for non-owner, got %v", err)
	}
}

func intPtr(v int) *int { return &v }
