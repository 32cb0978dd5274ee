// Package forms reconciles incoming form payloads against persisted
// submissions. A submission key is (form, user, optional incorporation);
// finalized rows are never overwritten, a new draft after finalization is a
// new row.
package forms

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/launchbase/console/internal/app/domain/form"
	"github.com/launchbase/console/internal/app/domain/incorporation"
	"github.com/launchbase/console/internal/app/storage"
	"github.com/launchbase/console/internal/cache"
	"github.com/launchbase/console/internal/errors"
	"github.com/launchbase/console/internal/metrics"
	"github.com/launchbase/console/pkg/logger"
)

const definitionCacheTTL = 5 * time.Minute

// Service reconciles form submissions.
type Service struct {
	forms          storage.FormStore
	submissions    storage.SubmissionStore
	incorporations storage.IncorporationStore
	cache          cache.Cache
	log            *logger.Logger
}

// New constructs a forms service.
func New(forms storage.FormStore, submissions storage.SubmissionStore, incorporations storage.IncorporationStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("forms")
	}
	return &Service{forms: forms, submissions: submissions, incorporations: incorporations, log: log}
}

// AttachCache enables form definition caching.
func (s *Service) AttachCache(c cache.Cache) {
	s.cache = c
}

// SubmitInput is one reconciliation request. UserID comes from the
// authenticated session, never from the payload.
type SubmitInput struct {
	FormID          string
	UserID          string
	IncorporationID string
	Answers         json.RawMessage
	ProgressPercent *int
	Finalize        bool
}

// Submit applies the reconciliation algorithm and returns the resulting row.
//
// Exactly one write happens per call: an insert when no live row exists or
// when a draft is opened after finalization, an in-place update otherwise.
// The update is guarded on the row's current status so a concurrent
// finalize cannot be clobbered by a stale draft write.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (form.Submission, error) {
	if err := s.validate(in); err != nil {
		return form.Submission{}, err
	}

	if in.IncorporationID != "" {
		if err := s.verifyIncorporation(ctx, in.IncorporationID, in.UserID); err != nil {
			return form.Submission{}, err
		}
	}

	existing, err := s.submissions.FindLatestSubmission(ctx, in.FormID, in.UserID, in.IncorporationID)
	switch {
	case stderrors.Is(err, sql.ErrNoRows):
		return s.createFirst(ctx, in)
	case err != nil:
		return form.Submission{}, errors.Persistence("submission lookup failed", err)
	}

	if existing.Status == form.StatusSubmitted && !in.Finalize {
		return s.createAfterFinalized(ctx, in, existing)
	}
	return s.updateInPlace(ctx, in, existing)
}

// Get returns a submission by id, scoped to its owner.
func (s *Service) Get(ctx context.Context, id, userID string) (form.Submission, error) {
	sub, err := s.submissions.GetSubmission(ctx, id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return form.Submission{}, errors.NotFound("submission not found")
	}
	if err != nil {
		return form.Submission{}, errors.Persistence("submission lookup failed", err)
	}
	if sub.UserID != userID {
		return form.Submission{}, errors.NotFound("submission not found")
	}
	return sub, nil
}

// List returns a user's submissions, optionally filtered by form.
func (s *Service) List(ctx context.Context, formID, userID string) ([]form.Submission, error) {
	subs, err := s.submissions.ListSubmissions(ctx, formID, userID)
	if err != nil {
		return nil, errors.Persistence("submission list failed", err)
	}
	return subs, nil
}

func (s *Service) validate(in SubmitInput) error {
	if strings.TrimSpace(in.FormID) == "" {
		return errors.Validation("form_id is required")
	}
	if strings.TrimSpace(in.UserID) == "" {
		return errors.Validation("user is required")
	}
	if len(in.Answers) == 0 || !json.Valid(in.Answers) {
		return errors.Validation("data must be a JSON object")
	}
	if parsed := gjson.ParseBytes(in.Answers); !parsed.IsObject() {
		return errors.Validation("data must be a JSON object")
	}
	if in.ProgressPercent != nil && (*in.ProgressPercent < 0 || *in.ProgressPercent > 100) {
		return errors.Validation("progress_percent must be between 0 and 100")
	}
	return nil
}

func (s *Service) verifyIncorporation(ctx context.Context, id, userID string) error {
	inc, err := s.incorporations.GetIncorporation(ctx, id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.Forbidden("incorporation not owned by user")
	}
	if err != nil {
		return errors.Persistence("incorporation lookup failed", err)
	}
	if inc.UserID != userID {
		return errors.Forbidden("incorporation not owned by user")
	}
	if inc.State != incorporation.StateActive {
		return errors.Forbidden("incorporation is not active")
	}
	return nil
}

// createFirst inserts the first row for the key and captures the schema
// snapshot. The snapshot and its hash never change for the life of the row.
func (s *Service) createFirst(ctx context.Context, in SubmitInput) (form.Submission, error) {
	def, err := s.formDefinition(ctx, in.FormID)
	if stderrors.Is(err, sql.ErrNoRows) {
		return form.Submission{}, errors.NotFound("form definition not found")
	}
	if err != nil {
		return form.Submission{}, errors.Persistence("form definition lookup failed", err)
	}

	status := form.StatusInProgress
	var submittedAt *time.Time
	if in.Finalize {
		status = form.StatusSubmitted
		now := time.Now().UTC()
		submittedAt = &now
	}

	hash := sha256.Sum256(def.Schema)
	sub := form.Submission{
		FormID:          in.FormID,
		UserID:          in.UserID,
		IncorporationID: in.IncorporationID,
		Status:          status,
		Answers:         in.Answers,
		SchemaSnapshot:  def.Schema,
		SchemaHash:      hex.EncodeToString(hash[:]),
		ProgressPercent: resolveProgress(in.ProgressPercent, def.Schema, in.Answers),
		SubmittedAt:     submittedAt,
	}

	created, err := s.submissions.CreateSubmission(ctx, sub)
	if err != nil {
		metrics.RecordSubmissionOutcome("create", "error")
		return form.Submission{}, errors.Persistence("submission insert failed", err)
	}
	metrics.RecordSubmissionOutcome("create", string(status))
	s.log.WithField("submission_id", created.ID).WithField("form_id", in.FormID).Info("submission created")
	return created, nil
}

// createAfterFinalized opens a new draft row next to a finalized one. The
// schema snapshot is carried forward only when the finalized row had one.
func (s *Service) createAfterFinalized(ctx context.Context, in SubmitInput, prior form.Submission) (form.Submission, error) {
	sub := form.Submission{
		FormID:          in.FormID,
		UserID:          in.UserID,
		IncorporationID: in.IncorporationID,
		Status:          form.StatusInProgress,
		Answers:         in.Answers,
		SchemaSnapshot:  prior.SchemaSnapshot,
		SchemaHash:      prior.SchemaHash,
		ProgressPercent: resolveProgress(in.ProgressPercent, prior.SchemaSnapshot, in.Answers),
	}

	created, err := s.submissions.CreateSubmission(ctx, sub)
	if err != nil {
		return form.Submission{}, errors.Persistence("submission insert failed", err)
	}
	metrics.RecordSubmissionOutcome("new_draft", string(form.StatusInProgress))
	s.log.WithField("submission_id", created.ID).WithField("prior_id", prior.ID).Info("draft opened after finalized submission")
	return created, nil
}

func (s *Service) updateInPlace(ctx context.Context, in SubmitInput, existing form.Submission) (form.Submission, error) {
	updated := existing
	updated.Answers = in.Answers
	updated.ProgressPercent = resolveProgress(in.ProgressPercent, existing.SchemaSnapshot, in.Answers)

	// A finalize guards on both statuses so two parallel finalize calls
	// both succeed. A draft write guards on in_progress only; losing that
	// guard means a finalize landed concurrently and the draft becomes a
	// new row.
	guard := []form.Status{form.StatusInProgress}
	action := "update"
	if in.Finalize {
		guard = []form.Status{form.StatusInProgress, form.StatusSubmitted}
		action = "finalize"
		updated.Status = form.StatusSubmitted
		now := time.Now().UTC()
		updated.SubmittedAt = &now
	} else {
		updated.Status = form.StatusInProgress
		updated.SubmittedAt = nil
	}

	result, err := s.submissions.UpdateSubmissionIf(ctx, updated, guard)
	if stderrors.Is(err, sql.ErrNoRows) && !in.Finalize {
		return s.createAfterFinalized(ctx, in, existing)
	}
	if err != nil {
		return form.Submission{}, errors.Persistence("submission update failed", err)
	}
	metrics.RecordSubmissionOutcome(action, string(result.Status))
	s.log.WithField("submission_id", result.ID).WithField("status", string(result.Status)).Info("submission updated")
	return result, nil
}

func (s *Service) formDefinition(ctx context.Context, id string) (form.Definition, error) {
	key := "form:" + id
	if s.cache != nil {
		if raw, found, err := s.cache.Get(ctx, key); err == nil && found {
			var def form.Definition
			if err := json.Unmarshal(raw, &def); err == nil {
				return def, nil
			}
		}
	}

	def, err := s.forms.GetForm(ctx, id)
	if err != nil {
		return form.Definition{}, err
	}

	if s.cache != nil {
		if raw, err := json.Marshal(def); err == nil {
			_ = s.cache.Set(ctx, key, raw, definitionCacheTTL)
		}
	}
	return def, nil
}

// resolveProgress prefers the caller-provided percentage and otherwise
// derives one by counting answered schema fields.
func resolveProgress(explicit *int, schema, answers json.RawMessage) *int {
	if explicit != nil {
		v := *explicit
		return &v
	}
	names := fieldNames(schema)
	if len(names) == 0 {
		return nil
	}

	parsed := gjson.ParseBytes(answers)
	answered := 0
	for _, name := range names {
		value := parsed.Get(name)
		if !value.Exists() || value.Type == gjson.Null {
			continue
		}
		if value.Type == gjson.String && value.Str == "" {
			continue
		}
		answered++
	}

	pct := answered * 100 / len(names)
	return &pct
}

// fieldNames walks a SurveyJS-style schema: pages hold elements, pageless
// schemas hold elements at the top level.
func fieldNames(schema json.RawMessage) []string {
	if len(schema) == 0 {
		return nil
	}

	var names []string
	collect := func(elements gjson.Result) {
		elements.ForEach(func(_, element gjson.Result) bool {
			if name := element.Get("name").String(); name != "" {
				names = append(names, name)
			}
			return true
		})
	}

	doc := gjson.ParseBytes(schema)
	doc.Get("pages").ForEach(func(_, page gjson.Result) bool {
		collect(page.Get("elements"))
		return true
	})
	collect(doc.Get("elements"))
	return names
}
