// Package memory provides an in-memory implementation of the storage
// interfaces, used in tests and as a fallback when no database is
// configured.
package memory

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/launchbase/console/internal/app/domain/billing"
	"github.com/launchbase/console/internal/app/domain/document"
	"github.com/launchbase/console/internal/app/domain/form"
	"github.com/launchbase/console/internal/app/domain/incorporation"
	"github.com/launchbase/console/internal/app/domain/payment"
	"github.com/launchbase/console/internal/app/domain/user"
	"github.com/launchbase/console/internal/app/storage"
)

// Store keeps all records in process memory.
type Store struct {
	mu sync.RWMutex

	forms          map[string]form.Definition
	submissions    map[string]form.Submission
	incorporations map[string]incorporation.Incorporation
	billing        map[string]billing.Profile // keyed by user id
	documents      map[string]document.Document
	services       map[string]payment.Service
	payments       map[string]payment.Payment
	users          map[string]user.User
}

var _ storage.FormStore = (*Store)(nil)
var _ storage.SubmissionStore = (*Store)(nil)
var _ storage.IncorporationStore = (*Store)(nil)
var _ storage.BillingStore = (*Store)(nil)
var _ storage.DocumentStore = (*Store)(nil)
var _ storage.PaymentStore = (*Store)(nil)
var _ storage.UserStore = (*Store)(nil)

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		forms:          make(map[string]form.Definition),
		submissions:    make(map[string]form.Submission),
		incorporations: make(map[string]incorporation.Incorporation),
		billing:        make(map[string]billing.Profile),
		documents:      make(map[string]document.Document),
		services:       make(map[string]payment.Service),
		payments:       make(map[string]payment.Payment),
		users:          make(map[string]user.User),
	}
}

// --- FormStore --------------------------------------------------------------

// PutForm seeds or replaces a form definition.
func (s *Store) PutForm(def form.Definition) form.Definition {
	s.mu.Lock()
	defer s.mu.Unlock()
	if def.ID == "" {
		def.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if def.CreatedAt.IsZero() {
		def.CreatedAt = now
	}
	def.UpdatedAt = now
	s.forms[def.ID] = def
	return def
}

func (s *Store) GetForm(_ context.Context, id string) (form.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.forms[id]
	if !ok {
		return form.Definition{}, sql.ErrNoRows
	}
	return def, nil
}

func (s *Store) ListForms(_ context.Context) ([]form.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]form.Definition, 0, len(s.forms))
	for _, def := range s.forms {
		result = append(result, def)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// --- SubmissionStore --------------------------------------------------------

func (s *Store) CreateSubmission(_ context.Context, sub form.Submission) (form.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now
	s.submissions[sub.ID] = sub
	return sub, nil
}

func (s *Store) UpdateSubmissionIf(_ context.Context, sub form.Submission, expectedStatuses []form.Status) (form.Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.submissions[sub.ID]
	if !ok {
		return form.Submission{}, sql.ErrNoRows
	}
	allowed := false
	for _, status := range expectedStatuses {
		if existing.Status == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return form.Submission{}, sql.ErrNoRows
	}
	sub.CreatedAt = existing.CreatedAt
	sub.UpdatedAt = time.Now().UTC()
	s.submissions[sub.ID] = sub
	return sub, nil
}

func (s *Store) GetSubmission(_ context.Context, id string) (form.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.submissions[id]
	if !ok {
		return form.Submission{}, sql.ErrNoRows
	}
	return sub, nil
}

func (s *Store) FindLatestSubmission(_ context.Context, formID, userID, incorporationID string) (form.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		latest form.Submission
		found  bool
	)
	for _, sub := range s.submissions {
		if sub.FormID != formID || sub.UserID != userID {
			continue
		}
		// The parent scope is part of the key. An empty scope matches only
		// rows created without one, never scoped rows.
		if sub.IncorporationID != incorporationID {
			continue
		}
		if sub.Status != form.StatusInProgress && sub.Status != form.StatusSubmitted {
			continue
		}
		if !found || sub.CreatedAt.After(latest.CreatedAt) {
			latest = sub
			found = true
		}
	}
	if !found {
		return form.Submission{}, sql.ErrNoRows
	}
	return latest, nil
}

func (s *Store) ListSubmissions(_ context.Context, formID, userID string) ([]form.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []form.Submission
	for _, sub := range s.submissions {
		if formID != "" && sub.FormID != formID {
			continue
		}
		if userID != "" && sub.UserID != userID {
			continue
		}
		result = append(result, sub)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// --- IncorporationStore -----------------------------------------------------

func (s *Store) CreateIncorporation(_ context.Context, inc incorporation.Incorporation) (incorporation.Incorporation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inc.ID == "" {
		inc.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	inc.CreatedAt = now
	inc.UpdatedAt = now
	s.incorporations[inc.ID] = inc
	return inc, nil
}

func (s *Store) GetIncorporation(_ context.Context, id string) (incorporation.Incorporation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inc, ok := s.incorporations[id]
	if !ok {
		return incorporation.Incorporation{}, sql.ErrNoRows
	}
	return inc, nil
}

func (s *Store) ListIncorporations(_ context.Context, userID string) ([]incorporation.Incorporation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []incorporation.Incorporation
	for _, inc := range s.incorporations {
		if inc.UserID == userID {
			result = append(result, inc)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// --- BillingStore -----------------------------------------------------------

func (s *Store) UpsertBillingProfile(_ context.Context, profile billing.Profile) (billing.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	if existing, ok := s.billing[profile.UserID]; ok {
		profile.ID = existing.ID
		profile.CreatedAt = existing.CreatedAt
	} else {
		profile.ID = uuid.NewString()
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now
	s.billing[profile.UserID] = profile
	return profile, nil
}

func (s *Store) GetBillingProfile(_ context.Context, userID string) (billing.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, ok := s.billing[userID]
	if !ok {
		return billing.Profile{}, sql.ErrNoRows
	}
	return profile, nil
}

// --- DocumentStore ----------------------------------------------------------

func (s *Store) CreateDocument(_ context.Context, doc document.Document) (document.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	s.documents[doc.ID] = doc
	return doc, nil
}

func (s *Store) ListDocuments(_ context.Context, userID string) ([]document.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []document.Document
	for _, doc := range s.documents {
		if doc.UserID == userID {
			result = append(result, doc)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// --- PaymentStore -----------------------------------------------------------

// PutService seeds or replaces a purchasable service.
func (s *Store) PutService(svc payment.Service) payment.Service {
	s.mu.Lock()
	defer s.mu.Unlock()
	if svc.ID == "" {
		svc.ID = uuid.NewString()
	}
	if svc.CreatedAt.IsZero() {
		svc.CreatedAt = time.Now().UTC()
	}
	s.services[svc.ID] = svc
	return svc
}

func (s *Store) GetService(_ context.Context, id string) (payment.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.services[id]
	if !ok {
		return payment.Service{}, sql.ErrNoRows
	}
	return svc, nil
}

func (s *Store) CreatePayment(_ context.Context, pay payment.Payment) (payment.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pay.ID == "" {
		pay.ID = uuid.NewString()
	}
	if pay.CreatedAt.IsZero() {
		pay.CreatedAt = time.Now().UTC()
	}
	s.payments[pay.ID] = pay
	return pay, nil
}

func (s *Store) ListPayments(_ context.Context, userID string) ([]payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []payment.Payment
	for _, pay := range s.payments {
		if pay.UserID == userID {
			result = append(result, pay)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// --- UserStore --------------------------------------------------------------

// PutUser seeds or replaces a user record.
func (s *Store) PutUser(u user.User) user.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	s.users[u.ID] = u
	return u
}

func (s *Store) GetUser(_ context.Context, id string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return user.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (s *Store) GetUserByPartnerCode(_ context.Context, code string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.PartnerCode != "" && strings.EqualFold(u.PartnerCode, code) {
			return u, nil
		}
	}
	return user.User{}, sql.ErrNoRows
}

func (s *Store) UpdateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.users[u.ID]
	if !ok {
		return user.User{}, sql.ErrNoRows
	}
	u.CreatedAt = existing.CreatedAt
	u.UpdatedAt = time.Now().UTC()
	s.users[u.ID] = u
	return u, nil
}
