package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/launchbase/console/internal/app/domain/billing"
	"github.com/launchbase/console/internal/app/domain/document"
	"github.com/launchbase/console/internal/app/domain/form"
	"github.com/launchbase/console/internal/app/domain/incorporation"
	"github.com/launchbase/console/internal/app/domain/payment"
	"github.com/launchbase/console/internal/app/domain/user"
	"github.com/launchbase/console/internal/app/storage"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.FormStore = (*Store)(nil)
var _ storage.SubmissionStore = (*Store)(nil)
var _ storage.IncorporationStore = (*Store)(nil)
var _ storage.BillingStore = (*Store)(nil)
var _ storage.DocumentStore = (*Store)(nil)
var _ storage.PaymentStore = (*Store)(nil)
var _ storage.UserStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// --- FormStore --------------------------------------------------------------

func (s *Store) GetForm(ctx context.Context, id string) (form.Definition, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT form_id, name, schema_json, active, created_at, updated_at
		FROM forms
		WHERE form_id = $1
	`, id)

	var def form.Definition
	if err := row.Scan(&def.ID, &def.Name, &def.Schema, &def.Active, &def.CreatedAt, &def.UpdatedAt); err != nil {
		return form.Definition{}, err
	}
	return def, nil
}

func (s *Store) ListForms(ctx context.Context) ([]form.Definition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT form_id, name, schema_json, active, created_at, updated_at
		FROM forms
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []form.Definition
	for rows.Next() {
		var def form.Definition
		if err := rows.Scan(&def.ID, &def.Name, &def.Schema, &def.Active, &def.CreatedAt, &def.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, def)
	}
	return result, rows.Err()
}

// --- SubmissionStore --------------------------------------------------------

func (s *Store) CreateSubmission(ctx context.Context, sub form.Submission) (form.Submission, error) {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	sub.CreatedAt = now
	sub.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO form_submissions
			(submission_id, form_id, user_id, incorporation_id, status, data_json,
			 schema_snapshot, schema_hash, progress_percent, created_at, updated_at, submitted_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, NULLIF($8, ''), $9, $10, $11, $12)
	`, sub.ID, sub.FormID, sub.UserID, sub.IncorporationID, sub.Status, []byte(sub.Answers),
		nullableJSON(sub.SchemaSnapshot), sub.SchemaHash, nullInt(sub.ProgressPercent),
		sub.CreatedAt, sub.UpdatedAt, nullTime(sub.SubmittedAt))
	if err != nil {
		return form.Submission{}, err
	}
	return sub, nil
}

// UpdateSubmissionIf writes the row only while its status is one of
// expectedStatuses. The guard lives in the WHERE clause so concurrent
// writers cannot interleave between read and write; a miss reports
// sql.ErrNoRows.
func (s *Store) UpdateSubmissionIf(ctx context.Context, sub form.Submission, expectedStatuses []form.Status) (form.Submission, error) {
	sub.UpdatedAt = time.Now().UTC()

	guard := make([]string, len(expectedStatuses))
	for i, status := range expectedStatuses {
		guard[i] = string(status)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE form_submissions
		SET status = $2, data_json = $3, schema_snapshot = $4, schema_hash = NULLIF($5, ''),
		    progress_percent = $6, updated_at = $7, submitted_at = $8
		WHERE submission_id = $1 AND status = ANY($9)
	`, sub.ID, sub.Status, []byte(sub.Answers), nullableJSON(sub.SchemaSnapshot), sub.SchemaHash,
		nullInt(sub.ProgressPercent), sub.UpdatedAt, nullTime(sub.SubmittedAt), pq.Array(guard))
	if err != nil {
		return form.Submission{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return form.Submission{}, sql.ErrNoRows
	}
	return sub, nil
}

func (s *Store) GetSubmission(ctx context.Context, id string) (form.Submission, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT submission_id, form_id, user_id, incorporation_id, status, data_json,
		       schema_snapshot, schema_hash, progress_percent, created_at, updated_at, submitted_at
		FROM form_submissions
		WHERE submission_id = $1
	`, id)
	return scanSubmission(row)
}

func (s *Store) FindLatestSubmission(ctx context.Context, formID, userID, incorporationID string) (form.Submission, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT submission_id, form_id, user_id, incorporation_id, status, data_json,
		       schema_snapshot, schema_hash, progress_percent, created_at, updated_at, submitted_at
		FROM form_submissions
		WHERE form_id = $1 AND user_id = $2
		  AND incorporation_id IS NOT DISTINCT FROM NULLIF($3, '')
		  AND status IN ('in_progress', 'submitted')
		ORDER BY created_at DESC
		LIMIT 1
	`, formID, userID, incorporationID)
	return scanSubmission(row)
}

func (s *Store) ListSubmissions(ctx context.Context, formID, userID string) ([]form.Submission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT submission_id, form_id, user_id, incorporation_id, status, data_json,
		       schema_snapshot, schema_hash, progress_percent, created_at, updated_at, submitted_at
		FROM form_submissions
		WHERE ($1 = '' OR form_id = $1) AND ($2 = '' OR user_id = $2)
		ORDER BY created_at
	`, formID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []form.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sub)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSubmission(row rowScanner) (form.Submission, error) {
	var (
		sub         form.Submission
		incID       sql.NullString
		answersRaw  []byte
		snapshotRaw []byte
		schemaHash  sql.NullString
		progress    sql.NullInt64
		submittedAt sql.NullTime
	)
	if err := row.Scan(&sub.ID, &sub.FormID, &sub.UserID, &incID, &sub.Status, &answersRaw,
		&snapshotRaw, &schemaHash, &progress, &sub.CreatedAt, &sub.UpdatedAt, &submittedAt); err != nil {
		return form.Submission{}, err
	}
	sub.IncorporationID = incID.String
	sub.Answers = answersRaw
	sub.SchemaSnapshot = snapshotRaw
	sub.SchemaHash = schemaHash.String
	if progress.Valid {
		v := int(progress.Int64)
		sub.ProgressPercent = &v
	}
	if submittedAt.Valid {
		t := submittedAt.Time
		sub.SubmittedAt = &t
	}
	return sub, nil
}

// --- IncorporationStore -----------------------------------------------------

func (s *Store) CreateIncorporation(ctx context.Context, inc incorporation.Incorporation) (incorporation.Incorporation, error) {
	if inc.ID == "" {
		inc.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	inc.CreatedAt = now
	inc.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO incorporations
			(incorporation_id, user_id, company_type, formation_state, name_options, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, inc.ID, inc.UserID, inc.CompanyType, inc.FormationState, pq.Array(inc.NameOptions),
		inc.State, inc.CreatedAt, inc.UpdatedAt)
	if err != nil {
		return incorporation.Incorporation{}, err
	}
	return inc, nil
}

func (s *Store) GetIncorporation(ctx context.Context, id string) (incorporation.Incorporation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT incorporation_id, user_id, company_type, formation_state, name_options, state, created_at, updated_at
		FROM incorporations
		WHERE incorporation_id = $1
	`, id)

	var inc incorporation.Incorporation
	if err := row.Scan(&inc.ID, &inc.UserID, &inc.CompanyType, &inc.FormationState,
		pq.Array(&inc.NameOptions), &inc.State, &inc.CreatedAt, &inc.UpdatedAt); err != nil {
		return incorporation.Incorporation{}, err
	}
	return inc, nil
}

func (s *Store) ListIncorporations(ctx context.Context, userID string) ([]incorporation.Incorporation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT incorporation_id, user_id, company_type, formation_state, name_options, state, created_at, updated_at
		FROM incorporations
		WHERE user_id = $1
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []incorporation.Incorporation
	for rows.Next() {
		var inc incorporation.Incorporation
		if err := rows.Scan(&inc.ID, &inc.UserID, &inc.CompanyType, &inc.FormationState,
			pq.Array(&inc.NameOptions), &inc.State, &inc.CreatedAt, &inc.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, inc)
	}
	return result, rows.Err()
}

// --- BillingStore -----------------------------------------------------------

func (s *Store) UpsertBillingProfile(ctx context.Context, profile billing.Profile) (billing.Profile, error) {
	if profile.ID == "" {
		profile.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	profile.CreatedAt = now
	profile.UpdatedAt = now

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO billing_profiles
			(id, user_id, legal_name, tax_id, address, city, country, postal_code, email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (user_id) DO UPDATE SET
			legal_name = EXCLUDED.legal_name, tax_id = EXCLUDED.tax_id,
			address = EXCLUDED.address, city = EXCLUDED.city, country = EXCLUDED.country,
			postal_code = EXCLUDED.postal_code, email = EXCLUDED.email,
			updated_at = EXCLUDED.updated_at
		RETURNING id, created_at
	`, profile.ID, profile.UserID, profile.LegalName, profile.TaxID, profile.Address,
		profile.City, profile.Country, profile.PostalCode, profile.Email,
		profile.CreatedAt, profile.UpdatedAt)

	if err := row.Scan(&profile.ID, &profile.CreatedAt); err != nil {
		return billing.Profile{}, err
	}
	return profile, nil
}

func (s *Store) GetBillingProfile(ctx context.Context, userID string) (billing.Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, legal_name, tax_id, address, city, country, postal_code, email, created_at, updated_at
		FROM billing_profiles
		WHERE user_id = $1
	`, userID)

	var profile billing.Profile
	if err := row.Scan(&profile.ID, &profile.UserID, &profile.LegalName, &profile.TaxID,
		&profile.Address, &profile.City, &profile.Country, &profile.PostalCode,
		&profile.Email, &profile.CreatedAt, &profile.UpdatedAt); err != nil {
		return billing.Profile{}, err
	}
	return profile, nil
}

// --- DocumentStore ----------------------------------------------------------

func (s *Store) CreateDocument(ctx context.Context, doc document.Document) (document.Document, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents
			(id, user_id, incorporation_id, name, storage_path, content_type, size_bytes, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8)
	`, doc.ID, doc.UserID, doc.IncorporationID, doc.Name, doc.StoragePath,
		doc.ContentType, doc.SizeBytes, doc.CreatedAt)
	if err != nil {
		return document.Document{}, err
	}
	return doc, nil
}

func (s *Store) ListDocuments(ctx context.Context, userID string) ([]document.Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, incorporation_id, name, storage_path, content_type, size_bytes, created_at
		FROM documents
		WHERE user_id = $1
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []document.Document
	for rows.Next() {
		var (
			doc   document.Document
			incID sql.NullString
		)
		if err := rows.Scan(&doc.ID, &doc.UserID, &incID, &doc.Name, &doc.StoragePath,
			&doc.ContentType, &doc.SizeBytes, &doc.CreatedAt); err != nil {
			return nil, err
		}
		doc.IncorporationID = incID.String
		result = append(result, doc)
	}
	return result, rows.Err()
}

// --- PaymentStore -----------------------------------------------------------

func (s *Store) GetService(ctx context.Context, id string) (payment.Service, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, price_cents, active, created_at
		FROM services
		WHERE id = $1
	`, id)

	var svc payment.Service
	if err := row.Scan(&svc.ID, &svc.Name, &svc.PriceCents, &svc.Active, &svc.CreatedAt); err != nil {
		return payment.Service{}, err
	}
	return svc, nil
}

func (s *Store) CreatePayment(ctx context.Context, pay payment.Payment) (payment.Payment, error) {
	if pay.ID == "" {
		pay.ID = uuid.NewString()
	}
	if pay.CreatedAt.IsZero() {
		pay.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payments
			(id, user_id, incorporation_id, service_id, amount_cents, fee_cents, currency, provider_ref, status, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10)
	`, pay.ID, pay.UserID, pay.IncorporationID, pay.ServiceID, pay.AmountCents,
		pay.FeeCents, pay.Currency, pay.ProviderRef, pay.Status, pay.CreatedAt)
	if err != nil {
		return payment.Payment{}, err
	}
	return pay, nil
}

func (s *Store) ListPayments(ctx context.Context, userID string) ([]payment.Payment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, incorporation_id, service_id, amount_cents, fee_cents, currency, provider_ref, status, created_at
		FROM payments
		WHERE user_id = $1
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []payment.Payment
	for rows.Next() {
		var (
			pay   payment.Payment
			incID sql.NullString
		)
		if err := rows.Scan(&pay.ID, &pay.UserID, &incID, &pay.ServiceID, &pay.AmountCents,
			&pay.FeeCents, &pay.Currency, &pay.ProviderRef, &pay.Status, &pay.CreatedAt); err != nil {
			return nil, err
		}
		pay.IncorporationID = incID.String
		result = append(result, pay)
	}
	return result, rows.Err()
}

// --- UserStore --------------------------------------------------------------

func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, email, role_id, partner_code, referred_by, created_at, updated_at
		FROM users
		WHERE user_id = $1
	`, id)
	return scanUser(row)
}

func (s *Store) GetUserByPartnerCode(ctx context.Context, code string) (user.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, email, role_id, partner_code, referred_by, created_at, updated_at
		FROM users
		WHERE LOWER(partner_code) = LOWER($1)
	`, code)
	return scanUser(row)
}

func (s *Store) UpdateUser(ctx context.Context, u user.User) (user.User, error) {
	u.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET email = $2, role_id = $3, partner_code = NULLIF($4, ''), referred_by = NULLIF($5, ''), updated_at = $6
		WHERE user_id = $1
	`, u.ID, u.Email, u.RoleID, u.PartnerCode, u.ReferredBy, u.UpdatedAt)
	if err != nil {
		return user.User{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return user.User{}, sql.ErrNoRows
	}
	return u, nil
}

func scanUser(row rowScanner) (user.User, error) {
	var (
		u           user.User
		partnerCode sql.NullString
		referredBy  sql.NullString
	)
	if err := row.Scan(&u.ID, &u.Email, &u.RoleID, &partnerCode, &referredBy, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return user.User{}, err
	}
	u.PartnerCode = partnerCode.String
	u.ReferredBy = referredBy.String
	return u, nil
}

// --- helpers ----------------------------------------------------------------

func nullableJSON(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return raw
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
