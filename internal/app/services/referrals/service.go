// Package referrals surfaces a partner's referred contacts from the ERP and
// handles referral code redemption.
package referrals

import (
	"context"
	"database/sql"
	stderrors "errors"
	"strings"
	"time"

	"github.com/launchbase/console/internal/app/domain/partner"
	"github.com/launchbase/console/internal/app/domain/user"
	"github.com/launchbase/console/internal/app/storage"
	"github.com/launchbase/console/internal/errors"
	"github.com/launchbase/console/internal/odoo"
	"github.com/launchbase/console/pkg/logger"
)

// Gateway is the slice of the ERP client this service needs.
type Gateway interface {
	SearchRead(ctx context.Context, model string, domain []interface{}, fields []string, limit int) ([]map[string]interface{}, error)
}

// Service reads referral data from the ERP and manages code redemption.
type Service struct {
	gateway Gateway
	users   storage.UserStore
	log     *logger.Logger
}

// New constructs a referrals service. The gateway may be nil when no ERP is
// configured; listing then reports the backend as unavailable.
func New(gateway Gateway, users storage.UserStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("referrals")
	}
	return &Service{gateway: gateway, users: users, log: log}
}

// ListForPartner returns the contacts the ERP holds against the partner's
// email. A partner unknown to the ERP yields an empty list, not an error.
func (s *Service) ListForPartner(ctx context.Context, partnerEmail string) ([]partner.Referral, error) {
	if strings.TrimSpace(partnerEmail) == "" {
		return nil, errors.Validation("partner email is required")
	}
	if s.gateway == nil {
		return nil, errors.Internal("erp gateway not configured", nil)
	}

	partners, err := s.gateway.SearchRead(ctx, "res.partner",
		[]interface{}{[]interface{}{"email", "=", partnerEmail}},
		[]string{"id"}, 1)
	if err != nil {
		return nil, s.mapGatewayError(err)
	}
	if len(partners) == 0 {
		return []partner.Referral{}, nil
	}

	partnerID, ok := asInt(partners[0]["id"])
	if !ok {
		return nil, errors.Internal("unexpected partner id shape from erp", nil)
	}

	rows, err := s.gateway.SearchRead(ctx, "res.partner",
		[]interface{}{[]interface{}{"x_referido_id", "=", partnerID}},
		[]string{"name", "email", "phone", "city", "sale_order_ids", "create_date"}, 0)
	if err != nil {
		return nil, s.mapGatewayError(err)
	}

	referrals := make([]partner.Referral, 0, len(rows))
	for _, row := range rows {
		referrals = append(referrals, decodeReferral(row))
	}
	return referrals, nil
}

// Redeem links the calling user to the partner owning the code. The checks
// each map to a distinct user-facing message so redirect flows can show why
// redemption failed.
func (s *Service) Redeem(ctx context.Context, userID, code string) (user.User, error) {
	if strings.TrimSpace(code) == "" {
		return user.User{}, errors.Validation("referral code is required")
	}

	caller, err := s.users.GetUser(ctx, userID)
	if stderrors.Is(err, sql.ErrNoRows) {
		return user.User{}, errors.NotFound("user not found")
	}
	if err != nil {
		return user.User{}, errors.Persistence("user lookup failed", err)
	}
	if caller.ReferredBy != "" {
		return user.User{}, errors.Validation("a referral code was already applied to this account")
	}

	owner, err := s.users.GetUserByPartnerCode(ctx, code)
	if stderrors.Is(err, sql.ErrNoRows) {
		return user.User{}, errors.Validation("invalid referral code")
	}
	if err != nil {
		return user.User{}, errors.Persistence("partner lookup failed", err)
	}
	if owner.ID == caller.ID {
		return user.User{}, errors.Validation("you cannot redeem your own referral code")
	}
	if owner.RoleID != user.RolePartner {
		return user.User{}, errors.Validation("invalid referral code")
	}

	caller.ReferredBy = owner.ID
	updated, err := s.users.UpdateUser(ctx, caller)
	if err != nil {
		return user.User{}, errors.Persistence("user update failed", err)
	}
	s.log.WithField("user_id", userID).WithField("partner_id", owner.ID).Info("referral code redeemed")
	return updated, nil
}

func (s *Service) mapGatewayError(err error) error {
	switch {
	case stderrors.Is(err, odoo.ErrConnectionTimeout):
		return errors.Timeout("erp did not respond in time", err)
	case stderrors.Is(err, odoo.ErrAuthenticationFailed):
		return errors.Internal("erp authentication failed", err)
	default:
		return errors.Internal("erp query failed", err)
	}
}

func decodeReferral(row map[string]interface{}) partner.Referral {
	ref := partner.Referral{
		Name:  asString(row["name"]),
		Email: asString(row["email"]),
		Phone: asString(row["phone"]),
		City:  asString(row["city"]),
	}
	if orders, ok := row["sale_order_ids"].([]interface{}); ok {
		for _, raw := range orders {
			if id, ok := asInt(raw); ok {
				ref.OrderIDs = append(ref.OrderIDs, id)
			}
		}
	}
	if created := asString(row["create_date"]); created != "" {
		if t, err := time.Parse("2006-01-02 15:04:05", created); err == nil {
			ref.CreatedAt = t
		}
	}
	return ref
}

// asString tolerates Odoo's habit of returning false for empty fields.
func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
