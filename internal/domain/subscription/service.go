package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/pawtrait/pawtrait-api/internal/catalog"
	"github.com/pawtrait/pawtrait-api/internal/domain/credit"
	"github.com/pawtrait/pawtrait-api/internal/domain/user"
)

// Period is the length of one paid activation
const Period = 30 * 24 * time.Hour

// Service keeps plan state on the user row and grants plan credits through the ledger
type Service struct {
	users   user.Repository
	ledger  credit.Service
	catalog *catalog.Catalog
	now     func() time.Time
}

func NewService(users user.Repository, ledger credit.Service, cat *catalog.Catalog) *Service {
	return &Service{users: users, ledger: ledger, catalog: cat, now: time.Now}
}

// Plans lists the catalog plans
func (s *Service) Plans() []catalog.Plan {
	return s.catalog.Plans
}

// Plan looks up one plan
func (s *Service) Plan(planID string) (catalog.Plan, error) {
	plan, err := s.catalog.Plan(planID)
	if err != nil {
		return catalog.Plan{}, ErrPlanNotFound
	}
	return plan, nil
}

// Activate grants the plan credits under "subscription:"+activationKey and
// records the plan on the user. A replayed key leaves an already recorded
// plan untouched, so redelivered payment events do not extend the expiry.
func (s *Service) Activate(ctx context.Context, userID uuid.UUID, planID, activationKey string) (*Activation, error) {
	if activationKey == "" {
		return nil, ErrActivationKeyRequired
	}
	plan, err := s.Plan(planID)
	if err != nil {
		return nil, err
	}
	u, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	granted := false
	if plan.MonthlyCredits > 0 {
		res, err := s.ledger.Apply(ctx, credit.Operation{
			AccountID:      userID,
			Kind:           credit.KindAdd,
			Amount:         plan.MonthlyCredits,
			IdempotencyKey: "subscription:" + activationKey,
			Source:         credit.SourceSubscription,
			Description:    plan.Name + " plan credits",
		})
		if err != nil {
			return nil, err
		}
		granted = !res.Replayed()
	}

	now := s.now()
	if granted || u.SubscriptionPlan != plan.ID || !u.SubscriptionActive(now) {
		sub := user.Subscription{Plan: plan.ID, Status: user.SubscriptionActive}
		if !plan.Free() {
			expires := now.Add(Period).UTC()
			sub.ExpiresAt = &expires
		}
		if err := s.users.UpdateSubscription(ctx, userID, sub); err != nil {
			return nil, err
		}
		log.Info().
			Str("user_id", userID.String()).
			Str("plan", plan.ID).
			Bool("granted", granted).
			Msg("subscription activated")
	}

	current, err := s.Current(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Activation{CurrentResponse: *current, Granted: granted}, nil
}

// ActivateFree switches the user to the free plan; its credits are granted once per account
func (s *Service) ActivateFree(ctx context.Context, userID uuid.UUID) (*Activation, error) {
	return s.Activate(ctx, userID, catalog.FreePlanID, "free:"+userID.String())
}

// Cancel stops renewal. Expiry and credits stay as they are.
func (s *Service) Cancel(ctx context.Context, userID uuid.UUID) (*CurrentResponse, error) {
	u, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.SubscriptionPlan == catalog.FreePlanID {
		return nil, ErrCannotCancelFree
	}
	if u.SubscriptionStatus != user.SubscriptionActive {
		return nil, ErrNoActiveSubscription
	}

	sub := user.Subscription{Plan: u.SubscriptionPlan, Status: user.SubscriptionCancelled}
	if u.SubscriptionExpiresAt.Valid {
		t := u.SubscriptionExpiresAt.Time
		sub.ExpiresAt = &t
	}
	if err := s.users.UpdateSubscription(ctx, userID, sub); err != nil {
		return nil, err
	}

	return s.Current(ctx, userID)
}

// Current returns plan state and live balance
func (s *Service) Current(ctx context.Context, userID uuid.UUID) (*CurrentResponse, error) {
	u, err := s.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	balance, err := s.ledger.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	resp := &CurrentResponse{
		Plan:    u.SubscriptionPlan,
		Status:  u.SubscriptionStatus,
		Active:  u.SubscriptionActive(now),
		Credits: balance,
	}
	if u.SubscriptionStatus == user.SubscriptionActive && !resp.Active {
		resp.Status = user.SubscriptionExpired
	}
	if u.SubscriptionExpiresAt.Valid {
		t := u.SubscriptionExpiresAt.Time
		resp.ExpiresAt = &t
	}
	if plan, err := s.catalog.Plan(u.SubscriptionPlan); err == nil {
		resp.MonthlyCredits = plan.MonthlyCredits
	}
	return resp, nil
}

func (s *Service) getUser(ctx context.Context, userID uuid.UUID) (*user.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}
