package admin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/pawtrait/pawtrait-api/internal/catalog"
	"github.com/pawtrait/pawtrait-api/internal/domain/credit"
	"github.com/pawtrait/pawtrait-api/internal/domain/subscription"
	"github.com/pawtrait/pawtrait-api/internal/domain/user"
)

// Service handles admin business logic. Every balance change goes through
// the ledger; admin operations never carry an idempotency key.
type Service struct {
	users   user.Repository
	ledger  credit.Service
	catalog *catalog.Catalog
	now     func() time.Time
}

// NewService creates admin service
func NewService(users user.Repository, ledger credit.Service, cat *catalog.Catalog) *Service {
	return &Service{users: users, ledger: ledger, catalog: cat, now: time.Now}
}

// --- Users ---

// ListUsers returns a page of users with their balances and the total count
func (s *Service) ListUsers(ctx context.Context, page credit.Pagination) ([]UserSummary, int, error) {
	page = page.Normalize()
	users, err := s.users.List(ctx, page.Limit, page.Offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.users.Count(ctx)
	if err != nil {
		total = page.Offset + len(users)
	}

	out := make([]UserSummary, len(users))
	for i := range users {
		out[i] = UserSummaryFromEntity(&users[i])
		balance, err := s.ledger.GetBalance(ctx, users[i].ID)
		switch {
		case errors.Is(err, credit.ErrAccountNotFound):
			// Account not opened in the ledger yet.
		case err != nil:
			return nil, 0, err
		default:
			out[i].Credits = balance
		}
	}
	return out, total, nil
}

// --- Credits ---

// Balance returns a user's balance
func (s *Service) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	balance, err := s.ledger.GetBalance(ctx, userID)
	if errors.Is(err, credit.ErrAccountNotFound) {
		return 0, ErrUserNotFound
	}
	return balance, err
}

// History returns a user's ledger history
func (s *Service) History(ctx context.Context, userID uuid.UUID, page credit.Pagination) ([]credit.OperationRecord, error) {
	if _, err := s.Balance(ctx, userID); err != nil {
		return nil, err
	}
	return s.ledger.History(ctx, userID, page)
}

// AdjustCredits applies one admin operation. A rejected subtract comes back
// in the Result.
func (s *Service) AdjustCredits(ctx context.Context, adminID, userID uuid.UUID, req CreditAdjustRequest) (credit.Result, error) {
	kind, err := credit.ParseKind(req.Action)
	if err != nil {
		return credit.Result{}, err
	}

	res, err := s.ledger.Apply(ctx, credit.Operation{
		AccountID:   userID,
		Kind:        kind,
		Amount:      req.Amount,
		Source:      credit.SourceAdmin,
		Description: describe(adminID, req.Reason),
	})
	if err != nil {
		if errors.Is(err, credit.ErrAccountNotFound) {
			return credit.Result{}, ErrUserNotFound
		}
		return credit.Result{}, err
	}

	log.Info().
		Str("admin_id", adminID.String()).
		Str("user_id", userID.String()).
		Str("kind", string(kind)).
		Int64("amount", req.Amount).
		Bool("applied", res.Applied).
		Msg("admin credit adjustment")
	return res, nil
}

// BulkAdjust applies the same operation to each user independently. One user
// failing does not stop the others.
func (s *Service) BulkAdjust(ctx context.Context, adminID uuid.UUID, req BulkCreditRequest) (*BulkResponse, error) {
	if len(req.UserIDs) == 0 {
		return nil, ErrNoUsers
	}
	if len(req.UserIDs) > MaxBulkUsers {
		return nil, ErrTooManyUsers
	}
	kind, err := credit.ParseKind(req.Action)
	if err != nil {
		return nil, err
	}

	resp := &BulkResponse{Outcomes: make([]BulkOutcome, 0, len(req.UserIDs))}
	seen := make(map[uuid.UUID]bool, len(req.UserIDs))
	for _, userID := range req.UserIDs {
		if seen[userID] {
			continue
		}
		seen[userID] = true

		outcome := BulkOutcome{UserID: userID}
		res, err := s.ledger.Apply(ctx, credit.Operation{
			AccountID:   userID,
			Kind:        kind,
			Amount:      req.Amount,
			Source:      credit.SourceAdmin,
			Description: describe(adminID, req.Reason),
		})
		switch {
		case err != nil:
			outcome.Error = err.Error()
		default:
			outcome.Applied = res.Applied
			outcome.NewBalance = res.NewBalance
			outcome.RejectionReason = res.RejectionReason
		}
		if outcome.Applied {
			resp.Applied++
		} else {
			resp.Failed++
		}
		resp.Outcomes = append(resp.Outcomes, outcome)
	}

	log.Info().
		Str("admin_id", adminID.String()).
		Str("kind", string(kind)).
		Int64("amount", req.Amount).
		Int("applied", resp.Applied).
		Int("failed", resp.Failed).
		Msg("admin bulk credit adjustment")
	return resp, nil
}

// --- Subscriptions ---

// OverrideSubscription writes the plan fields, then runs the requested
// ledger calls in order: set_credits first, then the plan grant.
func (s *Service) OverrideSubscription(ctx context.Context, adminID, userID uuid.UUID, req SubscriptionOverrideRequest) (*SubscriptionOverrideResponse, error) {
	plan, err := s.catalog.Plan(req.Plan)
	if err != nil {
		return nil, ErrUnknownPlan
	}
	status := user.SubscriptionStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if !user.ValidSubscriptionStatus(status) {
		return nil, ErrInvalidStatus
	}
	if req.SetCredits != nil && *req.SetCredits < 0 {
		return nil, ErrNegativeSetValue
	}

	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	sub := user.Subscription{Plan: plan.ID, Status: status}
	switch {
	case status == user.SubscriptionActive && !plan.Free():
		expires := s.now().Add(subscription.Period).UTC()
		sub.ExpiresAt = &expires
	case u.SubscriptionExpiresAt.Valid && !plan.Free():
		expires := u.SubscriptionExpiresAt.Time
		sub.ExpiresAt = &expires
	}
	if err := s.users.UpdateSubscription(ctx, userID, sub); err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	resp := &SubscriptionOverrideResponse{
		UserID:    userID,
		Plan:      plan.ID,
		Status:    status,
		ExpiresAt: sub.ExpiresAt,
		Ledger:    []credit.Result{},
	}

	ops := make([]credit.Operation, 0, 2)
	if req.SetCredits != nil {
		ops = append(ops, credit.Operation{
			AccountID:   userID,
			Kind:        credit.KindSet,
			Amount:      *req.SetCredits,
			Source:      credit.SourceAdmin,
			Description: describe(adminID, "subscription override set"),
		})
	}
	if req.AddPlanCredits && plan.MonthlyCredits > 0 {
		ops = append(ops, credit.Operation{
			AccountID:   userID,
			Kind:        credit.KindAdd,
			Amount:      plan.MonthlyCredits,
			Source:      credit.SourceAdmin,
			Description: describe(adminID, plan.Name+" plan credits"),
		})
	}
	for _, op := range ops {
		res, err := s.ledger.Apply(ctx, op)
		if err != nil {
			return nil, fmt.Errorf("subscription override %s: %w", op.Kind, err)
		}
		resp.Ledger = append(resp.Ledger, res)
	}

	resp.Credits, err = s.ledger.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("admin_id", adminID.String()).
		Str("user_id", userID.String()).
		Str("plan", plan.ID).
		Str("status", string(status)).
		Int("ledger_ops", len(ops)).
		Msg("admin subscription override")
	return resp, nil
}

func describe(adminID uuid.UUID, reason string) string {
	return fmt.Sprintf("admin %s: %s", adminID, reason)
}
