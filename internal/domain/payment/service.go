package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/pawtrait/pawtrait-api/internal/catalog"
	"github.com/pawtrait/pawtrait-api/internal/domain/credit"
	"github.com/pawtrait/pawtrait-api/internal/domain/subscription"
	"github.com/pawtrait/pawtrait-api/internal/domain/user"
	"github.com/pawtrait/pawtrait-api/internal/pkg/email"
	"github.com/pawtrait/pawtrait-api/internal/pkg/paypal"
)

// Provider is the part of the PayPal client the service needs
type Provider interface {
	CreateOrder(ctx context.Context, req paypal.CreateOrderRequest) (*paypal.Order, error)
	CaptureOrder(ctx context.Context, orderID string) (*paypal.Capture, error)
	VerifyWebhookSignature(ctx context.Context, headers http.Header, body []byte) (bool, error)
}

// Activator activates a paid plan
type Activator interface {
	Activate(ctx context.Context, userID uuid.UUID, planID, activationKey string) (*subscription.Activation, error)
}

// Notifier sends the receipt
type Notifier interface {
	SendCreditsPurchased(to string, r email.Receipt)
}

// Config holds checkout redirect URLs
type Config struct {
	ReturnURL string
	CancelURL string
}

// Service sells credit packages and plans through PayPal
type Service struct {
	repo     Repository
	provider Provider
	ledger   credit.Service
	subs     Activator
	users    user.Repository
	catalog  *catalog.Catalog
	notifier Notifier
	config   Config
	now      func() time.Time
}

// NewService creates payment service
func NewService(repo Repository, provider Provider, ledger credit.Service, subs Activator, users user.Repository, cat *catalog.Catalog, notifier Notifier, cfg Config) *Service {
	return &Service{
		repo:     repo,
		provider: provider,
		ledger:   ledger,
		subs:     subs,
		users:    users,
		catalog:  cat,
		notifier: notifier,
		config:   cfg,
		now:      time.Now,
	}
}

// CreateOrderRequest for POST /payments/orders
type CreateOrderRequest struct {
	Purpose string `json:"purpose" validate:"required,purpose"`
	ItemID  string `json:"item_id" validate:"required,max=64"`
}

// CheckoutResponse tells the client where to send the buyer
type CheckoutResponse struct {
	PaymentID  uuid.UUID       `json:"payment_id"`
	OrderID    string          `json:"order_id"`
	ApproveURL string          `json:"approve_url"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
}

// FulfilResult is returned after capture
type FulfilResult struct {
	Payment *Payment `json:"payment"`
	Credits int64    `json:"credits"`
}

type item struct {
	name     string
	credits  int64
	price    decimal.Decimal
	currency string
}

func (s *Service) resolve(purpose Purpose, itemID string) (item, error) {
	switch purpose {
	case PurposeCredits:
		pkg, err := s.catalog.Package(itemID)
		if err != nil {
			return item{}, ErrUnknownItem
		}
		return item{name: pkg.Name, credits: pkg.Credits, price: pkg.Price, currency: pkg.Currency}, nil
	case PurposeSubscription:
		plan, err := s.catalog.Plan(itemID)
		if err != nil {
			return item{}, ErrUnknownItem
		}
		if plan.Free() {
			return item{}, ErrFreePlan
		}
		return item{name: plan.Name + " plan", credits: plan.MonthlyCredits, price: plan.PriceMonthly, currency: plan.Currency}, nil
	}
	return item{}, ErrUnknownItem
}

// CreateOrder opens a PayPal order and records it as pending
func (s *Service) CreateOrder(ctx context.Context, userID uuid.UUID, req CreateOrderRequest) (*CheckoutResponse, error) {
	purpose := Purpose(req.Purpose)
	it, err := s.resolve(purpose, req.ItemID)
	if err != nil {
		return nil, err
	}

	paymentID := uuid.New()
	order, err := s.provider.CreateOrder(ctx, paypal.CreateOrderRequest{
		ReferenceID: paymentID.String(),
		Description: "Pawtrait " + it.name,
		Amount:      it.price,
		Currency:    it.currency,
		ReturnURL:   s.config.ReturnURL,
		CancelURL:   s.config.CancelURL,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}

	p := &Payment{
		ID:              paymentID,
		UserID:          userID,
		ProviderOrderID: order.ID,
		Purpose:         purpose,
		ItemID:          req.ItemID,
		Credits:         it.credits,
		Amount:          it.price,
		Currency:        it.currency,
		Status:          StatusPending,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}

	log.Info().
		Str("user_id", userID.String()).
		Str("order_id", order.ID).
		Str("purpose", string(purpose)).
		Str("item_id", req.ItemID).
		Msg("payment order created")

	return &CheckoutResponse{
		PaymentID:  paymentID,
		OrderID:    order.ID,
		ApproveURL: order.ApproveURL(),
		Amount:     it.price,
		Currency:   it.currency,
	}, nil
}

// Capture is the buyer-return path: capture at PayPal, then fulfil
func (s *Service) Capture(ctx context.Context, userID uuid.UUID, orderID string) (*FulfilResult, error) {
	p, err := s.repo.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, ErrPaymentNotFound
	}
	if p.Status == StatusCompleted {
		return s.result(ctx, p)
	}

	if err := s.capture(ctx, p); err != nil {
		return nil, err
	}
	return s.fulfil(ctx, p)
}

func (s *Service) capture(ctx context.Context, p *Payment) error {
	capture, err := s.provider.CaptureOrder(ctx, p.ProviderOrderID)
	if errors.Is(err, paypal.ErrAlreadyCaptured) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	if !capture.Completed() {
		if capture.Status == "DECLINED" || capture.Status == "FAILED" {
			if err := s.repo.MarkFailed(ctx, p.ProviderOrderID); err != nil {
				log.Warn().Err(err).Str("order_id", p.ProviderOrderID).Msg("could not mark payment failed")
			}
		}
		return fmt.Errorf("%w: status %s", ErrPaymentNotCompleted, capture.Status)
	}
	return nil
}

// HandleWebhook verifies and applies a PayPal event. Unknown orders and
// unrelated events are acknowledged without effect.
func (s *Service) HandleWebhook(ctx context.Context, headers http.Header, body []byte) error {
	ok, err := s.provider.VerifyWebhookSignature(ctx, headers, body)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	if !ok {
		return ErrInvalidSignature
	}

	ev, err := paypal.ParseEvent(body)
	if err != nil {
		return err
	}
	orderID := ev.OrderID()
	if orderID == "" {
		log.Debug().Str("event_type", ev.EventType).Msg("paypal event ignored")
		return nil
	}

	p, err := s.repo.GetByOrderID(ctx, orderID)
	if errors.Is(err, ErrPaymentNotFound) {
		log.Warn().Str("order_id", orderID).Str("event_type", ev.EventType).Msg("paypal event for unknown order")
		return nil
	}
	if err != nil {
		return err
	}
	if p.Status == StatusCompleted {
		return nil
	}

	switch ev.EventType {
	case paypal.EventOrderApproved:
		if err := s.capture(ctx, p); err != nil {
			return err
		}
	case paypal.EventCaptureCompleted:
	default:
		return nil
	}

	_, err = s.fulfil(ctx, p)
	return err
}

// fulfil grants what was bought. The ledger key is the order id, so the
// return path and the webhook can both run it.
func (s *Service) fulfil(ctx context.Context, p *Payment) (*FulfilResult, error) {
	switch p.Purpose {
	case PurposeCredits:
		_, err := s.ledger.Apply(ctx, credit.Operation{
			AccountID:      p.UserID,
			Kind:           credit.KindAdd,
			Amount:         p.Credits,
			IdempotencyKey: p.LedgerKey(),
			Source:         credit.SourcePurchase,
			Description:    "credit package " + p.ItemID,
		})
		if err != nil {
			return nil, err
		}
	case PurposeSubscription:
		if _, err := s.subs.Activate(ctx, p.UserID, p.ItemID, p.LedgerKey()); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: purpose %q", ErrUnknownItem, p.Purpose)
	}

	now := s.now()
	moved, err := s.repo.MarkCompleted(ctx, p.ProviderOrderID, now)
	if err != nil {
		return nil, err
	}
	p.Status = StatusCompleted

	res, err := s.result(ctx, p)
	if err != nil {
		return nil, err
	}

	if moved {
		log.Info().
			Str("user_id", p.UserID.String()).
			Str("order_id", p.ProviderOrderID).
			Str("purpose", string(p.Purpose)).
			Int64("credits", p.Credits).
			Msg("payment fulfilled")
		s.sendReceipt(ctx, p, res.Credits)
	}
	return res, nil
}

func (s *Service) result(ctx context.Context, p *Payment) (*FulfilResult, error) {
	balance, err := s.ledger.GetBalance(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	return &FulfilResult{Payment: p, Credits: balance}, nil
}

func (s *Service) sendReceipt(ctx context.Context, p *Payment, balance int64) {
	if s.notifier == nil {
		return
	}
	u, err := s.users.GetByID(ctx, p.UserID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", p.UserID.String()).Msg("receipt skipped")
		return
	}

	name := p.ItemID
	if it, err := s.resolve(p.Purpose, p.ItemID); err == nil {
		name = it.name
	}
	s.notifier.SendCreditsPurchased(u.Email, email.Receipt{
		OrderID:  p.ProviderOrderID,
		ItemName: name,
		Amount:   p.Amount.StringFixed(2),
		Currency: p.Currency,
		Credits:  p.Credits,
		Balance:  balance,
	})
}

// ListByUser returns the user's payments newest first
func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID, page credit.Pagination) ([]*Payment, error) {
	page = page.Normalize()
	return s.repo.ListByUser(ctx, userID, page.Limit, page.Offset)
}

// Packages lists the credit packages for sale
func (s *Service) Packages() []catalog.Package {
	return s.catalog.Packages
}
