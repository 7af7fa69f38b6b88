package generation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/pawtrait/pawtrait-api/internal/catalog"
	"github.com/pawtrait/pawtrait-api/internal/domain/credit"
	"github.com/pawtrait/pawtrait-api/internal/pkg/email"
	"github.com/pawtrait/pawtrait-api/internal/pkg/imagegen"
	"github.com/pawtrait/pawtrait-api/internal/pkg/storage"
)

// Generator renders portraits
type Generator interface {
	Generate(ctx context.Context, r imagegen.Request) (*imagegen.Image, error)
}

// Alerter tells support about a charge that could not be refunded
type Alerter interface {
	SendRefundFailed(a email.RefundAlert)
}

// CreateRequest for POST /generations
type CreateRequest struct {
	RequestID   string `json:"request_id" validate:"omitempty,uuid"`
	Style       string `json:"style" validate:"required,max=64"`
	PetName     string `json:"pet_name" validate:"max=100"`
	ImageURL    string `json:"image_url" validate:"required,url,max=2048"`
	ExtraPrompt string `json:"extra_prompt" validate:"max=500"`
}

// DefaultLease is how long a running attempt keeps its claim before a
// retry may take the generation over.
const DefaultLease = 5 * time.Minute

// Service charges one credit per portrait and gives it back when the
// portrait cannot be delivered.
type Service struct {
	repo      Repository
	ledger    credit.Service
	generator Generator
	store     storage.Storage
	catalog   *catalog.Catalog
	alerter   Alerter
	lease     time.Duration
	now       func() time.Time
}

// NewService creates generation service
func NewService(repo Repository, ledger credit.Service, generator Generator, store storage.Storage, cat *catalog.Catalog, alerter Alerter) *Service {
	return &Service{
		repo:      repo,
		ledger:    ledger,
		generator: generator,
		store:     store,
		catalog:   cat,
		alerter:   alerter,
		lease:     DefaultLease,
		now:       time.Now,
	}
}

// WithLease sets how long an attempt may run before it counts as crashed.
// It must outlast the provider timeout.
func (s *Service) WithLease(d time.Duration) *Service {
	if d > 0 {
		s.lease = d
	}
	return s
}

// Styles lists the portrait styles
func (s *Service) Styles() []catalog.Style {
	return s.catalog.Styles
}

// Create runs one generation. Retrying with the same request_id returns a
// succeeded result as is, refuses a failed one, answers in progress while
// another attempt holds the claim and resumes a pending or abandoned one.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, req CreateRequest) (*Response, error) {
	g, err := s.start(ctx, userID, req)
	if err != nil {
		return nil, err
	}
	switch g.Status {
	case StatusSucceeded:
		resp := g.ToResponse()
		return &resp, nil
	case StatusFailed, StatusRefundFailed:
		return nil, s.settle(ctx, g)
	}
	attempt := g.Attempt.String

	debit, err := s.ledger.Apply(ctx, credit.Operation{
		AccountID:      userID,
		Kind:           credit.KindSubtract,
		Amount:         Cost,
		IdempotencyKey: g.DebitKey(),
		Source:         credit.SourceGeneration,
		Description:    "portrait " + g.Style,
	})
	if err != nil {
		// Whether the debit landed is unknown; a retry resumes and replays it.
		if rerr := s.repo.Release(context.WithoutCancel(ctx), g.ID, attempt); rerr != nil {
			log.Warn().Err(rerr).Str("generation_id", g.ID.String()).Msg("could not release generation")
		}
		return nil, err
	}
	if debit.Err() != nil {
		// Nothing was charged, so the same request_id may be used again.
		if err := s.repo.Delete(ctx, g.ID, attempt); err != nil {
			log.Warn().Err(err).Str("generation_id", g.ID.String()).Msg("could not drop rejected generation")
		}
		observe("insufficient_credits")
		return nil, ErrInsufficientCredits
	}

	url, genErr := s.render(ctx, g)
	if genErr != nil {
		return nil, s.fail(ctx, g, attempt, genErr)
	}

	if err := s.repo.Finish(context.WithoutCancel(ctx), g.ID, attempt, StatusSucceeded, url, ""); err != nil {
		if errors.Is(err, ErrNotClaimed) {
			log.Warn().Str("generation_id", g.ID.String()).Msg("generation taken over by another attempt")
			return nil, ErrGenerationInProgress
		}
		return nil, err
	}
	observe("succeeded")
	log.Info().
		Str("user_id", userID.String()).
		Str("generation_id", g.ID.String()).
		Str("style", g.Style).
		Bool("resumed", debit.Replayed()).
		Msg("portrait generated")
	return s.result(ctx, g.ID)
}

// start creates the generation already claimed by this attempt, or loads the
// existing one for the request id.
func (s *Service) start(ctx context.Context, userID uuid.UUID, req CreateRequest) (*Generation, error) {
	id := uuid.New()
	if req.RequestID != "" {
		parsed, err := uuid.Parse(req.RequestID)
		if err != nil {
			return nil, fmt.Errorf("invalid request_id: %w", err)
		}
		id = parsed

		existing, err := s.repo.GetByID(ctx, id)
		switch {
		case err == nil:
			return s.resume(ctx, existing, userID)
		case !errors.Is(err, ErrGenerationNotFound):
			return nil, err
		}
	}

	style, err := s.catalog.Style(req.Style)
	if err != nil {
		return nil, ErrUnknownStyle
	}

	g := &Generation{
		ID:             id,
		UserID:         userID,
		Style:          style.ID,
		PetName:        strings.TrimSpace(req.PetName),
		SourceImageURL: req.ImageURL,
		Prompt:         style.BuildPrompt(req.PetName, req.ExtraPrompt),
		Status:         StatusRunning,
		Attempt:        sql.NullString{String: uuid.NewString(), Valid: true},
	}
	if err := s.repo.Create(ctx, g); err != nil {
		if errors.Is(err, errDuplicate) {
			return nil, ErrGenerationInProgress
		}
		return nil, err
	}
	return g, nil
}

func (s *Service) resume(ctx context.Context, g *Generation, userID uuid.UUID) (*Generation, error) {
	if g.UserID != userID {
		return nil, ErrGenerationNotFound
	}
	switch g.Status {
	case StatusSucceeded, StatusFailed, StatusRefundFailed:
		return g, nil
	case StatusRunning:
		if s.now().Sub(g.UpdatedAt) < s.lease {
			return nil, ErrGenerationInProgress
		}
		log.Warn().
			Str("generation_id", g.ID.String()).
			Time("claimed_at", g.UpdatedAt).
			Msg("taking over abandoned generation")
	}

	attempt := uuid.NewString()
	claimed, err := s.repo.Claim(ctx, g, attempt)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, ErrGenerationInProgress
	}
	g.Status = StatusRunning
	g.Attempt = sql.NullString{String: attempt, Valid: true}
	return g, nil
}

// render calls the provider and stores the output, returning its URL
func (s *Service) render(ctx context.Context, g *Generation) (string, error) {
	img, err := s.generator.Generate(ctx, imagegen.Request{
		Prompt:   g.Prompt,
		ImageURL: g.SourceImageURL,
		Style:    g.Style,
	})
	if err != nil {
		return "", err
	}

	mime, err := storage.ValidateImage(img.Data, storage.MaxImageSize)
	if err != nil {
		return "", fmt.Errorf("provider output rejected: %w", err)
	}

	key := fmt.Sprintf("portraits/%s/%s%s", g.UserID, g.ID, storage.ExtensionForMime(mime))
	if err := s.store.Put(ctx, key, img.Data, mime); err != nil {
		return "", fmt.Errorf("store portrait: %w", err)
	}
	return s.store.URL(key), nil
}

func refundOp(g *Generation) credit.Operation {
	return credit.Operation{
		AccountID:      g.UserID,
		Kind:           credit.KindAdd,
		Amount:         Cost,
		IdempotencyKey: g.RefundKey(),
		Source:         credit.SourceRefund,
		Description:    "refund for failed portrait",
	}
}

// fail records the failure and then returns the credit. The refund only
// runs once this attempt has won the move to failed. It is not tied to the
// caller's context so a disconnect does not skip it.
func (s *Service) fail(ctx context.Context, g *Generation, attempt string, cause error) error {
	ctx = context.WithoutCancel(ctx)
	logger := log.With().
		Str("user_id", g.UserID.String()).
		Str("generation_id", g.ID.String()).
		Logger()

	if err := s.repo.Finish(ctx, g.ID, attempt, StatusFailed, "", cause.Error()); err != nil {
		if errors.Is(err, ErrNotClaimed) {
			logger.Warn().Err(cause).Msg("generation failed after another attempt took over")
			return ErrGenerationInProgress
		}
		// Still running under this claim; a retry after the lease settles it.
		logger.Error().Err(err).AnErr("cause", cause).Msg("could not mark generation failed")
		return fmt.Errorf("record failed generation: %w", err)
	}

	if _, err := s.ledger.Apply(ctx, refundOp(g)); err != nil {
		s.refundFailed(ctx, g, cause, err)
		return ErrRefundFailed
	}

	observe("failed")
	logger.Warn().Err(cause).Msg("generation failed, credit refunded")
	return fmt.Errorf("%w: %w", ErrGenerationFailed, cause)
}

func (s *Service) refundFailed(ctx context.Context, g *Generation, cause, err error) {
	observe("refund_failed")
	log.Error().
		Err(err).
		AnErr("cause", cause).
		Str("user_id", g.UserID.String()).
		Str("generation_id", g.ID.String()).
		Str("idempotency_key", g.RefundKey()).
		Msg("generation refund failed")
	if serr := s.repo.SetStatus(ctx, g.ID, StatusFailed, StatusRefundFailed); serr != nil {
		log.Error().Err(serr).Str("generation_id", g.ID.String()).Msg("could not mark generation refund_failed")
	}
	if s.alerter != nil {
		s.alerter.SendRefundFailed(email.RefundAlert{
			UserID:       g.UserID.String(),
			GenerationID: g.ID.String(),
			RefundKey:    g.RefundKey(),
			Error:        fmt.Sprintf("%v (refund: %v)", cause, err),
		})
	}
}

// settle answers a retry of a failed generation. It applies the refund
// again, which replays when the credit already went back and repairs a
// refund that was lost.
func (s *Service) settle(ctx context.Context, g *Generation) error {
	ctx = context.WithoutCancel(ctx)
	res, err := s.ledger.Apply(ctx, refundOp(g))
	if err != nil {
		if g.Status == StatusFailed {
			s.refundFailed(ctx, g, errors.New(g.ErrorMessage.String), err)
		}
		return ErrRefundFailed
	}
	if !res.Replayed() {
		log.Warn().Str("generation_id", g.ID.String()).Msg("missing generation refund applied on retry")
	}
	if g.Status == StatusRefundFailed {
		if err := s.repo.SetStatus(ctx, g.ID, StatusRefundFailed, StatusFailed); err != nil {
			log.Warn().Err(err).Str("generation_id", g.ID.String()).Msg("could not clear refund_failed")
		}
	}
	return ErrGenerationAlreadyFailed
}

// Get returns one of the user's generations
func (s *Service) Get(ctx context.Context, userID, id uuid.UUID) (*Response, error) {
	g, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if g.UserID != userID {
		return nil, ErrGenerationNotFound
	}
	resp := g.ToResponse()
	return &resp, nil
}

// List returns the user's generations newest first
func (s *Service) List(ctx context.Context, userID uuid.UUID, page credit.Pagination) ([]Response, error) {
	page = page.Normalize()
	items, err := s.repo.ListByUser(ctx, userID, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	out := make([]Response, len(items))
	for i, g := range items {
		out[i] = g.ToResponse()
	}
	return out, nil
}

func (s *Service) result(ctx context.Context, id uuid.UUID) (*Response, error) {
	g, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := g.ToResponse()
	if balance, err := s.ledger.GetBalance(ctx, g.UserID); err == nil {
		resp.Credits = &balance
	}
	return &resp, nil
}
