package generation_test

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pawtrait/pawtrait-api/internal/catalog"
	"github.com/pawtrait/pawtrait-api/internal/domain/credit"
	"github.com/pawtrait/pawtrait-api/internal/domain/generation"
	"github.com/pawtrait/pawtrait-api/internal/pkg/database/dbtest"
	"github.com/pawtrait/pawtrait-api/internal/pkg/email"
	"github.com/pawtrait/pawtrait-api/internal/pkg/imagegen"
	"github.com/pawtrait/pawtrait-api/internal/pkg/storage"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type fakeGenerator struct {
	mu      sync.Mutex
	calls   int
	prompts []string
	err     error
	image   *imagegen.Image
}

func (f *fakeGenerator) Generate(ctx context.Context, r imagegen.Request) (*imagegen.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.prompts = append(f.prompts, r.Prompt)
	if f.err != nil {
		return nil, f.err
	}
	if f.image != nil {
		return f.image, nil
	}
	return &imagegen.Image{Data: pngBytes, ContentType: "image/png"}, nil
}

type fakeAlerter struct {
	alerts []email.RefundAlert
}

func (a *fakeAlerter) SendRefundFailed(alert email.RefundAlert) {
	a.alerts = append(a.alerts, alert)
}

// blockingGenerator holds the first call until release is closed and fails
// every later one.
type blockingGenerator struct {
	mu      sync.Mutex
	calls   int
	started chan struct{}
	release chan struct{}
}

func newBlockingGenerator() *blockingGenerator {
	return &blockingGenerator{started: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingGenerator) Generate(ctx context.Context, r imagegen.Request) (*imagegen.Image, error) {
	b.mu.Lock()
	b.calls++
	first := b.calls == 1
	b.mu.Unlock()
	if !first {
		return nil, errors.New("provider hiccup")
	}
	close(b.started)
	<-b.release
	return &imagegen.Image{Data: pngBytes, ContentType: "image/png"}, nil
}

func (b *blockingGenerator) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// refundBreaker fails refunds with a store error while broken is set
type refundBreaker struct {
	credit.Service
	broken bool
}

func (b *refundBreaker) Apply(ctx context.Context, op credit.Operation) (credit.Result, error) {
	if b.broken && strings.HasSuffix(op.IdempotencyKey, ":refund") {
		return credit.Result{}, credit.ErrStoreUnavailable
	}
	return b.Service.Apply(ctx, op)
}

type failingStorage struct{ storage.Storage }

func (failingStorage) Put(ctx context.Context, key string, data []byte, contentType string) error {
	return errors.New("bucket unavailable")
}

type fixture struct {
	svc       *generation.Service
	repo      generation.Repository
	ledger    credit.Service
	generator *fakeGenerator
	alerter   *fakeAlerter
	userID    uuid.UUID
}

type option func(*options)

type options struct {
	ledger    func(credit.Service) credit.Service
	storage   func(storage.Storage) storage.Storage
	generator generation.Generator
}

func withLedger(wrap func(credit.Service) credit.Service) option {
	return func(o *options) { o.ledger = wrap }
}

func withGenerator(g generation.Generator) option {
	return func(o *options) { o.generator = g }
}

func withStorage(wrap func(storage.Storage) storage.Storage) option {
	return func(o *options) { o.storage = wrap }
}

func newFixture(t *testing.T, credits int64, opts ...option) *fixture {
	t.Helper()
	o := &options{
		ledger:  func(s credit.Service) credit.Service { return s },
		storage: func(s storage.Storage) storage.Storage { return s },
	}
	for _, opt := range opts {
		opt(o)
	}

	db := dbtest.NewSQLite(t)
	ledger := credit.NewService(credit.NewSQLStore(db.DB))
	userID := dbtest.CreateUser(t, db)
	if credits > 0 {
		_, err := ledger.Apply(context.Background(), credit.Operation{AccountID: userID, Kind: credit.KindAdd, Amount: credits, IdempotencyKey: "signup"})
		require.NoError(t, err)
	}

	local, err := storage.NewLocalStorage(t.TempDir(), "http://cdn.test")
	require.NoError(t, err)

	f := &fixture{
		repo:      generation.NewRepository(db.DB),
		ledger:    ledger,
		generator: &fakeGenerator{},
		alerter:   &fakeAlerter{},
		userID:    userID,
	}
	var gen generation.Generator = f.generator
	if o.generator != nil {
		gen = o.generator
	}
	f.svc = generation.NewService(f.repo, o.ledger(ledger), gen, o.storage(local), catalog.Default(), f.alerter)
	return f
}

func (f *fixture) balance(t *testing.T) int64 {
	t.Helper()
	b, err := f.ledger.GetBalance(context.Background(), f.userID)
	require.NoError(t, err)
	return b
}

func request(id string) generation.CreateRequest {
	return generation.CreateRequest{
		RequestID: id,
		Style:     "watercolor",
		PetName:   "Biscuit",
		ImageURL:  "https://uploads.test/biscuit.jpg",
	}
}

func TestCreateChargesOneCredit(t *testing.T) {
	f := newFixture(t, 3)

	out, err := f.svc.Create(context.Background(), f.userID, request(""))
	require.NoError(t, err)
	require.Equal(t, generation.StatusSucceeded, out.Status)
	require.True(t, strings.HasPrefix(out.ResultURL, "http://cdn.test/portraits/"+f.userID.String()+"/"))
	require.True(t, strings.HasSuffix(out.ResultURL, ".png"))
	require.NotNil(t, out.Credits)
	require.Equal(t, int64(2), *out.Credits)
	require.Equal(t, int64(2), f.balance(t))
	require.Contains(t, f.generator.prompts[0], "Biscuit")
}

func TestCreateWithoutCreditsNeverCallsProvider(t *testing.T) {
	f := newFixture(t, 0)
	ctx := context.Background()
	id := uuid.NewString()

	_, err := f.svc.Create(ctx, f.userID, request(id))
	require.ErrorIs(t, err, generation.ErrInsufficientCredits)
	require.Equal(t, 0, f.generator.calls)

	// After topping up the same request id goes through.
	_, err = f.ledger.Apply(ctx, credit.Operation{AccountID: f.userID, Kind: credit.KindAdd, Amount: 1})
	require.NoError(t, err)

	out, err := f.svc.Create(ctx, f.userID, request(id))
	require.NoError(t, err)
	require.Equal(t, generation.StatusSucceeded, out.Status)
	require.Equal(t, int64(0), f.balance(t))
}

func TestProviderFailureRefunds(t *testing.T) {
	f := newFixture(t, 3)
	f.generator.err = imagegen.ErrTimeout
	ctx := context.Background()
	id := uuid.NewString()

	_, err := f.svc.Create(ctx, f.userID, request(id))
	require.ErrorIs(t, err, generation.ErrGenerationFailed)
	require.ErrorIs(t, err, imagegen.ErrTimeout)
	require.Equal(t, int64(3), f.balance(t))

	got, err := f.svc.Get(ctx, f.userID, uuid.MustParse(id))
	require.NoError(t, err)
	require.Equal(t, generation.StatusFailed, got.Status)

	// The failed request cannot be replayed; a fresh id is needed.
	f.generator.err = nil
	_, err = f.svc.Create(ctx, f.userID, request(id))
	require.ErrorIs(t, err, generation.ErrGenerationAlreadyFailed)
	require.Equal(t, int64(3), f.balance(t))

	history, err := f.ledger.History(ctx, f.userID, credit.Pagination{})
	require.NoError(t, err)
	var refunds int
	for _, rec := range history {
		if rec.IdempotencyKey != nil && *rec.IdempotencyKey == "generation:"+id+":refund" {
			require.Equal(t, credit.SourceRefund, rec.Source)
			refunds++
		}
	}
	require.Equal(t, 1, refunds)
}

func TestEmptyOutputAndStorageFailureRefund(t *testing.T) {
	t.Run("empty output", func(t *testing.T) {
		f := newFixture(t, 1)
		f.generator.image = &imagegen.Image{ContentType: "image/png"}

		_, err := f.svc.Create(context.Background(), f.userID, request(""))
		require.ErrorIs(t, err, generation.ErrGenerationFailed)
		require.ErrorIs(t, err, storage.ErrEmptyFile)
		require.Equal(t, int64(1), f.balance(t))
	})

	t.Run("storage", func(t *testing.T) {
		f := newFixture(t, 1, withStorage(func(s storage.Storage) storage.Storage { return failingStorage{s} }))

		_, err := f.svc.Create(context.Background(), f.userID, request(""))
		require.ErrorIs(t, err, generation.ErrGenerationFailed)
		require.Equal(t, int64(1), f.balance(t))
	})
}

func TestRefundFailureIsReported(t *testing.T) {
	breaker := &refundBreaker{broken: true}
	f := newFixture(t, 2, withLedger(func(s credit.Service) credit.Service {
		breaker.Service = s
		return breaker
	}))
	f.generator.err = errors.New("provider exploded")
	ctx := context.Background()
	id := uuid.NewString()

	_, err := f.svc.Create(ctx, f.userID, request(id))
	require.ErrorIs(t, err, generation.ErrRefundFailed)
	require.Equal(t, int64(1), f.balance(t))

	got, err := f.svc.Get(ctx, f.userID, uuid.MustParse(id))
	require.NoError(t, err)
	require.Equal(t, generation.StatusRefundFailed, got.Status)

	require.Len(t, f.alerter.alerts, 1)
	require.Equal(t, "generation:"+id+":refund", f.alerter.alerts[0].RefundKey)
}

func TestRetryRepairsFailedRefund(t *testing.T) {
	breaker := &refundBreaker{broken: true}
	f := newFixture(t, 2, withLedger(func(s credit.Service) credit.Service {
		breaker.Service = s
		return breaker
	}))
	f.generator.err = errors.New("provider exploded")
	ctx := context.Background()
	id := uuid.NewString()

	_, err := f.svc.Create(ctx, f.userID, request(id))
	require.ErrorIs(t, err, generation.ErrRefundFailed)
	require.Equal(t, int64(1), f.balance(t))

	// Once the ledger is back a retry of the same id returns the credit.
	breaker.broken = false
	_, err = f.svc.Create(ctx, f.userID, request(id))
	require.ErrorIs(t, err, generation.ErrGenerationAlreadyFailed)
	require.Equal(t, int64(2), f.balance(t))
	require.Equal(t, 1, f.generator.calls)

	got, err := f.svc.Get(ctx, f.userID, uuid.MustParse(id))
	require.NoError(t, err)
	require.Equal(t, generation.StatusFailed, got.Status)
	require.Len(t, f.alerter.alerts, 1)

	// Further retries replay the refund.
	_, err = f.svc.Create(ctx, f.userID, request(id))
	require.ErrorIs(t, err, generation.ErrGenerationAlreadyFailed)
	require.Equal(t, int64(2), f.balance(t))
}

func TestFailedGenerationWithoutRefundIsRefundedOnRetry(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	id := uuid.New()

	// A crash between recording the failure and refunding leaves the debit in place.
	require.NoError(t, f.repo.Create(ctx, &generation.Generation{
		ID:             id,
		UserID:         f.userID,
		Style:          "cartoon",
		SourceImageURL: "https://uploads.test/rex.jpg",
		Prompt:         "A cheerful cartoon illustration of Rex",
		Status:         generation.StatusFailed,
	}))
	_, err := f.ledger.Apply(ctx, credit.Operation{AccountID: f.userID, Kind: credit.KindSubtract, Amount: 1, IdempotencyKey: "generation:" + id.String()})
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, f.userID, request(id.String()))
	require.ErrorIs(t, err, generation.ErrGenerationAlreadyFailed)
	require.Equal(t, int64(3), f.balance(t))
	require.Equal(t, 0, f.generator.calls)
}

func TestRetryWhileRunningDoesNotStartSecondAttempt(t *testing.T) {
	gen := newBlockingGenerator()
	f := newFixture(t, 3, withGenerator(gen))
	ctx := context.Background()
	id := uuid.NewString()

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Create(ctx, f.userID, request(id))
		done <- err
	}()
	<-gen.started

	_, err := f.svc.Create(ctx, f.userID, request(id))
	require.ErrorIs(t, err, generation.ErrGenerationInProgress)

	close(gen.release)
	require.NoError(t, <-done)

	require.Equal(t, 1, gen.Calls())
	require.Equal(t, int64(2), f.balance(t))

	got, err := f.svc.Get(ctx, f.userID, uuid.MustParse(id))
	require.NoError(t, err)
	require.Equal(t, generation.StatusSucceeded, got.Status)

	history, err := f.ledger.History(ctx, f.userID, credit.Pagination{})
	require.NoError(t, err)
	for _, rec := range history {
		if rec.IdempotencyKey != nil {
			require.NotEqual(t, "generation:"+id+":refund", *rec.IdempotencyKey)
		}
	}
}

func TestAbandonedAttemptIsTakenOverAfterLease(t *testing.T) {
	f := newFixture(t, 3)
	f.svc.WithLease(time.Nanosecond)
	ctx := context.Background()
	id := uuid.New()

	// A crashed attempt left its claim behind after the debit.
	require.NoError(t, f.repo.Create(ctx, &generation.Generation{
		ID:             id,
		UserID:         f.userID,
		Style:          "cartoon",
		SourceImageURL: "https://uploads.test/rex.jpg",
		Prompt:         "A cheerful cartoon illustration of Rex",
		Status:         generation.StatusRunning,
		Attempt:        sql.NullString{String: "crashed", Valid: true},
	}))
	_, err := f.ledger.Apply(ctx, credit.Operation{AccountID: f.userID, Kind: credit.KindSubtract, Amount: 1, IdempotencyKey: "generation:" + id.String()})
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	out, err := f.svc.Create(ctx, f.userID, request(id.String()))
	require.NoError(t, err)
	require.Equal(t, generation.StatusSucceeded, out.Status)
	require.Equal(t, int64(2), f.balance(t))

	// The old attempt can no longer change the outcome.
	err = f.repo.Finish(ctx, id, "crashed", generation.StatusFailed, "", "late failure")
	require.ErrorIs(t, err, generation.ErrNotClaimed)

	got, err := f.svc.Get(ctx, f.userID, id)
	require.NoError(t, err)
	require.Equal(t, generation.StatusSucceeded, got.Status)
}

func TestRunningAttemptWithinLeaseIsNotTakenOver(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, f.repo.Create(ctx, &generation.Generation{
		ID:             id,
		UserID:         f.userID,
		Style:          "cartoon",
		SourceImageURL: "https://uploads.test/rex.jpg",
		Prompt:         "A cheerful cartoon illustration of Rex",
		Status:         generation.StatusRunning,
		Attempt:        sql.NullString{String: "live", Valid: true},
	}))

	_, err := f.svc.Create(ctx, f.userID, request(id.String()))
	require.ErrorIs(t, err, generation.ErrGenerationInProgress)
	require.Equal(t, 0, f.generator.calls)
	require.NoError(t, f.repo.Finish(ctx, id, "live", generation.StatusSucceeded, "http://cdn.test/x.png", ""))
}

func TestRetrySucceededReturnsSameResult(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	id := uuid.NewString()

	first, err := f.svc.Create(ctx, f.userID, request(id))
	require.NoError(t, err)

	second, err := f.svc.Create(ctx, f.userID, request(id))
	require.NoError(t, err)
	require.Equal(t, first.ResultURL, second.ResultURL)
	require.Equal(t, 1, f.generator.calls)
	require.Equal(t, int64(2), f.balance(t))
}

func TestPendingGenerationResumesWithoutSecondCharge(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	id := uuid.New()

	// A crash after the debit leaves a pending record and an applied debit.
	require.NoError(t, f.repo.Create(ctx, &generation.Generation{
		ID:             id,
		UserID:         f.userID,
		Style:          "cartoon",
		SourceImageURL: "https://uploads.test/rex.jpg",
		Prompt:         "A cheerful cartoon illustration of Rex",
	}))
	_, err := f.ledger.Apply(ctx, credit.Operation{AccountID: f.userID, Kind: credit.KindSubtract, Amount: 1, IdempotencyKey: "generation:" + id.String()})
	require.NoError(t, err)
	require.Equal(t, int64(2), f.balance(t))

	out, err := f.svc.Create(ctx, f.userID, request(id.String()))
	require.NoError(t, err)
	require.Equal(t, generation.StatusSucceeded, out.Status)
	require.Equal(t, "cartoon", out.Style)
	require.Equal(t, int64(2), f.balance(t))
}

func TestOtherUsersGenerationsAreHidden(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	id := uuid.NewString()

	_, err := f.svc.Create(ctx, f.userID, request(id))
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, uuid.New(), uuid.MustParse(id))
	require.ErrorIs(t, err, generation.ErrGenerationNotFound)

	_, err = f.svc.Create(ctx, uuid.New(), request(id))
	require.ErrorIs(t, err, generation.ErrGenerationNotFound)
}

func TestUnknownStyleAndList(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	req := request("")
	req.Style = "cubism"
	_, err := f.svc.Create(ctx, f.userID, req)
	require.ErrorIs(t, err, generation.ErrUnknownStyle)
	require.Equal(t, int64(3), f.balance(t))

	for i := 0; i < 2; i++ {
		_, err := f.svc.Create(ctx, f.userID, request(""))
		require.NoError(t, err)
	}
	items, err := f.svc.List(ctx, f.userID, credit.Pagination{})
	require.NoError(t, err)
	require.Len(t, items, 2)
}
