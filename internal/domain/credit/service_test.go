package credit_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pawtrait/pawtrait-api/internal/domain/credit"
	"github.com/pawtrait/pawtrait-api/internal/pkg/database"
	"github.com/pawtrait/pawtrait-api/internal/pkg/database/dbtest"
)

// backend builds a ledger and a factory for fresh zero-balance accounts.
type backend struct {
	name  string
	setup func(t *testing.T) (credit.Service, func(t *testing.T) uuid.UUID)
}

func sqlBackend(open func(t testing.TB) *database.DB) func(t *testing.T) (credit.Service, func(t *testing.T) uuid.UUID) {
	return func(t *testing.T) (credit.Service, func(t *testing.T) uuid.UUID) {
		db := open(t)
		svc := credit.NewService(credit.NewSQLStore(db.DB))
		return svc, func(t *testing.T) uuid.UUID { return dbtest.CreateUser(t, db) }
	}
}

func backends() []backend {
	return []backend{
		{name: "sqlite", setup: sqlBackend(dbtest.NewSQLite)},
		{name: "postgres", setup: sqlBackend(dbtest.NewPostgres)},
		{name: "mongo", setup: mongoBackend},
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, svc credit.Service, newAccount func(t *testing.T) uuid.UUID)) {
	for _, b := range backends() {
		b := b
		t.Run(b.name, func(t *testing.T) {
			svc, newAccount := b.setup(t)
			fn(t, svc, newAccount)
		})
	}
}

func apply(t *testing.T, svc credit.Service, op credit.Operation) credit.Result {
	t.Helper()
	res, err := svc.Apply(context.Background(), op)
	require.NoError(t, err)
	return res
}

func balance(t *testing.T, svc credit.Service, id uuid.UUID) int64 {
	t.Helper()
	b, err := svc.GetBalance(context.Background(), id)
	require.NoError(t, err)
	return b
}

func TestExampleScenario(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc credit.Service, newAccount func(t *testing.T) uuid.UUID) {
		u1 := newAccount(t)
		require.Equal(t, int64(0), balance(t, svc, u1))

		// 1. signup grant
		res := apply(t, svc, credit.Operation{AccountID: u1, Kind: credit.KindAdd, Amount: 3, IdempotencyKey: "signup"})
		require.True(t, res.Applied)
		require.Equal(t, int64(3), res.NewBalance)

		// 2. generation debit
		debit := apply(t, svc, credit.Operation{AccountID: u1, Kind: credit.KindSubtract, Amount: 1, IdempotencyKey: "gen-42"})
		require.True(t, debit.Applied)
		require.Equal(t, int64(2), debit.NewBalance)

		// 3. refund after a failed generation
		res = apply(t, svc, credit.Operation{AccountID: u1, Kind: credit.KindAdd, Amount: 1, IdempotencyKey: "gen-42:refund"})
		require.True(t, res.Applied)
		require.Equal(t, int64(3), res.NewBalance)

		// 4. retried debit reports the balance recorded at its first application
		res = apply(t, svc, credit.Operation{AccountID: u1, Kind: credit.KindSubtract, Amount: 1, IdempotencyKey: "gen-42"})
		require.False(t, res.Applied)
		require.Equal(t, credit.ReasonAlreadyApplied, res.RejectionReason)
		require.Equal(t, int64(2), res.NewBalance)
		require.Equal(t, debit.OperationID, res.OperationID)
		require.NoError(t, res.Err())
		require.Equal(t, int64(3), balance(t, svc, u1))

		// 5. admin override
		res = apply(t, svc, credit.Operation{AccountID: u1, Kind: credit.KindSet, Amount: 0, Source: credit.SourceAdmin})
		require.True(t, res.Applied)
		require.Equal(t, int64(0), res.NewBalance)

		// 6. nothing left to spend
		res = apply(t, svc, credit.Operation{AccountID: u1, Kind: credit.KindSubtract, Amount: 1})
		require.False(t, res.Applied)
		require.Equal(t, credit.ReasonInsufficientBalance, res.RejectionReason)
		require.Equal(t, int64(0), res.NewBalance)
		require.ErrorIs(t, res.Err(), credit.ErrInsufficientBalance)
		require.Equal(t, int64(0), balance(t, svc, u1))
	})
}

// The race tests only contend inside the store on postgres and mongo. SQLite
// runs on one connection, so its goroutines queue before reaching the guard;
// run `make test-integration` with TEST_DATABASE_URL and TEST_MONGO_URI set.
func TestRaceSafetyOnLastCredit(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc credit.Service, newAccount func(t *testing.T) uuid.UUID) {
		id := newAccount(t)
		apply(t, svc, credit.Operation{AccountID: id, Kind: credit.KindSet, Amount: 1})

		const goroutines = 2
		results := make([]credit.Result, goroutines)
		errs := make([]error, goroutines)

		var wg sync.WaitGroup
		start := make(chan struct{})
		for i := 0; i < goroutines; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				results[i], errs[i] = svc.Apply(context.Background(), credit.Operation{
					AccountID: id, Kind: credit.KindSubtract, Amount: 1,
				})
			}(i)
		}
		close(start)
		wg.Wait()

		applied, rejected := 0, 0
		for i := range results {
			require.NoError(t, errs[i])
			if results[i].Applied {
				applied++
			} else {
				require.Equal(t, credit.ReasonInsufficientBalance, results[i].RejectionReason)
				rejected++
			}
		}
		require.Equal(t, 1, applied)
		require.Equal(t, 1, rejected)
		require.Equal(t, int64(0), balance(t, svc, id))
	})
}

func TestConcurrentSubtractsNeverOverdraw(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc credit.Service, newAccount func(t *testing.T) uuid.UUID) {
		id := newAccount(t)
		apply(t, svc, credit.Operation{AccountID: id, Kind: credit.KindAdd, Amount: 5})

		const goroutines = 10
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			success int
		)
		for i := 0; i < goroutines; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := svc.Apply(context.Background(), credit.Operation{AccountID: id, Kind: credit.KindSubtract, Amount: 1})
				if err != nil {
					t.Errorf("unexpected error: %v", err)
					return
				}
				if res.NewBalance < 0 {
					t.Errorf("negative balance reported: %d", res.NewBalance)
				}
				if res.Applied {
					mu.Lock()
					success++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		require.Equal(t, 5, success)
		require.Equal(t, int64(0), balance(t, svc, id))
	})
}

func TestConcurrentReplaysApplyOnce(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc credit.Service, newAccount func(t *testing.T) uuid.UUID) {
		id := newAccount(t)

		const goroutines = 8
		results := make([]credit.Result, goroutines)
		var wg sync.WaitGroup
		for i := 0; i < goroutines; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				res, err := svc.Apply(context.Background(), credit.Operation{
					AccountID: id, Kind: credit.KindAdd, Amount: 10, IdempotencyKey: "paypal:ORDER-1",
				})
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				results[i] = res
			}(i)
		}
		wg.Wait()

		applied := 0
		for _, res := range results {
			require.Equal(t, int64(10), res.NewBalance)
			if res.Applied {
				applied++
			} else {
				require.True(t, res.Replayed())
			}
		}
		require.Equal(t, 1, applied)
		require.Equal(t, int64(10), balance(t, svc, id))
	})
}

func TestIdempotentReplay(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc credit.Service, newAccount func(t *testing.T) uuid.UUID) {
		id := newAccount(t)
		op := credit.Operation{AccountID: id, Kind: credit.KindAdd, Amount: 10, IdempotencyKey: "k1"}

		first := apply(t, svc, op)
		second := apply(t, svc, op)

		require.True(t, first.Applied)
		require.False(t, second.Applied)
		require.Equal(t, credit.ReasonAlreadyApplied, second.RejectionReason)
		require.Equal(t, first.NewBalance, second.NewBalance)
		require.Equal(t, int64(10), balance(t, svc, id))

		// same key on another account is independent
		other := newAccount(t)
		res := apply(t, svc, credit.Operation{AccountID: other, Kind: credit.KindAdd, Amount: 10, IdempotencyKey: "k1"})
		require.True(t, res.Applied)
	})
}

func TestRejectedKeyCanBeRetried(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc credit.Service, newAccount func(t *testing.T) uuid.UUID) {
		id := newAccount(t)
		op := credit.Operation{AccountID: id, Kind: credit.KindSubtract, Amount: 2, IdempotencyKey: "gen-7"}

		res := apply(t, svc, op)
		require.False(t, res.Applied)
		require.Equal(t, credit.ReasonInsufficientBalance, res.RejectionReason)

		apply(t, svc, credit.Operation{AccountID: id, Kind: credit.KindAdd, Amount: 5})

		res = apply(t, svc, op)
		require.True(t, res.Applied)
		require.Equal(t, int64(3), res.NewBalance)
	})
}

func TestIdempotencyConflict(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc credit.Service, newAccount func(t *testing.T) uuid.UUID) {
		id := newAccount(t)
		apply(t, svc, credit.Operation{AccountID: id, Kind: credit.KindAdd, Amount: 10, IdempotencyKey: "k"})

		_, err := svc.Apply(context.Background(), credit.Operation{AccountID: id, Kind: credit.KindAdd, Amount: 11, IdempotencyKey: "k"})
		require.ErrorIs(t, err, credit.ErrIdempotencyConflict)

		_, err = svc.Apply(context.Background(), credit.Operation{AccountID: id, Kind: credit.KindSubtract, Amount: 10, IdempotencyKey: "k"})
		require.ErrorIs(t, err, credit.ErrIdempotencyConflict)

		require.Equal(t, int64(10), balance(t, svc, id))
	})
}

func TestAddSubtractInverse(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc credit.Service, newAccount func(t *testing.T) uuid.UUID) {
		id := newAccount(t)
		apply(t, svc, credit.Operation{AccountID: id, Kind: credit.KindSet, Amount: 17})

		for _, n := range []int64{1, 5, 17} {
			before := balance(t, svc, id)
			sub := apply(t, svc, credit.Operation{AccountID: id, Kind: credit.KindSubtract, Amount: n, IdempotencyKey: uuid.NewString()})
			require.True(t, sub.Applied)
			add := apply(t, svc, credit.Operation{AccountID: id, Kind: credit.KindAdd, Amount: n, IdempotencyKey: uuid.NewString()})
			require.True(t, add.Applied)
			require.Equal(t, before, add.NewBalance)
		}
	})
}

func TestSetOverridesHistory(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc credit.Service, newAccount func(t *testing.T) uuid.UUID) {
		id := newAccount(t)
		apply(t, svc, credit.Operation{AccountID: id, Kind: credit.KindAdd, Amount: 100})
		apply(t, svc, credit.Operation{AccountID: id, Kind: credit.KindSubtract, Amount: 30})

		res := apply(t, svc, credit.Operation{AccountID: id, Kind: credit.KindSet, Amount: 5})
		require.True(t, res.Applied)
		require.Equal(t, int64(5), res.NewBalance)
		require.Equal(t, int64(5), balance(t, svc, id))
	})
}

func TestNonNegativityUnderRandomSequence(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc credit.Service, newAccount func(t *testing.T) uuid.UUID) {
		id := newAccount(t)
		ops := []credit.Operation{
			{Kind: credit.KindSubtract, Amount: 1},
			{Kind: credit.KindAdd, Amount: 2},
			{Kind: credit.KindSubtract, Amount: 3},
			{Kind: credit.KindSubtract, Amount: 2},
			{Kind: credit.KindSubtract, Amount: 1},
			{Kind: credit.KindSet, Amount: 1},
			{Kind: credit.KindSubtract, Amount: 1},
			{Kind: credit.KindSubtract, Amount: 1},
		}

		var expected int64
		for _, op := range ops {
			op.AccountID = id
			res := apply(t, svc, op)
			switch op.Kind {
			case credit.KindAdd:
				expected += op.Amount
			case credit.KindSet:
				expected = op.Amount
			case credit.KindSubtract:
				if expected >= op.Amount {
					expected -= op.Amount
				}
			}
			require.Equal(t, expected, res.NewBalance)
			require.GreaterOrEqual(t, balance(t, svc, id), int64(0))
		}
		require.Equal(t, int64(0), balance(t, svc, id))
	})
}

func TestValidationAndMissingAccount(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc credit.Service, newAccount func(t *testing.T) uuid.UUID) {
		ctx := context.Background()
		id := newAccount(t)

		cases := []struct {
			op   credit.Operation
			want error
		}{
			{credit.Operation{AccountID: id, Kind: credit.KindAdd, Amount: 0}, credit.ErrInvalidAmount},
			{credit.Operation{AccountID: id, Kind: credit.KindSubtract, Amount: -1}, credit.ErrInvalidAmount},
			{credit.Operation{AccountID: id, Kind: credit.KindSet, Amount: -1}, credit.ErrInvalidAmount},
			{credit.Operation{AccountID: id, Kind: "multiply", Amount: 2}, credit.ErrInvalidKind},
			{credit.Operation{AccountID: uuid.New(), Kind: credit.KindAdd, Amount: 1}, credit.ErrAccountNotFound},
			{credit.Operation{AccountID: uuid.New(), Kind: credit.KindSubtract, Amount: 1}, credit.ErrAccountNotFound},
		}
		for _, tc := range cases {
			_, err := svc.Apply(ctx, tc.op)
			require.ErrorIs(t, err, tc.want, "op %+v", tc.op)
		}

		// set to zero is allowed
		res := apply(t, svc, credit.Operation{AccountID: id, Kind: credit.KindSet, Amount: 0})
		require.True(t, res.Applied)

		_, err := svc.GetBalance(ctx, uuid.New())
		require.ErrorIs(t, err, credit.ErrAccountNotFound)
	})
}

func TestHistoryNewestFirst(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc credit.Service, newAccount func(t *testing.T) uuid.UUID) {
		id := newAccount(t)
		apply(t, svc, credit.Operation{AccountID: id, Kind: credit.KindAdd, Amount: 3, IdempotencyKey: "signup", Source: credit.SourceSignup})
		time.Sleep(2 * time.Millisecond)
		apply(t, svc, credit.Operation{AccountID: id, Kind: credit.KindSubtract, Amount: 5, Source: credit.SourceGeneration})
		time.Sleep(2 * time.Millisecond)
		apply(t, svc, credit.Operation{AccountID: id, Kind: credit.KindSubtract, Amount: 1, Source: credit.SourceGeneration, Description: "portrait"})

		history, err := svc.History(context.Background(), id, credit.Pagination{Limit: 10})
		require.NoError(t, err)
		require.Len(t, history, 3)

		require.Equal(t, credit.KindSubtract, history[0].Kind)
		require.True(t, history[0].Applied)
		require.Equal(t, int64(2), history[0].BalanceAfter)
		require.Equal(t, "portrait", history[0].Description)

		require.False(t, history[1].Applied)
		require.Equal(t, credit.ReasonInsufficientBalance, history[1].RejectionReason)

		require.Equal(t, credit.SourceSignup, history[2].Source)
		require.NotNil(t, history[2].IdempotencyKey)
		require.Equal(t, "signup", *history[2].IdempotencyKey)

		page, err := svc.History(context.Background(), id, credit.Pagination{Limit: 1, Offset: 2})
		require.NoError(t, err)
		require.Len(t, page, 1)
		require.Equal(t, history[2].ID, page[0].ID)
	})
}

func TestLookupFindsOnlyAppliedOperations(t *testing.T) {
	forEachBackend(t, func(t *testing.T, svc credit.Service, newAccount func(t *testing.T) uuid.UUID) {
		ctx := context.Background()
		id := newAccount(t)
		granted := apply(t, svc, credit.Operation{AccountID: id, Kind: credit.KindAdd, Amount: 3, IdempotencyKey: "signup"})
		apply(t, svc, credit.Operation{AccountID: id, Kind: credit.KindSubtract, Amount: 9, IdempotencyKey: "too-much"})

		rec, found, err := svc.Lookup(ctx, id, "signup")
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, granted.OperationID, rec.ID)
		require.Equal(t, int64(3), rec.BalanceAfter)

		_, found, err = svc.Lookup(ctx, id, "too-much")
		require.NoError(t, err)
		require.False(t, found)

		_, found, err = svc.Lookup(ctx, uuid.New(), "signup")
		require.NoError(t, err)
		require.False(t, found)
	})
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]credit.Kind{"add": credit.KindAdd, " Subtract ": credit.KindSubtract, "SET": credit.KindSet} {
		got, err := credit.ParseKind(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := credit.ParseKind("grant")
	require.ErrorIs(t, err, credit.ErrInvalidKind)
}

func mongoURI(t *testing.T) string {
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set")
	}
	return uri
}
