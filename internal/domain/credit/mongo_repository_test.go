package credit_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pawtrait/pawtrait-api/internal/domain/credit"
	"github.com/pawtrait/pawtrait-api/internal/pkg/database"
)

func mongoBackend(t *testing.T) (credit.Service, func(t *testing.T) uuid.UUID) {
	uri := mongoURI(t)

	client, db, err := database.NewMongo(uri, "pawtrait_test_"+uuid.NewString()[:8])
	if err != nil {
		t.Skipf("mongo unavailable: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		database.CloseMongo(client)
	})

	store := credit.NewMongoStore(client, db)
	require.NoError(t, store.EnsureIndexes(context.Background()))

	svc := credit.NewService(store)
	return svc, func(t *testing.T) uuid.UUID {
		id := uuid.New()
		require.NoError(t, svc.OpenAccount(context.Background(), id))
		return id
	}
}

func TestMongoOpenAccountIsIdempotent(t *testing.T) {
	svc, newAccount := mongoBackend(t)
	id := newAccount(t)

	_, err := svc.Apply(context.Background(), credit.Operation{AccountID: id, Kind: credit.KindAdd, Amount: 4})
	require.NoError(t, err)

	require.NoError(t, svc.OpenAccount(context.Background(), id))
	b, err := svc.GetBalance(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, int64(4), b)
}
