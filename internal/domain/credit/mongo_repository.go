package credit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	colAccounts   = "accounts"
	colOperations = "credit_operations"
)

// MongoStore keeps balances in the accounts collection. Every Apply runs in a
// multi-document transaction, so the server must be a replica set.
type MongoStore struct {
	client     *mongo.Client
	accounts   *mongo.Collection
	operations *mongo.Collection
}

func NewMongoStore(client *mongo.Client, db *mongo.Database) *MongoStore {
	return &MongoStore{
		client:     client,
		accounts:   db.Collection(colAccounts),
		operations: db.Collection(colOperations),
	}
}

type accountDoc struct {
	ID        string    `bson:"_id"`
	Credits   int64     `bson:"credits"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type operationDoc struct {
	ID              string    `bson:"_id"`
	AccountID       string    `bson:"account_id"`
	Kind            string    `bson:"kind"`
	Amount          int64     `bson:"amount"`
	IdempotencyKey  string    `bson:"idempotency_key,omitempty"`
	BalanceAfter    int64     `bson:"balance_after"`
	Applied         bool      `bson:"applied"`
	RejectionReason string    `bson:"rejection_reason,omitempty"`
	Source          string    `bson:"source,omitempty"`
	Description     string    `bson:"description,omitempty"`
	RequestedAt     time.Time `bson:"requested_at"`
	CreatedAt       time.Time `bson:"created_at"`
}

func toOperationDoc(rec OperationRecord) operationDoc {
	doc := operationDoc{
		ID:              rec.ID.String(),
		AccountID:       rec.AccountID.String(),
		Kind:            string(rec.Kind),
		Amount:          rec.Amount,
		BalanceAfter:    rec.BalanceAfter,
		Applied:         rec.Applied,
		RejectionReason: string(rec.RejectionReason),
		Source:          string(rec.Source),
		Description:     rec.Description,
		RequestedAt:     rec.RequestedAt,
		CreatedAt:       rec.CreatedAt,
	}
	if rec.IdempotencyKey != nil {
		doc.IdempotencyKey = *rec.IdempotencyKey
	}
	return doc
}

func (d operationDoc) record() (OperationRecord, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return OperationRecord{}, fmt.Errorf("operation id %q: %w", d.ID, err)
	}
	accountID, err := uuid.Parse(d.AccountID)
	if err != nil {
		return OperationRecord{}, fmt.Errorf("operation account id %q: %w", d.AccountID, err)
	}

	rec := OperationRecord{
		ID:              id,
		AccountID:       accountID,
		Kind:            Kind(d.Kind),
		Amount:          d.Amount,
		BalanceAfter:    d.BalanceAfter,
		Applied:         d.Applied,
		RejectionReason: Reason(d.RejectionReason),
		Source:          Source(d.Source),
		Description:     d.Description,
		RequestedAt:     d.RequestedAt,
		CreatedAt:       d.CreatedAt,
	}
	if d.IdempotencyKey != "" {
		key := d.IdempotencyKey
		rec.IdempotencyKey = &key
	}
	return rec, nil
}

// EnsureIndexes creates the idempotency index. Only applied operations claim a key.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.operations.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "account_id", Value: 1}, {Key: "idempotency_key", Value: 1}},
			Options: options.Index().
				SetName("account_idempotency_key").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{
					"applied":         true,
					"idempotency_key": bson.M{"$type": "string"},
				}),
		},
		{
			Keys:    bson.D{{Key: "account_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("account_history"),
		},
	})
	if err != nil {
		return fmt.Errorf("credit/mongo: create indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) Balance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var acc accountDoc
	err := s.accounts.FindOne(ctx2, bson.M{"_id": accountID.String()}).Decode(&acc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, ErrAccountNotFound
		}
		return 0, unavailable("get balance", err)
	}
	return acc.Credits, nil
}

func (s *MongoStore) OpenAccount(ctx context.Context, accountID uuid.UUID) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	now := time.Now().UTC()
	_, err := s.accounts.UpdateOne(ctx2,
		bson.M{"_id": accountID.String()},
		bson.M{"$setOnInsert": bson.M{"credits": int64(0), "created_at": now, "updated_at": now}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return unavailable("open account", err)
	}
	return nil
}

func (s *MongoStore) Apply(ctx context.Context, op Operation) (Result, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	sess, err := s.client.StartSession()
	if err != nil {
		return Result{}, unavailable("start session", err)
	}
	defer sess.EndSession(ctx2)

	out, err := sess.WithTransaction(ctx2, func(tctx context.Context) (any, error) {
		return s.applyTx(tctx, op)
	})
	switch {
	case err == nil:
		return out.(Result), nil
	case errors.Is(err, errKeyTaken):
		prior, found, lerr := s.findApplied(ctx2, op)
		if lerr != nil {
			return Result{}, lerr
		}
		if !found {
			return Result{}, unavailable("reload idempotency record", err)
		}
		return replay(prior, op)
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrIdempotencyConflict), errors.Is(err, ErrStoreUnavailable):
		return Result{}, err
	default:
		return Result{}, unavailable("transaction", err)
	}
}

func (s *MongoStore) applyTx(ctx context.Context, op Operation) (Result, error) {
	if op.IdempotencyKey != "" {
		prior, found, err := s.findApplied(ctx, op)
		if err != nil {
			return Result{}, err
		}
		if found {
			return replay(prior, op)
		}
	}

	balance, applied, err := s.mutate(ctx, op)
	if err != nil {
		return Result{}, err
	}

	reason := ReasonNone
	if !applied {
		reason = ReasonInsufficientBalance
	}

	rec := newRecord(op, balance, applied, reason)
	if _, err := s.operations.InsertOne(ctx, toOperationDoc(rec)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return Result{}, errKeyTaken
		}
		return Result{}, unavailable("insert operation", err)
	}

	return rec.result(), nil
}

func (s *MongoStore) mutate(ctx context.Context, op Operation) (int64, bool, error) {
	id := op.AccountID.String()
	now := time.Now().UTC()

	filter := bson.M{"_id": id}
	var update bson.M
	switch op.Kind {
	case KindAdd:
		update = bson.M{"$inc": bson.M{"credits": op.Amount}, "$set": bson.M{"updated_at": now}}
	case KindSubtract:
		filter["credits"] = bson.M{"$gte": op.Amount}
		update = bson.M{"$inc": bson.M{"credits": -op.Amount}, "$set": bson.M{"updated_at": now}}
	case KindSet:
		update = bson.M{"$set": bson.M{"credits": op.Amount, "updated_at": now}}
	default:
		return 0, false, ErrInvalidKind
	}

	var acc accountDoc
	err := s.accounts.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&acc)
	if err == nil {
		return acc.Credits, true, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return 0, false, unavailable("update balance", err)
	}

	err = s.accounts.FindOne(ctx, bson.M{"_id": id}).Decode(&acc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, false, ErrAccountNotFound
		}
		return 0, false, unavailable("read balance", err)
	}
	return acc.Credits, false, nil
}

func (s *MongoStore) Lookup(ctx context.Context, accountID uuid.UUID, key string) (OperationRecord, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return s.findApplied(ctx, Operation{AccountID: accountID, IdempotencyKey: key})
}

func (s *MongoStore) findApplied(ctx context.Context, op Operation) (OperationRecord, bool, error) {
	var doc operationDoc
	err := s.operations.FindOne(ctx, bson.M{
		"account_id":      op.AccountID.String(),
		"idempotency_key": op.IdempotencyKey,
		"applied":         true,
	}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return OperationRecord{}, false, nil
		}
		return OperationRecord{}, false, unavailable("lookup idempotency key", err)
	}

	rec, err := doc.record()
	if err != nil {
		return OperationRecord{}, false, unavailable("decode idempotency record", err)
	}
	return rec, true, nil
}

func (s *MongoStore) History(ctx context.Context, accountID uuid.UUID, page Pagination) ([]OperationRecord, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	page = page.Normalize()

	cur, err := s.operations.Find(ctx2,
		bson.M{"account_id": accountID.String()},
		options.Find().
			SetSort(bson.D{{Key: "created_at", Value: -1}}).
			SetSkip(int64(page.Offset)).
			SetLimit(int64(page.Limit)),
	)
	if err != nil {
		return nil, unavailable("list operations", err)
	}
	defer cur.Close(ctx2)

	var docs []operationDoc
	if err := cur.All(ctx2, &docs); err != nil {
		return nil, unavailable("decode operations", err)
	}

	records := make([]OperationRecord, 0, len(docs))
	for _, d := range docs {
		rec, err := d.record()
		if err != nil {
			return nil, unavailable("decode operation", err)
		}
		records = append(records, rec)
	}
	return records, nil
}
