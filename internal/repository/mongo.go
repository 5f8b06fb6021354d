package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/starksgalaxy/errands-gobackend/internal/apperr"
	"github.com/starksgalaxy/errands-gobackend/internal/models"
)

// Mongo implements Store on a mongo database. Atomic uses a session
// transaction, so the deployment must be a replica set.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
}

func NewMongo(client *mongo.Client, database string) *Mongo {
	return &Mongo{client: client, db: client.Database(database)}
}

// EnsureIndexes creates the indexes the capture saga and the history
// queries rely on. transaction_id is unique: it is the idempotency key
// for callback processing.
func (s *Mongo) EnsureIndexes(ctx context.Context) error {
	_, err := s.db.Collection("payments").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.M{"transaction_id": 1}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "poster_id", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create payment indexes: %w", err)
	}
	_, err = s.db.Collection("errands").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "poster_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create errand indexes: %w", err)
	}
	_, err = s.db.Collection("transactions").Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create transaction indexes: %w", err)
	}
	return nil
}

func (s *Mongo) Users() Users                 { return &mongoUsers{db: s.db} }
func (s *Mongo) Errands() Errands             { return &mongoErrands{db: s.db} }
func (s *Mongo) Payments() Payments           { return &mongoPayments{db: s.db} }
func (s *Mongo) Transactions() Transactions   { return &mongoTransactions{db: s.db} }
func (s *Mongo) Disputes() Disputes           { return &mongoDisputes{db: s.db} }
func (s *Mongo) Runners() Runners             { return &mongoRunners{db: s.db} }
func (s *Mongo) Notifications() Notifications { return &mongoNotifications{db: s.db} }

func (s *Mongo) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

// casFailure distinguishes a missing document from a status guard miss
// after an update matched nothing.
func casFailure(ctx context.Context, coll *mongo.Collection, id string) error {
	err := coll.FindOne(ctx, bson.M{"_id": id}).Err()
	if err == mongo.ErrNoDocuments {
		return apperr.ErrNotFound
	}
	if err != nil {
		return err
	}
	return apperr.ErrInvalidState
}

type mongoUsers struct{ db *mongo.Database }

func (r *mongoUsers) coll() *mongo.Collection { return r.db.Collection("users") }

func (r *mongoUsers) Create(ctx context.Context, u *models.User) (string, error) {
	if u.ID == "" {
		u.ID = primitive.NewObjectID().Hex()
	}
	u.CreatedAt = time.Now()
	if _, err := r.coll().InsertOne(ctx, u); err != nil {
		return "", err
	}
	return u.ID, nil
}

func (r *mongoUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := r.coll().FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("user %s: %w", id, apperr.ErrNotFound)
		}
		return nil, err
	}
	return &u, nil
}

func (r *mongoUsers) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := r.coll().FindOne(ctx, bson.M{"email": email}).Decode(&u); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("user %s: %w", email, apperr.ErrNotFound)
		}
		return nil, err
	}
	return &u, nil
}

func (r *mongoUsers) Debit(ctx context.Context, id string, amount float64) error {
	res, err := r.coll().UpdateOne(ctx,
		bson.M{"_id": id, "wallet_balance": bson.M{"$gte": amount}},
		bson.M{"$inc": bson.M{"wallet_balance": -amount}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		if err := r.coll().FindOne(ctx, bson.M{"_id": id}).Err(); err == mongo.ErrNoDocuments {
			return fmt.Errorf("user %s: %w", id, apperr.ErrNotFound)
		}
		return fmt.Errorf("insufficient wallet balance: %w", apperr.ErrInvalidArgument)
	}
	return nil
}

func (r *mongoUsers) Credit(ctx context.Context, id string, amount float64) error {
	res, err := r.coll().UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{"wallet_balance": amount}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("user %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

func (r *mongoUsers) IncTotalErrands(ctx context.Context, id string) error {
	res, err := r.coll().UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{"total_errands": 1}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("user %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}

type mongoErrands struct{ db *mongo.Database }

func (r *mongoErrands) coll() *mongo.Collection { return r.db.Collection("errands") }

func (r *mongoErrands) Create(ctx context.Context, e *models.Errand) (string, error) {
	if e.ID == "" {
		e.ID = primitive.NewObjectID().Hex()
	}
	if e.Bids == nil {
		e.Bids = []models.Bid{}
	}
	e.CreatedAt = time.Now()
	if _, err := r.coll().InsertOne(ctx, e); err != nil {
		return "", err
	}
	return e.ID, nil
}

func (r *mongoErrands) GetByID(ctx context.Context, id string) (*models.Errand, error) {
	var e models.Errand
	if err := r.coll().FindOne(ctx, bson.M{"_id": id}).Decode(&e); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("errand %s: %w", id, apperr.ErrNotFound)
		}
		return nil, err
	}
	return &e, nil
}

func (r *mongoErrands) ListByPoster(ctx context.Context, posterID string) ([]models.Errand, error) {
	cur, err := r.coll().Find(ctx, bson.M{"poster_id": posterID},
		options.Find().SetSort(bson.M{"created_at": -1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var errands []models.Errand
	if err := cur.All(ctx, &errands); err != nil {
		return nil, err
	}
	return errands, nil
}

func (r *mongoErrands) AppendBid(ctx context.Context, id string, bid models.Bid) error {
	res, err := r.coll().UpdateOne(ctx,
		bson.M{"_id": id, "status": models.StatusPending},
		bson.M{"$push": bson.M{"bids": bid}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return casFailure(ctx, r.coll(), id)
	}
	return nil
}

func (r *mongoErrands) ReplaceBids(ctx context.Context, id string, expectLen int, bids []models.Bid) error {
	res, err := r.coll().UpdateOne(ctx,
		bson.M{"_id": id, "status": models.StatusPending, "bids": bson.M{"$size": expectLen}},
		bson.M{"$set": bson.M{"bids": bids}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return casFailure(ctx, r.coll(), id)
	}
	return nil
}

func (r *mongoErrands) ReservePayment(ctx context.Context, id, paymentID string) error {
	// pending_payment_id is $unset on release, so nil matches a free slot.
	res, err := r.coll().UpdateOne(ctx,
		bson.M{"_id": id, "status": models.StatusPending, "pending_payment_id": nil},
		bson.M{"$set": bson.M{"pending_payment_id": paymentID}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return casFailure(ctx, r.coll(), id)
	}
	return nil
}

func (r *mongoErrands) ClearPendingPayment(ctx context.Context, id string) error {
	_, err := r.coll().UpdateOne(ctx, bson.M{"_id": id},
		bson.M{"$unset": bson.M{"pending_payment_id": ""}})
	return err
}

func (r *mongoErrands) Activate(ctx context.Context, id string, a Assignment) error {
	res, err := r.coll().UpdateOne(ctx,
		bson.M{"_id": id, "status": models.StatusPending},
		bson.M{"$set": bson.M{
			"status":               models.StatusActive,
			"assigned_runner_id":   a.RunnerID,
			"assigned_runner_name": a.RunnerName,
			"accepted_bid_amount":  a.Amount,
			"service_fee":          a.ServiceFee,
			"runner_amount":        a.RunnerAmount,
			"pending_payment_id":   a.PaymentID,
			"accepted_at":          a.At,
		}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return casFailure(ctx, r.coll(), id)
	}
	return nil
}

func (r *mongoErrands) Start(ctx context.Context, id string, at time.Time) error {
	return r.transition(ctx, id, models.StatusActive, models.StatusInProgress,
		bson.M{"started_at": at})
}

func (r *mongoErrands) RequestCompletion(ctx context.Context, id, notes string, at time.Time) error {
	set := bson.M{"completion_requested_at": at}
	if notes != "" {
		set["completion_notes"] = notes
	}
	return r.transition(ctx, id, models.StatusInProgress, models.StatusPendingApproval, set)
}

func (r *mongoErrands) Complete(ctx context.Context, id string, at time.Time) error {
	return r.transition(ctx, id, models.StatusPendingApproval, models.StatusCompleted,
		bson.M{"completed_at": at})
}

func (r *mongoErrands) MarkDisputed(ctx context.Context, id string, at time.Time) error {
	return r.transition(ctx, id, models.StatusPendingApproval, models.StatusDisputed,
		bson.M{"disputed_at": at})
}

func (r *mongoErrands) transition(ctx context.Context, id, from, to string, extra bson.M) error {
	set := bson.M{"status": to}
	for k, v := range extra {
		set[k] = v
	}
	res, err := r.coll().UpdateOne(ctx, bson.M{"_id": id, "status": from}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return casFailure(ctx, r.coll(), id)
	}
	return nil
}

type mongoPayments struct{ db *mongo.Database }

func (r *mongoPayments) coll() *mongo.Collection { return r.db.Collection("payments") }

func (r *mongoPayments) Create(ctx context.Context, p *models.Payment) (string, error) {
	if p.ID == "" {
		p.ID = primitive.NewObjectID().Hex()
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	if _, err := r.coll().InsertOne(ctx, p); err != nil {
		return "", err
	}
	return p.ID, nil
}

func (r *mongoPayments) GetByID(ctx context.Context, id string) (*models.Payment, error) {
	var p models.Payment
	if err := r.coll().FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("payment %s: %w", id, apperr.ErrNotFound)
		}
		return nil, err
	}
	return &p, nil
}

func (r *mongoPayments) GetByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error) {
	var p models.Payment
	if err := r.coll().FindOne(ctx, bson.M{"transaction_id": transactionID}).Decode(&p); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("transaction %s: %w", transactionID, apperr.ErrNotFound)
		}
		return nil, err
	}
	return &p, nil
}

func (r *mongoPayments) ResolveIfPending(ctx context.Context, transactionID, to string) (bool, error) {
	res, err := r.coll().UpdateOne(ctx,
		bson.M{"transaction_id": transactionID, "status": models.PaymentPending},
		bson.M{"$set": bson.M{"status": to, "updated_at": time.Now()}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

func (r *mongoPayments) ListByPoster(ctx context.Context, posterID string, limit int64) ([]models.Payment, error) {
	cur, err := r.coll().Find(ctx, bson.M{"poster_id": posterID},
		options.Find().SetSort(bson.M{"created_at": -1}).SetLimit(limit))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var payments []models.Payment
	if err := cur.All(ctx, &payments); err != nil {
		return nil, err
	}
	return payments, nil
}

type mongoTransactions struct{ db *mongo.Database }

func (r *mongoTransactions) Append(ctx context.Context, t *models.Transaction) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = time.Now()
	_, err := r.db.Collection("transactions").InsertOne(ctx, t)
	return err
}

func (r *mongoTransactions) ListByUser(ctx context.Context, userID string, limit int64) ([]models.Transaction, error) {
	cur, err := r.db.Collection("transactions").Find(ctx, bson.M{"user_id": userID},
		options.Find().SetSort(bson.M{"created_at": -1}).SetLimit(limit))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var txns []models.Transaction
	if err := cur.All(ctx, &txns); err != nil {
		return nil, err
	}
	return txns, nil
}

type mongoDisputes struct{ db *mongo.Database }

func (r *mongoDisputes) Create(ctx context.Context, d *models.Dispute) (string, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.CreatedAt = time.Now()
	if _, err := r.db.Collection("disputes").InsertOne(ctx, d); err != nil {
		return "", err
	}
	return d.ID, nil
}

type mongoRunners struct{ db *mongo.Database }

func (r *mongoRunners) coll() *mongo.Collection { return r.db.Collection("runners") }

func (r *mongoRunners) Get(ctx context.Context, runnerID string) (*models.RunnerStats, error) {
	var st models.RunnerStats
	if err := r.coll().FindOne(ctx, bson.M{"_id": runnerID}).Decode(&st); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("runner %s: %w", runnerID, apperr.ErrNotFound)
		}
		return nil, err
	}
	return &st, nil
}

func (r *mongoRunners) IncAssigned(ctx context.Context, runnerID string) error {
	_, err := r.coll().UpdateOne(ctx, bson.M{"_id": runnerID},
		bson.M{"$inc": bson.M{"total_jobs": 1, "pending_jobs": 1}},
		options.Update().SetUpsert(true))
	return err
}

func (r *mongoRunners) IncReleased(ctx context.Context, runnerID string, amount float64) error {
	_, err := r.coll().UpdateOne(ctx, bson.M{"_id": runnerID},
		bson.M{"$inc": bson.M{"completed_jobs": 1, "pending_jobs": -1, "earnings": amount}},
		options.Update().SetUpsert(true))
	return err
}

type mongoNotifications struct{ db *mongo.Database }

func (r *mongoNotifications) Create(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.CreatedAt = time.Now()
	_, err := r.db.Collection("notifications").InsertOne(ctx, n)
	return err
}
