// Package mongo stores expenses, settings and API tokens in MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"spendwise/internal/core"
	"spendwise/internal/store"
)

const (
	DefaultDatabase = "spendwise"

	ExpensesCollection = "expenses"
	SettingsCollection = "settings"
	TokensCollection   = "api_tokens"
)

// ---- Abstractions for Testability ----

// DataStore is the subset of *mongo.Collection the store uses.
type DataStore interface {
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	DeleteOne(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
}

// CollectionProvider hands out collections by name.
type CollectionProvider interface {
	Collection(name string) DataStore
}

// MongoProvider adapts *mongo.Client to CollectionProvider.
type MongoProvider struct {
	client   *mongo.Client
	database string
}

func NewMongoProvider(client *mongo.Client, database string) *MongoProvider {
	if database == "" {
		database = DefaultDatabase
	}
	return &MongoProvider{client: client, database: database}
}

// Collection returns the named collection. *mongo.Collection satisfies
// DataStore directly.
func (p *MongoProvider) Collection(name string) DataStore {
	return p.client.Database(p.database).Collection(name)
}

// Connect establishes a connection to MongoDB and verifies it with a ping.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	slog.DebugContext(ctx, "Attempting to connect to MongoDB")

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	slog.InfoContext(ctx, "Successfully established connection to MongoDB")
	return client, nil
}

type expenseDoc struct {
	ID          string    `bson:"_id"`
	Owner       string    `bson:"owner"`
	Description string    `bson:"description"`
	AmountCents int64     `bson:"amount_cents"`
	Category    string    `bson:"category"`
	Date        string    `bson:"date"`
	MonthKey    string    `bson:"month_key"`
	CreatedAt   time.Time `bson:"created_at"`
}

type settingsDoc struct {
	Owner          string    `bson:"_id"`
	Currency       string    `bson:"currency"`
	AutoCategorize bool      `bson:"auto_categorize"`
	BudgetAlerts   bool      `bson:"budget_alerts"`
	UpdatedAt      time.Time `bson:"updated_at"`
}

type tokenDoc struct {
	ID         string     `bson:"_id"`
	Owner      string     `bson:"owner"`
	Label      string     `bson:"label"`
	SecretHash []byte     `bson:"secret_hash"`
	CreatedAt  time.Time  `bson:"created_at"`
	LastUsedAt *time.Time `bson:"last_used_at,omitempty"`
}

// Store implements store.Store on top of a CollectionProvider.
type Store struct {
	provider CollectionProvider
	client   *mongo.Client
	now      func() time.Time
}

var _ store.Store = (*Store)(nil)

func NewStore(provider CollectionProvider) *Store {
	return &Store{provider: provider, now: time.Now}
}

// Open connects to uri and returns a Store bound to database.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	client, err := Connect(ctx, uri)
	if err != nil {
		return nil, err
	}
	s := NewStore(NewMongoProvider(client, database))
	s.client = client
	return s, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Ping(ctx, nil)
}

func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	e.ID = uuid.NewString()
	// Mongo keeps millisecond precision; truncate so the returned value
	// matches what a later read gives back.
	e.CreatedAt = s.now().UTC().Truncate(time.Millisecond)

	if _, err := s.provider.Collection(ExpensesCollection).InsertOne(ctx, toExpenseDoc(e)); err != nil {
		return core.Expense{}, fmt.Errorf("insert expense: %w", err)
	}
	return e, nil
}

func (s *Store) ListExpenses(ctx context.Context, owner string, opts store.ListOptions) ([]core.Expense, error) {
	filter := bson.M{"owner": owner}
	if opts.MonthKey != "" {
		filter["month_key"] = opts.MonthKey
	}
	findOpts := options.Find().SetSort(bson.D{{Key: "date", Value: -1}, {Key: "created_at", Value: -1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}

	cur, err := s.provider.Collection(ExpensesCollection).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("find expenses: %w", err)
	}
	defer cur.Close(ctx)

	var docs []expenseDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode expenses: %w", err)
	}
	out := make([]core.Expense, 0, len(docs))
	for _, d := range docs {
		e, err := d.toExpense()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) GetExpense(ctx context.Context, owner, id string) (core.Expense, error) {
	var d expenseDoc
	err := s.provider.Collection(ExpensesCollection).
		FindOne(ctx, bson.M{"_id": id, "owner": owner}).
		Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return core.Expense{}, store.ErrNotFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("find expense: %w", err)
	}
	return d.toExpense()
}

func (s *Store) DeleteExpense(ctx context.Context, owner, id string) (core.Expense, error) {
	e, err := s.GetExpense(ctx, owner, id)
	if err != nil {
		return core.Expense{}, err
	}
	res, err := s.provider.Collection(ExpensesCollection).DeleteOne(ctx, bson.M{"_id": id, "owner": owner})
	if err != nil {
		return core.Expense{}, fmt.Errorf("delete expense: %w", err)
	}
	if res.DeletedCount == 0 {
		return core.Expense{}, store.ErrNotFound
	}
	return e, nil
}

func (s *Store) GetSettings(ctx context.Context, owner string) (core.Settings, error) {
	var d settingsDoc
	err := s.provider.Collection(SettingsCollection).FindOne(ctx, bson.M{"_id": owner}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return core.Settings{}, store.ErrNotFound
	}
	if err != nil {
		return core.Settings{}, fmt.Errorf("find settings: %w", err)
	}
	return core.Settings{
		Owner:          d.Owner,
		Currency:       d.Currency,
		AutoCategorize: d.AutoCategorize,
		BudgetAlerts:   d.BudgetAlerts,
		UpdatedAt:      d.UpdatedAt,
	}, nil
}

func (s *Store) SaveSettings(ctx context.Context, st core.Settings) (core.Settings, error) {
	if err := st.Validate(); err != nil {
		return core.Settings{}, err
	}
	st.UpdatedAt = s.now().UTC().Truncate(time.Millisecond)
	update := bson.M{"$set": bson.M{
		"currency":        st.Currency,
		"auto_categorize": st.AutoCategorize,
		"budget_alerts":   st.BudgetAlerts,
		"updated_at":      st.UpdatedAt,
	}}
	_, err := s.provider.Collection(SettingsCollection).
		UpdateOne(ctx, bson.M{"_id": st.Owner}, update, options.Update().SetUpsert(true))
	if err != nil {
		return core.Settings{}, fmt.Errorf("upsert settings: %w", err)
	}
	return st, nil
}

func (s *Store) CreateToken(ctx context.Context, t store.APIToken) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now().UTC()
	}
	doc := tokenDoc{ID: t.ID, Owner: t.Owner, Label: t.Label, SecretHash: t.SecretHash, CreatedAt: t.CreatedAt}
	if _, err := s.provider.Collection(TokensCollection).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

func (s *Store) GetToken(ctx context.Context, id string) (store.APIToken, error) {
	var d tokenDoc
	err := s.provider.Collection(TokensCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.APIToken{}, store.ErrNotFound
	}
	if err != nil {
		return store.APIToken{}, fmt.Errorf("find token: %w", err)
	}
	return store.APIToken{
		ID:         d.ID,
		Owner:      d.Owner,
		Label:      d.Label,
		SecretHash: d.SecretHash,
		CreatedAt:  d.CreatedAt,
		LastUsedAt: d.LastUsedAt,
	}, nil
}

func (s *Store) TouchToken(ctx context.Context, id string, at time.Time) error {
	res, err := s.provider.Collection(TokensCollection).
		UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"last_used_at": at.UTC()}})
	if err != nil {
		return fmt.Errorf("touch token: %w", err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) RevokeToken(ctx context.Context, id string) error {
	res, err := s.provider.Collection(TokensCollection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func toExpenseDoc(e core.Expense) expenseDoc {
	return expenseDoc{
		ID:          e.ID,
		Owner:       e.Owner,
		Description: e.Description,
		AmountCents: e.Amount.Cents,
		Category:    e.Category,
		Date:        e.Date.String(),
		MonthKey:    e.MonthKey,
		CreatedAt:   e.CreatedAt,
	}
}

func (d expenseDoc) toExpense() (core.Expense, error) {
	date, err := core.ParseDate(d.Date)
	if err != nil {
		return core.Expense{}, fmt.Errorf("expense %s: %w", d.ID, err)
	}
	return core.Expense{
		ID:          d.ID,
		Owner:       d.Owner,
		Description: d.Description,
		Amount:      core.Money{Cents: d.AmountCents},
		Category:    d.Category,
		Date:        date,
		MonthKey:    d.MonthKey,
		CreatedAt:   d.CreatedAt.UTC(),
	}, nil
}
