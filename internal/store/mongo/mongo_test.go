package mongo_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"spendwise/internal/core"
	"spendwise/internal/store"
	mstore "spendwise/internal/store/mongo"
)

// Mock for DataStore interface.
type mockDataStore struct {
	insertOneFunc func(ctx context.Context, document interface{}) (*mongo.InsertOneResult, error)
	findFunc      func(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	findOneFunc   func(ctx context.Context, filter interface{}) *mongo.SingleResult
	updateOneFunc func(ctx context.Context, filter, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	deleteOneFunc func(ctx context.Context, filter interface{}) (*mongo.DeleteResult, error)
}

func (m *mockDataStore) InsertOne(ctx context.Context, document interface{}, _ ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	if m.insertOneFunc != nil {
		return m.insertOneFunc(ctx, document)
	}
	return &mongo.InsertOneResult{}, nil
}

func (m *mockDataStore) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error) {
	if m.findFunc != nil {
		return m.findFunc(ctx, filter, opts...)
	}
	return mongo.NewCursorFromDocuments(nil, nil, nil)
}

func (m *mockDataStore) FindOne(ctx context.Context, filter interface{}, _ ...*options.FindOneOptions) *mongo.SingleResult {
	if m.findOneFunc != nil {
		return m.findOneFunc(ctx, filter)
	}
	return mongo.NewSingleResultFromDocument(bson.D{}, mongo.ErrNoDocuments, nil)
}

func (m *mockDataStore) UpdateOne(ctx context.Context, filter, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	if m.updateOneFunc != nil {
		return m.updateOneFunc(ctx, filter, update, opts...)
	}
	return &mongo.UpdateResult{MatchedCount: 1}, nil
}

func (m *mockDataStore) DeleteOne(ctx context.Context, filter interface{}, _ ...*options.DeleteOptions) (*mongo.DeleteResult, error) {
	if m.deleteOneFunc != nil {
		return m.deleteOneFunc(ctx, filter)
	}
	return &mongo.DeleteResult{DeletedCount: 1}, nil
}

// Mock for CollectionProvider interface.
type mockCollectionProvider struct {
	collectionFunc func(name string) mstore.DataStore
}

func (m *mockCollectionProvider) Collection(name string) mstore.DataStore {
	if m.collectionFunc != nil {
		return m.collectionFunc(name)
	}
	return &mockDataStore{}
}

func single(ds mstore.DataStore) *mockCollectionProvider {
	return &mockCollectionProvider{collectionFunc: func(string) mstore.DataStore { return ds }}
}

func TestCreateExpense_InsertsDocument(t *testing.T) {
	var inserted bson.M
	ds := &mockDataStore{
		insertOneFunc: func(_ context.Context, document interface{}) (*mongo.InsertOneResult, error) {
			raw, err := bson.Marshal(document)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if err := bson.Unmarshal(raw, &inserted); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			return &mongo.InsertOneResult{InsertedID: inserted["_id"]}, nil
		},
	}
	var gotCollection string
	provider := &mockCollectionProvider{collectionFunc: func(name string) mstore.DataStore {
		gotCollection = name
		return ds
	}}

	e, err := mstore.NewStore(provider).CreateExpense(context.Background(),
		core.NewExpense("alice", "Coffee", core.Money{Cents: 450}, "Food & Dining", core.NewDate(2025, 6, 2)))
	if err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}
	if gotCollection != mstore.ExpensesCollection {
		t.Errorf("expected collection %s, got %s", mstore.ExpensesCollection, gotCollection)
	}
	if inserted["_id"] != e.ID || inserted["owner"] != "alice" || inserted["date"] != "2025-06-02" || inserted["month_key"] != "2025-06" {
		t.Errorf("unexpected document: %v", inserted)
	}
	if inserted["amount_cents"] != int64(450) {
		t.Errorf("expected amount_cents 450, got %v", inserted["amount_cents"])
	}
}

func TestCreateExpense_ValidatesBeforeInsert(t *testing.T) {
	ds := &mockDataStore{
		insertOneFunc: func(context.Context, interface{}) (*mongo.InsertOneResult, error) {
			t.Fatal("InsertOne should not be called")
			return nil, nil
		},
	}
	_, err := mstore.NewStore(single(ds)).CreateExpense(context.Background(),
		core.NewExpense("", "Coffee", core.Money{Cents: 450}, "Other", core.NewDate(2025, 6, 2)))
	if !errors.Is(err, core.ErrEmptyOwner) {
		t.Fatalf("expected ErrEmptyOwner, got %v", err)
	}
}

func TestListExpenses_FilterSortAndDecode(t *testing.T) {
	created := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	ds := &mockDataStore{
		findFunc: func(_ context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error) {
			f := filter.(bson.M)
			if f["owner"] != "alice" || f["month_key"] != "2025-06" {
				t.Errorf("unexpected filter: %v", f)
			}
			if len(opts) != 1 || opts[0].Limit == nil || *opts[0].Limit != 5 {
				t.Errorf("expected limit 5 in find options")
			}
			sort, ok := opts[0].Sort.(bson.D)
			if !ok || len(sort) != 2 || sort[0].Key != "date" || sort[0].Value != -1 {
				t.Errorf("unexpected sort: %v", opts[0].Sort)
			}
			return mongo.NewCursorFromDocuments([]interface{}{
				bson.M{"_id": "e2", "owner": "alice", "description": "Dinner", "amount_cents": int64(3000),
					"category": "Food & Dining", "date": "2025-06-20", "month_key": "2025-06", "created_at": created},
				bson.M{"_id": "e1", "owner": "alice", "description": "Bus", "amount_cents": int64(250),
					"category": "Transportation", "date": "2025-06-01", "month_key": "2025-06", "created_at": created},
			}, nil, nil)
		},
	}

	list, err := mstore.NewStore(single(ds)).ListExpenses(context.Background(), "alice",
		store.ListOptions{MonthKey: "2025-06", Limit: 5})
	if err != nil {
		t.Fatalf("ListExpenses failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != "e2" || list[1].Amount.Cents != 250 {
		t.Fatalf("unexpected list: %+v", list)
	}
	if list[0].Date.String() != "2025-06-20" || !list[0].CreatedAt.Equal(created) {
		t.Errorf("unexpected decoded expense: %+v", list[0])
	}
}

func TestListExpenses_EmptyIsNonNil(t *testing.T) {
	list, err := mstore.NewStore(single(&mockDataStore{})).ListExpenses(context.Background(), "alice", store.ListOptions{})
	if err != nil {
		t.Fatalf("ListExpenses failed: %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", list)
	}
}

func TestListExpenses_FindError(t *testing.T) {
	ds := &mockDataStore{
		findFunc: func(context.Context, interface{}, ...*options.FindOptions) (*mongo.Cursor, error) {
			return nil, errors.New("connection reset")
		},
	}
	_, err := mstore.NewStore(single(ds)).ListExpenses(context.Background(), "alice", store.ListOptions{})
	if err == nil || !strings.Contains(err.Error(), "connection reset") {
		t.Fatalf("expected wrapped find error, got %v", err)
	}
}

func TestDeleteExpense_NotFoundForOtherOwner(t *testing.T) {
	ds := &mockDataStore{
		deleteOneFunc: func(context.Context, interface{}) (*mongo.DeleteResult, error) {
			t.Fatal("DeleteOne should not be called when the row is not visible")
			return nil, nil
		},
	}
	_, err := mstore.NewStore(single(ds)).DeleteExpense(context.Background(), "mallory", "e1")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteExpense_ReturnsRemovedRow(t *testing.T) {
	var deleteFilter bson.M
	ds := &mockDataStore{
		findOneFunc: func(_ context.Context, filter interface{}) *mongo.SingleResult {
			return mongo.NewSingleResultFromDocument(bson.M{
				"_id": "e1", "owner": "alice", "description": "Bus", "amount_cents": int64(250),
				"category": "Transportation", "date": "2025-06-01", "month_key": "2025-06", "created_at": time.Now(),
			}, nil, nil)
		},
		deleteOneFunc: func(_ context.Context, filter interface{}) (*mongo.DeleteResult, error) {
			deleteFilter = filter.(bson.M)
			return &mongo.DeleteResult{DeletedCount: 1}, nil
		},
	}
	e, err := mstore.NewStore(single(ds)).DeleteExpense(context.Background(), "alice", "e1")
	if err != nil {
		t.Fatalf("DeleteExpense failed: %v", err)
	}
	if e.ID != "e1" || e.MonthKey != "2025-06" {
		t.Errorf("unexpected removed row: %+v", e)
	}
	if deleteFilter["_id"] != "e1" || deleteFilter["owner"] != "alice" {
		t.Errorf("delete filter must be owner scoped, got %v", deleteFilter)
	}
}

func TestSaveSettings_Upserts(t *testing.T) {
	ds := &mockDataStore{
		updateOneFunc: func(_ context.Context, filter, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
			if filter.(bson.M)["_id"] != "alice" {
				t.Errorf("unexpected filter %v", filter)
			}
			if len(opts) != 1 || opts[0].Upsert == nil || !*opts[0].Upsert {
				t.Errorf("expected upsert option")
			}
			set := update.(bson.M)["$set"].(bson.M)
			if set["currency"] != "EUR" {
				t.Errorf("unexpected update %v", update)
			}
			return &mongo.UpdateResult{UpsertedCount: 1}, nil
		},
	}
	st := core.DefaultSettings("alice")
	st.Currency = "EUR"
	saved, err := mstore.NewStore(single(ds)).SaveSettings(context.Background(), st)
	if err != nil {
		t.Fatalf("SaveSettings failed: %v", err)
	}
	if saved.UpdatedAt.IsZero() {
		t.Error("expected UpdatedAt to be set")
	}
}

func TestGetSettings_NotFound(t *testing.T) {
	_, err := mstore.NewStore(single(&mockDataStore{})).GetSettings(context.Background(), "alice")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTokens(t *testing.T) {
	ds := &mockDataStore{
		findOneFunc: func(context.Context, interface{}) *mongo.SingleResult {
			return mongo.NewSingleResultFromDocument(bson.M{
				"_id": "t1", "owner": "alice", "label": "cli", "secret_hash": []byte("hash"), "created_at": time.Now(),
			}, nil, nil)
		},
		updateOneFunc: func(context.Context, interface{}, interface{}, ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
			return &mongo.UpdateResult{MatchedCount: 0}, nil
		},
	}
	s := mstore.NewStore(single(ds))

	tok, err := s.GetToken(context.Background(), "t1")
	if err != nil {
		t.Fatalf("GetToken failed: %v", err)
	}
	if tok.Owner != "alice" || string(tok.SecretHash) != "hash" || tok.LastUsedAt != nil {
		t.Errorf("unexpected token %+v", tok)
	}
	if err := s.TouchToken(context.Background(), "t1", time.Now()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound when nothing matched, got %v", err)
	}
}

func TestPingWithoutClient(t *testing.T) {
	s := mstore.NewStore(&mockCollectionProvider{})
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
