package storage_test

import (
	"concord-backend/internal/apperr"
	"concord-backend/internal/database"
	"concord-backend/internal/models"
	"concord-backend/internal/storage"
	"context"
	"errors"
	"testing"
)

func newStore(t *testing.T, transactional bool) storage.Store {
	t.Helper()
	db, err := database.OpenSqlite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return storage.NewSQL(db, database.Sqlite, transactional)
}

func TestSaveIsUpsert(t *testing.T) {
	ctx := context.Background()
	servers := storage.Servers(newStore(t, true))

	if err := servers.Save(ctx, &models.Server{ID: 7, Name: "first"}); err != nil {
		t.Fatal(err)
	}
	if err := servers.Save(ctx, &models.Server{ID: 7, Name: "second"}); err != nil {
		t.Fatal(err)
	}

	server, err := servers.FetchByID(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if server.Name != "second" {
		t.Errorf("got name %q, want second", server.Name)
	}

	all, err := servers.All(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Errorf("got %d servers, want 1", len(all))
	}
}

func TestFetchMissing(t *testing.T) {
	ctx := context.Background()
	servers := storage.Servers(newStore(t, true))

	_, err := servers.FetchByID(ctx, 42)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}

	_, found, err := servers.Find(ctx, 42)
	if err != nil || found {
		t.Errorf("Find returned found=%v err=%v", found, err)
	}
}

func TestSecondaryKey(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, true)
	messages := storage.Messages(store)

	for id := int64(1); id <= 5; id++ {
		channel := int64(100)
		if id%2 == 0 {
			channel = 200
		}
		if err := messages.Save(ctx, &models.Message{ID: id, ChannelID: channel, Text: "m"}); err != nil {
			t.Fatal(err)
		}
	}

	count, err := messages.CountMatching(ctx, storage.ChannelKey(100))
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("got count %d, want 3", count)
	}

	page, err := messages.ListByKey(ctx, storage.ChannelKey(100), 5, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || page[0].ID != 3 || page[1].ID != 1 {
		t.Errorf("got page %+v, want ids 3, 1", page)
	}

	deleted, err := messages.DeleteByKey(ctx, storage.ChannelKey(200))
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 2 {
		t.Errorf("deleted %d, want 2", deleted)
	}
}

func TestUsersByEmail(t *testing.T) {
	ctx := context.Background()
	users := storage.Users(newStore(t, true))

	if err := users.Save(ctx, &models.User{ID: 1, Email: "Ann@Example.com"}); err != nil {
		t.Fatal(err)
	}

	user, found, err := users.FindByKey(ctx, storage.EmailKey("ann@example.COM "))
	if err != nil {
		t.Fatal(err)
	}
	if !found || user.ID != 1 {
		t.Errorf("lookup by email failed: found=%v user=%+v", found, user)
	}
}

func TestWithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, true)
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(tx storage.Store) error {
		if err := storage.Servers(tx).Save(ctx, &models.Server{ID: 1}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want boom", err)
	}

	_, found, err := storage.Servers(store).Find(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Error("write survived a rolled back transaction")
	}
}

func TestWithTxDisabled(t *testing.T) {
	ctx := context.Background()
	store := newStore(t, false)

	_ = store.WithTx(ctx, func(tx storage.Store) error {
		if err := storage.Servers(tx).Save(ctx, &models.Server{ID: 1}); err != nil {
			return err
		}
		return errors.New("boom")
	})

	_, found, err := storage.Servers(store).Find(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Error("write should be committed on its own without transactions")
	}
}
