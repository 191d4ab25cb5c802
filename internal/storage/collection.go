package storage

import (
	"concord-backend/internal/apperr"
	"concord-backend/internal/models"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const (
	ServersCollection     = "servers"
	MembershipsCollection = "memberships"
	HierarchiesCollection = "hierarchies"
	UsersCollection       = "users"
	MessagesCollection    = "messages"
)

// Collection gives typed access to one collection of a Store.
type Collection[T any] struct {
	store Store
	name  string
	id    func(*T) int64
	key   func(*T) string
}

func NewCollection[T any](store Store, name string, id func(*T) int64, key func(*T) string) Collection[T] {
	if key == nil {
		key = func(*T) string { return "" }
	}
	return Collection[T]{store: store, name: name, id: id, key: key}
}

// With returns the same collection bound to another store, typically the
// transactional view handed out by WithTx.
func (c Collection[T]) With(store Store) Collection[T] {
	c.store = store
	return c
}

// FetchByID returns apperr.ErrNotFound when the document is absent.
func (c Collection[T]) FetchByID(ctx context.Context, id int64) (*T, error) {
	doc, found, err := c.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperr.NotFound("%s %d", c.name, id)
	}
	return doc, nil
}

func (c Collection[T]) Find(ctx context.Context, id int64) (*T, bool, error) {
	var doc T
	found, err := c.store.Fetch(ctx, c.name, id, &doc)
	if err != nil || !found {
		return nil, found, err
	}
	return &doc, true, nil
}

func (c Collection[T]) Save(ctx context.Context, doc *T) error {
	return c.store.Save(ctx, c.name, c.id(doc), c.key(doc), doc)
}

func (c Collection[T]) DeleteByID(ctx context.Context, id int64) error {
	return c.store.Delete(ctx, c.name, id)
}

func (c Collection[T]) DeleteByKey(ctx context.Context, key string) (int64, error) {
	return c.store.DeleteByKey(ctx, c.name, key)
}

func (c Collection[T]) CountMatching(ctx context.Context, key string) (int, error) {
	return c.store.Count(ctx, c.name, key)
}

// FindByKey returns the newest document with the secondary key.
func (c Collection[T]) FindByKey(ctx context.Context, key string) (*T, bool, error) {
	docs, err := c.ListByKey(ctx, key, 0, 1)
	if err != nil || len(docs) == 0 {
		return nil, false, err
	}
	return &docs[0], true, nil
}

func (c Collection[T]) ListByKey(ctx context.Context, key string, before int64, limit int) ([]T, error) {
	bodies, err := c.store.List(ctx, c.name, key, before, limit)
	if err != nil {
		return nil, err
	}
	return decodeAll[T](c.name, bodies)
}

func (c Collection[T]) All(ctx context.Context) ([]T, error) {
	bodies, err := c.store.All(ctx, c.name)
	if err != nil {
		return nil, err
	}
	return decodeAll[T](c.name, bodies)
}

func decodeAll[T any](name string, bodies [][]byte) ([]T, error) {
	docs := make([]T, 0, len(bodies))
	for _, body := range bodies {
		var doc T
		if err := json.Unmarshal(body, &doc); err != nil {
			return nil, fmt.Errorf("failed to decode %s document: %w", name, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func Servers(s Store) Collection[models.Server] {
	return NewCollection(s, ServersCollection, func(v *models.Server) int64 { return v.ID }, nil)
}

// Memberships are keyed by server id.
func Memberships(s Store) Collection[models.Membership] {
	return NewCollection(s, MembershipsCollection, func(v *models.Membership) int64 { return v.ServerID }, nil)
}

// Hierarchies are keyed by server id.
func Hierarchies(s Store) Collection[models.Hierarchy] {
	return NewCollection(s, HierarchiesCollection, func(v *models.Hierarchy) int64 { return v.ServerID }, nil)
}

// Users carry their email as secondary key.
func Users(s Store) Collection[models.User] {
	return NewCollection(s, UsersCollection,
		func(v *models.User) int64 { return v.ID },
		func(v *models.User) string { return EmailKey(v.Email) },
	)
}

// Messages carry their channel id as secondary key.
func Messages(s Store) Collection[models.Message] {
	return NewCollection(s, MessagesCollection,
		func(v *models.Message) int64 { return v.ID },
		func(v *models.Message) string { return ChannelKey(v.ChannelID) },
	)
}

func ChannelKey(channelID int64) string {
	return strconv.FormatInt(channelID, 10)
}

// EmailKey normalizes an email so lookups ignore case.
func EmailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
