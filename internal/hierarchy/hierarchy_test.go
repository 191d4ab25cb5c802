package hierarchy_test

import (
	"concord-backend/internal/apperr"
	"concord-backend/internal/database"
	"concord-backend/internal/hierarchy"
	"concord-backend/internal/keyValue"
	"concord-backend/internal/models"
	"concord-backend/internal/snowflake"
	"concord-backend/internal/storage"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"go.uber.org/zap"
)

const serverID = 100

var (
	owner    = &models.User{ID: 1, UserName: "owner"}
	member   = &models.User{ID: 2, UserName: "member"}
	stranger = &models.User{ID: 3, UserName: "stranger"}
)

func ptr[T any](v T) *T {
	return &v
}

func newService(t *testing.T, private bool) *hierarchy.Service {
	t.Helper()
	ctx := context.Background()

	db, err := database.OpenSqlite(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	store := storage.NewSQL(db, database.Sqlite, true)

	err = storage.Servers(store).Save(ctx, &models.Server{
		ID:      serverID,
		Name:    "server",
		Private: private,
		Owners:  []models.MemberRef{owner.MemberRef()},
	})
	if err != nil {
		t.Fatal(err)
	}
	err = storage.Memberships(store).Save(ctx, &models.Membership{
		ServerID: serverID,
		Members:  []models.MemberRef{owner.MemberRef(), member.MemberRef()},
		Invites:  []models.MemberRef{},
	})
	if err != nil {
		t.Fatal(err)
	}

	ids, err := snowflake.New(1)
	if err != nil {
		t.Fatal(err)
	}
	sugar := zap.NewNop().Sugar()
	kv := keyValue.New(sugar, nil, true)
	t.Cleanup(kv.Close)

	return hierarchy.New(sugar, store, kv, ids)
}

func groupNames(h *models.Hierarchy) []string {
	names := []string{}
	for _, g := range h.Groups {
		names = append(names, g.Name)
	}
	return names
}

func checkDense(t *testing.T, h *models.Hierarchy) {
	t.Helper()
	for i, g := range h.Groups {
		if g.Pos != i {
			t.Errorf("group %s at index %d has position %d", g.Name, i, g.Pos)
		}
		for j, c := range g.Channels {
			if c.Pos != j {
				t.Errorf("channel %s at index %d of group %s has position %d", c.Name, j, g.Name, c.Pos)
			}
		}
	}
	if len(h.Groups) > 0 && h.Groups[0].Name != hierarchy.DefaultGroupName {
		t.Errorf("group %s took the default slot", h.Groups[0].Name)
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestCreateGroupScenario(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, false)

	h, err := svc.CreateGroup(ctx, owner, serverID, models.CreateGroupRequest{Name: "voice", Position: ptr(1)})
	if err != nil {
		t.Fatal(err)
	}
	if got := groupNames(h); !equal(got, []string{"default", "voice"}) {
		t.Errorf("got %v", got)
	}

	h, err = svc.CreateGroup(ctx, owner, serverID, models.CreateGroupRequest{Name: "events", Position: ptr(1)})
	if err != nil {
		t.Fatal(err)
	}
	if got := groupNames(h); !equal(got, []string{"default", "events", "voice"}) {
		t.Errorf("got %v", got)
	}
	checkDense(t, h)

	stored, err := svc.GetHierarchy(ctx, member, serverID)
	if err != nil {
		t.Fatal(err)
	}
	if got := groupNames(stored); !equal(got, []string{"default", "events", "voice"}) {
		t.Errorf("stored hierarchy is %v", got)
	}
}

func TestDeleteGroupMigratesChannels(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, false)

	h, err := svc.CreateChannel(ctx, owner, serverID, models.CreateChannelRequest{Name: "general", Type: models.ChannelTypeChat})
	if err != nil {
		t.Fatal(err)
	}
	h, err = svc.CreateGroup(ctx, owner, serverID, models.CreateGroupRequest{Name: "voice"})
	if err != nil {
		t.Fatal(err)
	}
	h, err = svc.CreateGroup(ctx, owner, serverID, models.CreateGroupRequest{Name: "events", Position: ptr(1)})
	if err != nil {
		t.Fatal(err)
	}
	events := h.Groups[1]

	for _, name := range []string{"first", "second"} {
		h, err = svc.CreateChannel(ctx, owner, serverID, models.CreateChannelRequest{GroupID: &events.ID, Name: name, Type: models.ChannelTypeChat})
		if err != nil {
			t.Fatal(err)
		}
	}

	h, removed, err := svc.DeleteGroup(ctx, owner, serverID, events.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(removed) != 0 {
		t.Errorf("non-cascading delete reported removed channels %v", removed)
	}
	if got := groupNames(h); !equal(got, []string{"default", "voice"}) {
		t.Errorf("got groups %v", got)
	}

	var channels []string
	for _, c := range h.Groups[0].Channels {
		channels = append(channels, c.Name)
	}
	if !equal(channels, []string{"first", "second", "general"}) {
		t.Errorf("default group channels are %v", channels)
	}
	checkDense(t, h)
}

func TestDeleteGroupCascade(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, false)

	h, err := svc.CreateGroup(ctx, owner, serverID, models.CreateGroupRequest{Name: "events"})
	if err != nil {
		t.Fatal(err)
	}
	events := h.Groups[1]

	h, err = svc.CreateChannel(ctx, owner, serverID, models.CreateChannelRequest{GroupID: &events.ID, Name: "gone", Type: models.ChannelTypeVoice})
	if err != nil {
		t.Fatal(err)
	}
	channelID := h.Groups[1].Channels[0].ID

	h, removed, err := svc.DeleteGroup(ctx, owner, serverID, events.ID, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(removed) != 1 || removed[0] != channelID {
		t.Errorf("got removed %v, want [%d]", removed, channelID)
	}
	if len(h.Groups[0].Channels) != 0 {
		t.Error("cascading delete moved channels into the default group")
	}

	if _, err := svc.FindChannel(ctx, serverID, channelID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("deleted channel is still found: %v", err)
	}
}

func TestDefaultGroupIsPinned(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, false)

	h, err := svc.CreateGroup(ctx, owner, serverID, models.CreateGroupRequest{Name: "events"})
	if err != nil {
		t.Fatal(err)
	}
	defaultID, eventsID := h.Groups[0].ID, h.Groups[1].ID

	tests := []struct {
		name string
		run  func() error
	}{
		{
			name: "Create at position 0",
			run: func() error {
				_, err := svc.CreateGroup(ctx, owner, serverID, models.CreateGroupRequest{Name: "x", Position: ptr(0)})
				return err
			},
		},
		{
			name: "Move a group to position 0",
			run: func() error {
				_, err := svc.UpdateGroup(ctx, owner, serverID, eventsID, models.UpdateGroupRequest{Position: ptr(0)})
				return err
			},
		},
		{
			name: "Move the default group",
			run: func() error {
				_, err := svc.UpdateGroup(ctx, owner, serverID, defaultID, models.UpdateGroupRequest{Position: ptr(1)})
				return err
			},
		},
		{
			name: "Delete the default group",
			run: func() error {
				_, _, err := svc.DeleteGroup(ctx, owner, serverID, defaultID, false)
				return err
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.run(); !errors.Is(err, apperr.ErrInvariantViolation) {
				t.Errorf("got %v, want ErrInvariantViolation", err)
			}
		})
	}

	h, err = svc.UpdateGroup(ctx, owner, serverID, defaultID, models.UpdateGroupRequest{Name: ptr("lobby")})
	if err != nil {
		t.Fatalf("renaming the default group failed: %v", err)
	}
	if h.Groups[0].Name != "lobby" || h.Groups[0].Pos != 0 {
		t.Errorf("got default group %+v", h.Groups[0])
	}
}

func TestRandomGroupOperationsKeepPinnedSlot(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, false)
	rng := rand.New(rand.NewSource(7))

	h, err := svc.CreateGroup(ctx, owner, serverID, models.CreateGroupRequest{Name: "g"})
	if err != nil {
		t.Fatal(err)
	}

	for step := 0; step < 200; step++ {
		n := len(h.Groups)
		var next *models.Hierarchy
		switch op := rng.Intn(3); {
		case op == 0 || n < 3:
			next, err = svc.CreateGroup(ctx, owner, serverID, models.CreateGroupRequest{Name: "g", Position: ptr(1 + rng.Intn(n+2))})
		case op == 1:
			group := h.Groups[1+rng.Intn(n-1)]
			next, err = svc.UpdateGroup(ctx, owner, serverID, group.ID, models.UpdateGroupRequest{Position: ptr(1 + rng.Intn(n+2))})
		default:
			group := h.Groups[1+rng.Intn(n-1)]
			next, _, err = svc.DeleteGroup(ctx, owner, serverID, group.ID, rng.Intn(2) == 0)
		}
		if err != nil {
			t.Fatalf("step %d: %v", step, err)
		}
		h = next
		checkDense(t, h)
	}
}

func TestChannelMoves(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, false)

	var h *models.Hierarchy
	var err error
	for _, name := range []string{"a", "b", "c"} {
		h, err = svc.CreateChannel(ctx, owner, serverID, models.CreateChannelRequest{Name: name, Type: models.ChannelTypeChat})
		if err != nil {
			t.Fatal(err)
		}
	}
	h, err = svc.CreateGroup(ctx, owner, serverID, models.CreateGroupRequest{Name: "other"})
	if err != nil {
		t.Fatal(err)
	}
	defaultGroup, other := h.Groups[0], h.Groups[1]
	a := defaultGroup.Channels[0]

	channelNames := func(g *models.Group) []string {
		names := []string{}
		for _, c := range g.Channels {
			names = append(names, c.Name)
		}
		return names
	}

	// moving to the current position changes nothing
	h, err = svc.UpdateChannel(ctx, owner, serverID, models.UpdateChannelRequest{GroupID: defaultGroup.ID, ChannelID: a.ID, Position: ptr(0)})
	if err != nil {
		t.Fatal(err)
	}
	if got := channelNames(h.Groups[0]); !equal(got, []string{"a", "b", "c"}) {
		t.Errorf("no-op move gave %v", got)
	}

	h, err = svc.UpdateChannel(ctx, owner, serverID, models.UpdateChannelRequest{GroupID: defaultGroup.ID, ChannelID: a.ID, Position: ptr(99), Name: ptr("z")})
	if err != nil {
		t.Fatal(err)
	}
	if got := channelNames(h.Groups[0]); !equal(got, []string{"b", "c", "z"}) {
		t.Errorf("move to tail gave %v", got)
	}

	h, err = svc.UpdateChannel(ctx, owner, serverID, models.UpdateChannelRequest{GroupID: defaultGroup.ID, ChannelID: a.ID, NewGroupID: &other.ID})
	if err != nil {
		t.Fatal(err)
	}
	if got := channelNames(h.Groups[0]); !equal(got, []string{"b", "c"}) {
		t.Errorf("source group after cross-group move is %v", got)
	}
	if got := channelNames(h.Groups[1]); !equal(got, []string{"z"}) {
		t.Errorf("target group after cross-group move is %v", got)
	}
	checkDense(t, h)

	_, err = svc.UpdateChannel(ctx, owner, serverID, models.UpdateChannelRequest{GroupID: other.ID, ChannelID: a.ID, NewGroupID: ptr(int64(12345))})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown target group: got %v, want ErrNotFound", err)
	}

	h, err = svc.DeleteChannel(ctx, owner, serverID, defaultGroup.ID, h.Groups[0].Channels[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if got := channelNames(h.Groups[0]); !equal(got, []string{"c"}) {
		t.Errorf("after delete got %v", got)
	}
	checkDense(t, h)
}

func TestPermissions(t *testing.T) {
	ctx := context.Background()

	svc := newService(t, false)
	_, err := svc.CreateGroup(ctx, member, serverID, models.CreateGroupRequest{Name: "nope"})
	if !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Errorf("non-owner edit: got %v, want ErrPermissionDenied", err)
	}

	_, err = svc.UpdateGroup(ctx, owner, serverID, 5, models.UpdateGroupRequest{Name: ptr("x")})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("update without hierarchy: got %v, want ErrNotFound", err)
	}

	h, err := svc.GetHierarchy(ctx, stranger, serverID)
	if err != nil {
		t.Fatalf("public server hierarchy: %v", err)
	}
	if len(h.Groups) != 0 {
		t.Errorf("missing hierarchy should be empty, got %v", groupNames(h))
	}

	private := newService(t, true)
	if _, err := private.GetHierarchy(ctx, stranger, serverID); !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Errorf("private server: got %v, want ErrPermissionDenied", err)
	}
	if _, err := private.GetHierarchy(ctx, member, serverID); err != nil {
		t.Errorf("member of private server: %v", err)
	}
	if _, err := private.GetHierarchy(ctx, member, 999); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown server: got %v, want ErrNotFound", err)
	}
}

func TestConcurrentGroupEdits(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, false)

	const n = 20
	parallel := func(work func(i int) error) {
		t.Helper()
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := work(i); err != nil {
					errs <- err
				}
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Error(err)
		}
	}

	// the hierarchy does not exist yet, every call races to create it
	parallel(func(i int) error {
		_, err := svc.CreateGroup(ctx, owner, serverID, models.CreateGroupRequest{Name: fmt.Sprintf("g%d", i)})
		return err
	})

	h, err := svc.GetHierarchy(ctx, owner, serverID)
	if err != nil {
		t.Fatal(err)
	}
	if len(h.Groups) != n+1 {
		t.Fatalf("got %d groups after concurrent creates, want %d", len(h.Groups), n+1)
	}
	checkDense(t, h)

	groups := h.Groups[1:]
	parallel(func(i int) error {
		_, err := svc.UpdateGroup(ctx, owner, serverID, groups[i].ID, models.UpdateGroupRequest{Position: ptr(1 + (i*7)%n)})
		return err
	})

	h, err = svc.GetHierarchy(ctx, owner, serverID)
	if err != nil {
		t.Fatal(err)
	}
	if len(h.Groups) != n+1 {
		t.Fatalf("got %d groups after concurrent moves, want %d", len(h.Groups), n+1)
	}
	if h.Groups[0].Name != hierarchy.DefaultGroupName {
		t.Errorf("default group left slot 0, found %s", h.Groups[0].Name)
	}
	checkDense(t, h)
}
