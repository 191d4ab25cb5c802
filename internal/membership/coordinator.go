// Package membership keeps the Server, Membership and User documents of a
// server consistent with each other.
//
// A user belongs to a server exactly when the server id is in user.servers
// and the user's reference is in the membership's members, and the same
// holds for invites. Every owner is also a member. The three documents are
// written by a saga in a fixed order per operation; see runSaga for what
// happens when a write in the middle fails.
package membership

import (
	"concord-backend/internal/apperr"
	"concord-backend/internal/keyValue"
	"concord-backend/internal/models"
	"concord-backend/internal/snowflake"
	"concord-backend/internal/storage"
	"context"
	"slices"

	"go.uber.org/zap"
)

type locker interface {
	Lock(ctx context.Context, keys ...string) (func(), error)
}

type Coordinator struct {
	sugar *zap.SugaredLogger
	store storage.Store
	locks locker
	ids   *snowflake.Generator
}

func New(sugar *zap.SugaredLogger, store storage.Store, locks locker, ids *snowflake.Generator) *Coordinator {
	return &Coordinator{sugar: sugar, store: store, locks: locks, ids: ids}
}

type LeaveResult struct {
	Changed bool `json:"changed"`
}

func (c *Coordinator) servers() storage.Collection[models.Server] {
	return storage.Servers(c.store)
}

func (c *Coordinator) memberships() storage.Collection[models.Membership] {
	return storage.Memberships(c.store)
}

func (c *Coordinator) users() storage.Collection[models.User] {
	return storage.Users(c.store)
}

func (c *Coordinator) lock(ctx context.Context, serverID int64, userIDs ...int64) (func(), error) {
	keys := []string{keyValue.ServerKey(serverID)}
	for _, id := range userIDs {
		keys = append(keys, keyValue.UserKey(id))
	}
	return c.locks.Lock(ctx, keys...)
}

func isOwner(server *models.Server, userID int64) bool {
	return containsRef(server.Owners, userID)
}

// CreateServer makes the caller the sole owner and member of a new server.
func (c *Coordinator) CreateServer(ctx context.Context, caller *models.User, req models.CreateServerRequest) (*models.CompleteServer, error) {
	serverID, err := c.ids.Generate()
	if err != nil {
		return nil, err
	}

	unlock, err := c.lock(ctx, serverID, caller.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	user, err := c.users().FetchByID(ctx, caller.ID)
	if err != nil {
		return nil, err
	}

	server := models.Server{
		ID:          serverID,
		Name:        req.Name,
		Description: req.Description,
		Avatar:      req.Avatar,
		CoverImage:  req.CoverImage,
		Private:     req.Private,
		Owners:      []models.MemberRef{user.MemberRef()},
	}
	membership := models.Membership{
		ServerID: serverID,
		Members:  []models.MemberRef{user.MemberRef()},
		Invites:  []models.MemberRef{},
	}
	user.Servers = addID(user.Servers, serverID)
	user.OwnedServers = addID(user.OwnedServers, serverID)

	err = c.runSaga(ctx, "create server", []step{
		saveStep("server", storage.Servers, &server),
		saveStep("membership", storage.Memberships, &membership),
		saveStep("user", storage.Users, user),
	})
	if err != nil {
		return nil, err
	}

	c.sugar.Infof("User ID [%d] created server ID [%d]", user.ID, serverID)
	return &models.CompleteServer{Server: server, Membership: membership}, nil
}

func (c *Coordinator) UpdateServer(ctx context.Context, caller *models.User, serverID int64, req models.UpdateServerRequest) (*models.Server, error) {
	unlock, err := c.lock(ctx, serverID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	server, err := c.servers().FetchByID(ctx, serverID)
	if err != nil {
		return nil, err
	}
	if !isOwner(server, caller.ID) {
		c.sugar.Warnf("User ID [%d] tried to edit server ID [%d] they don't own", caller.ID, serverID)
		return nil, apperr.PermissionDenied("user %d does not own server %d", caller.ID, serverID)
	}

	if req.Name != nil {
		server.Name = *req.Name
	}
	if req.Description != nil {
		server.Description = *req.Description
	}
	if req.Avatar != nil {
		server.Avatar = *req.Avatar
	}
	if req.CoverImage != nil {
		server.CoverImage = *req.CoverImage
	}
	if req.Private != nil {
		server.Private = *req.Private
	}

	if err := c.servers().Save(ctx, server); err != nil {
		return nil, err
	}
	return server, nil
}

// DeleteServer removes the hierarchy, membership and server documents, then
// drops the server id from every user that referenced it. It returns the ids
// of the channels the hierarchy held, read under the server lock, so their
// messages can be purged.
func (c *Coordinator) DeleteServer(ctx context.Context, caller *models.User, serverID int64) ([]int64, error) {
	unlock, err := c.lock(ctx, serverID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	server, err := c.servers().FetchByID(ctx, serverID)
	if err != nil {
		return nil, err
	}
	if !isOwner(server, caller.ID) {
		c.sugar.Warnf("User ID [%d] tried to delete server ID [%d] they don't own", caller.ID, serverID)
		return nil, apperr.PermissionDenied("user %d does not own server %d", caller.ID, serverID)
	}

	channelIDs := []int64{}
	hierarchy, found, err := storage.Hierarchies(c.store).Find(ctx, serverID)
	if err != nil {
		return nil, err
	}
	if found {
		for _, g := range hierarchy.Groups {
			for _, ch := range g.Channels {
				channelIDs = append(channelIDs, ch.ID)
			}
		}
	}

	membership, found, err := c.memberships().Find(ctx, serverID)
	if err != nil {
		return nil, err
	}

	referenced := []int64{}
	for _, ref := range server.Owners {
		referenced = addID(referenced, ref.ID)
	}
	if found {
		for _, ref := range slices.Concat(membership.Members, membership.Invites) {
			referenced = addID(referenced, ref.ID)
		}
	}

	// server keys sort before user keys, so this second batch keeps the
	// global lock order
	userKeys := make([]string, 0, len(referenced))
	for _, id := range referenced {
		userKeys = append(userKeys, keyValue.UserKey(id))
	}
	unlockUsers, err := c.locks.Lock(ctx, userKeys...)
	if err != nil {
		return nil, err
	}
	defer unlockUsers()

	steps := []step{
		deleteStep("hierarchy", storage.Hierarchies, serverID),
		deleteStep("membership", storage.Memberships, serverID),
		deleteStep("server", storage.Servers, serverID),
	}
	for _, userID := range referenced {
		steps = append(steps, step{name: "user", run: func(ctx context.Context, store storage.Store) error {
			users := storage.Users(store)
			user, found, err := users.Find(ctx, userID)
			if err != nil || !found {
				return err
			}
			user.Servers = removeID(user.Servers, serverID)
			user.OwnedServers = removeID(user.OwnedServers, serverID)
			user.Invites = removeID(user.Invites, serverID)
			return users.Save(ctx, user)
		}})
	}

	if err := c.runSaga(ctx, "delete server", steps); err != nil {
		return nil, err
	}

	c.sugar.Infof("User ID [%d] deleted server ID [%d]", caller.ID, serverID)
	return channelIDs, nil
}

// GetServer returns a server with its membership. Private servers are only
// visible to members and invitees.
func (c *Coordinator) GetServer(ctx context.Context, caller *models.User, serverID int64) (*models.CompleteServer, error) {
	server, err := c.servers().FetchByID(ctx, serverID)
	if err != nil {
		return nil, err
	}
	membership, err := c.memberships().FetchByID(ctx, serverID)
	if err != nil {
		return nil, err
	}

	if server.Private && !containsRef(membership.Members, caller.ID) && !containsRef(membership.Invites, caller.ID) {
		return nil, apperr.PermissionDenied("server %d is private", serverID)
	}

	membership.Members = nonNil(membership.Members)
	membership.Invites = nonNil(membership.Invites)
	return &models.CompleteServer{Server: *server, Membership: *membership}, nil
}

// ServerPreviews lists the servers the caller belongs to. Ids whose server
// no longer exists are skipped.
func (c *Coordinator) ServerPreviews(ctx context.Context, caller *models.User) ([]models.ServerPreview, error) {
	user, err := c.users().FetchByID(ctx, caller.ID)
	if err != nil {
		return nil, err
	}

	previews := []models.ServerPreview{}
	for _, serverID := range user.Servers {
		server, found, err := c.servers().Find(ctx, serverID)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		previews = append(previews, models.ServerPreview{ID: server.ID, Name: server.Name, Avatar: server.Avatar})
	}
	return previews, nil
}

// JoinServer adds the caller to a server. A private server requires a
// pending invite, which the join consumes.
func (c *Coordinator) JoinServer(ctx context.Context, caller *models.User, serverID int64) (*models.CompleteServer, error) {
	unlock, err := c.lock(ctx, serverID, caller.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	server, err := c.servers().FetchByID(ctx, serverID)
	if err != nil {
		return nil, err
	}
	membership, err := c.memberships().FetchByID(ctx, serverID)
	if err != nil {
		return nil, err
	}
	user, err := c.users().FetchByID(ctx, caller.ID)
	if err != nil {
		return nil, err
	}

	invited := containsRef(membership.Invites, user.ID)
	if server.Private && !invited {
		return nil, apperr.PermissionDenied("server %d is private and user %d has no invite", serverID, user.ID)
	}
	if containsRef(membership.Members, user.ID) {
		return nil, apperr.InvariantViolation("user %d is already a member of server %d", user.ID, serverID)
	}

	membership.Invites = nonNil(removeRef(membership.Invites, user.ID))
	membership.Members = addRef(membership.Members, user.MemberRef())
	user.Servers = addID(user.Servers, serverID)
	user.Invites = nonNil(removeID(user.Invites, serverID))

	err = c.runSaga(ctx, "join server", []step{
		saveStep("membership", storage.Memberships, membership),
		saveStep("user", storage.Users, user),
	})
	if err != nil {
		return nil, err
	}

	c.sugar.Debugf("User ID [%d] joined server ID [%d]", user.ID, serverID)
	return &models.CompleteServer{Server: *server, Membership: *membership}, nil
}

// LeaveServer drops every reference between the caller and a server. It is
// a no-op when there is nothing to drop.
func (c *Coordinator) LeaveServer(ctx context.Context, caller *models.User, serverID int64) (LeaveResult, error) {
	unlock, err := c.lock(ctx, serverID, caller.ID)
	if err != nil {
		return LeaveResult{}, err
	}
	defer unlock()

	user, err := c.users().FetchByID(ctx, caller.ID)
	if err != nil {
		return LeaveResult{}, err
	}
	server, serverFound, err := c.servers().Find(ctx, serverID)
	if err != nil {
		return LeaveResult{}, err
	}
	membership, membershipFound, err := c.memberships().Find(ctx, serverID)
	if err != nil {
		return LeaveResult{}, err
	}

	userSide := slices.Contains(user.Servers, serverID) ||
		slices.Contains(user.OwnedServers, serverID) ||
		slices.Contains(user.Invites, serverID)

	dropFromUser := func() {
		user.Servers = nonNil(removeID(user.Servers, serverID))
		user.OwnedServers = nonNil(removeID(user.OwnedServers, serverID))
		user.Invites = nonNil(removeID(user.Invites, serverID))
	}

	if !serverFound || !membershipFound {
		// the server is gone, only stale ids on the user side can remain
		if userSide {
			dropFromUser()
			if err := c.users().Save(ctx, user); err != nil {
				return LeaveResult{}, err
			}
		}
		return LeaveResult{Changed: false}, nil
	}

	serverSide := isOwner(server, user.ID) ||
		containsRef(membership.Members, user.ID) ||
		containsRef(membership.Invites, user.ID)
	if !serverSide && !userSide {
		return LeaveResult{Changed: false}, nil
	}

	server.Owners = nonNil(removeRef(server.Owners, user.ID))
	membership.Members = nonNil(removeRef(membership.Members, user.ID))
	membership.Invites = nonNil(removeRef(membership.Invites, user.ID))
	dropFromUser()

	err = c.runSaga(ctx, "leave server", []step{
		saveStep("server", storage.Servers, server),
		saveStep("membership", storage.Memberships, membership),
		saveStep("user", storage.Users, user),
	})
	if err != nil {
		return LeaveResult{}, err
	}

	c.sugar.Debugf("User ID [%d] left server ID [%d]", user.ID, serverID)
	return LeaveResult{Changed: true}, nil
}

// InviteToServer records a pending invite on both the membership and the
// invited user.
func (c *Coordinator) InviteToServer(ctx context.Context, inviter *models.User, serverID int64, targetID int64) (*models.Membership, error) {
	unlock, err := c.lock(ctx, serverID, targetID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	server, err := c.servers().FetchByID(ctx, serverID)
	if err != nil {
		return nil, err
	}
	membership, err := c.memberships().FetchByID(ctx, serverID)
	if err != nil {
		return nil, err
	}

	if !containsRef(membership.Members, inviter.ID) {
		return nil, apperr.PermissionDenied("user %d is not a member of server %d", inviter.ID, serverID)
	}
	if server.Private && !isOwner(server, inviter.ID) {
		return nil, apperr.PermissionDenied("only owners can invite to private server %d", serverID)
	}

	target, err := c.users().FetchByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if containsRef(membership.Members, targetID) {
		return nil, apperr.InvariantViolation("user %d is already a member of server %d", targetID, serverID)
	}
	if containsRef(membership.Invites, targetID) {
		return nil, apperr.InvariantViolation("user %d is already invited to server %d", targetID, serverID)
	}

	membership.Invites = addRef(membership.Invites, target.MemberRef())
	target.Invites = addID(target.Invites, serverID)

	err = c.runSaga(ctx, "invite to server", []step{
		saveStep("membership", storage.Memberships, membership),
		saveStep("user", storage.Users, target),
	})
	if err != nil {
		return nil, err
	}

	c.sugar.Debugf("User ID [%d] invited user ID [%d] to server ID [%d]", inviter.ID, targetID, serverID)
	return membership, nil
}

// RefuseInvite drops a pending invite from both sides.
func (c *Coordinator) RefuseInvite(ctx context.Context, caller *models.User, serverID int64) error {
	unlock, err := c.lock(ctx, serverID, caller.ID)
	if err != nil {
		return err
	}
	defer unlock()

	user, err := c.users().FetchByID(ctx, caller.ID)
	if err != nil {
		return err
	}
	membership, found, err := c.memberships().Find(ctx, serverID)
	if err != nil {
		return err
	}

	onMembership := found && containsRef(membership.Invites, user.ID)
	onUser := slices.Contains(user.Invites, serverID)
	if !onMembership && !onUser {
		return apperr.NotFound("no pending invite to server %d", serverID)
	}

	user.Invites = nonNil(removeID(user.Invites, serverID))
	if !onMembership {
		return c.users().Save(ctx, user)
	}

	membership.Invites = nonNil(removeRef(membership.Invites, user.ID))
	return c.runSaga(ctx, "refuse invite", []step{
		saveStep("membership", storage.Memberships, membership),
		saveStep("user", storage.Users, user),
	})
}

// AddOwner grants ownership to an existing member.
func (c *Coordinator) AddOwner(ctx context.Context, requester *models.User, serverID int64, targetID int64) (*models.Server, error) {
	unlock, err := c.lock(ctx, serverID, targetID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	server, err := c.servers().FetchByID(ctx, serverID)
	if err != nil {
		return nil, err
	}
	if server.Private && !isOwner(server, requester.ID) {
		return nil, apperr.PermissionDenied("user %d does not own server %d", requester.ID, serverID)
	}

	target, err := c.users().FetchByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if isOwner(server, targetID) {
		return nil, apperr.InvariantViolation("user %d is already an owner", targetID)
	}

	membership, err := c.memberships().FetchByID(ctx, serverID)
	if err != nil {
		return nil, err
	}
	if !containsRef(membership.Members, targetID) {
		return nil, apperr.InvariantViolation("user %d is not a member", targetID)
	}

	server.Owners = addRef(server.Owners, target.MemberRef())
	target.OwnedServers = addID(target.OwnedServers, serverID)

	err = c.runSaga(ctx, "add owner", []step{
		saveStep("server", storage.Servers, server),
		saveStep("user", storage.Users, target),
	})
	if err != nil {
		return nil, err
	}
	return server, nil
}

func (c *Coordinator) RemoveOwner(ctx context.Context, requester *models.User, serverID int64, targetID int64) (*models.Server, error) {
	unlock, err := c.lock(ctx, serverID, targetID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	server, err := c.servers().FetchByID(ctx, serverID)
	if err != nil {
		return nil, err
	}
	if server.Private && !isOwner(server, requester.ID) {
		return nil, apperr.PermissionDenied("user %d does not own server %d", requester.ID, serverID)
	}
	if !isOwner(server, targetID) {
		return nil, apperr.InvariantViolation("user %d is not an owner", targetID)
	}

	target, err := c.users().FetchByID(ctx, targetID)
	if err != nil {
		return nil, err
	}

	server.Owners = nonNil(removeRef(server.Owners, targetID))
	target.OwnedServers = nonNil(removeID(target.OwnedServers, serverID))

	err = c.runSaga(ctx, "remove owner", []step{
		saveStep("server", storage.Servers, server),
		saveStep("user", storage.Users, target),
	})
	if err != nil {
		return nil, err
	}
	return server, nil
}
