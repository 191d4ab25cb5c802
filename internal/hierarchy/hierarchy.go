// Package hierarchy manages the ordered groups and channels of a server.
//
// Every server has at most one hierarchy document. Its first group is the
// default group: it always sits at position 0, cannot be moved or deleted,
// and receives the channels of deleted groups. The remaining groups and the
// channels of each group are kept densely positioned by orderedlist.
package hierarchy

import (
	"concord-backend/internal/apperr"
	"concord-backend/internal/keyValue"
	"concord-backend/internal/models"
	"concord-backend/internal/orderedlist"
	"concord-backend/internal/snowflake"
	"concord-backend/internal/storage"
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"
)

const DefaultGroupName = "default"

type locker interface {
	Lock(ctx context.Context, keys ...string) (func(), error)
}

type Service struct {
	sugar       *zap.SugaredLogger
	locks       locker
	ids         *snowflake.Generator
	servers     storage.Collection[models.Server]
	memberships storage.Collection[models.Membership]
	hierarchies storage.Collection[models.Hierarchy]
}

func New(sugar *zap.SugaredLogger, store storage.Store, locks locker, ids *snowflake.Generator) *Service {
	return &Service{
		sugar:       sugar,
		locks:       locks,
		ids:         ids,
		servers:     storage.Servers(store),
		memberships: storage.Memberships(store),
		hierarchies: storage.Hierarchies(store),
	}
}

// groupTail wraps every group except the default one. Its Base of 1 keeps
// position 0 out of reach.
func groupTail(h *models.Hierarchy) *orderedlist.List[*models.Group] {
	return orderedlist.New(slices.Clone(h.Groups[1:]), 1)
}

func setTail(h *models.Hierarchy, tail *orderedlist.List[*models.Group]) {
	h.Groups = append([]*models.Group{h.Groups[0]}, tail.Items...)
}

func channelList(g *models.Group) *orderedlist.List[*models.Channel] {
	return orderedlist.New(g.Channels, 0)
}

// tailIndex converts a requested group position into an index of the tail.
func tailIndex(position *int) *int {
	if position == nil {
		return nil
	}
	index := *position - 1
	return &index
}

func findGroup(h *models.Hierarchy, groupID int64) (int, error) {
	for i, g := range h.Groups {
		if g.ID == groupID {
			return i, nil
		}
	}
	return -1, apperr.NotFound("group %d", groupID)
}

func findChannel(g *models.Group, channelID int64) (int, error) {
	for i, c := range g.Channels {
		if c.ID == channelID {
			return i, nil
		}
	}
	return -1, apperr.NotFound("channel %d", channelID)
}

func isOwner(server *models.Server, userID int64) bool {
	return slices.ContainsFunc(server.Owners, func(m models.MemberRef) bool { return m.ID == userID })
}

func (s *Service) newHierarchy(serverID int64) (*models.Hierarchy, error) {
	groupID, err := s.ids.Generate()
	if err != nil {
		return nil, err
	}
	return &models.Hierarchy{
		ServerID: serverID,
		Groups: []*models.Group{{
			ID:       groupID,
			Name:     DefaultGroupName,
			Pos:      0,
			Channels: []*models.Channel{},
		}},
	}, nil
}

// load returns the stored hierarchy with groups and channels in position
// order.
func (s *Service) load(ctx context.Context, serverID int64) (*models.Hierarchy, bool, error) {
	h, found, err := s.hierarchies.Find(ctx, serverID)
	if err != nil || !found {
		return nil, found, err
	}

	orderedlist.New(h.Groups, 0).Sort()
	for _, g := range h.Groups {
		if g.Channels == nil {
			g.Channels = []*models.Channel{}
		}
		channelList(g).Sort()
	}
	if len(h.Groups) == 0 {
		return nil, false, fmt.Errorf("hierarchy of server %d has no default group", serverID)
	}
	return h, true, nil
}

// mutate runs fn on the server's hierarchy under the server lock and saves
// the result with one write. With create set a missing hierarchy is created
// with its default group first.
func (s *Service) mutate(ctx context.Context, user *models.User, serverID int64, create bool, fn func(h *models.Hierarchy) error) (*models.Hierarchy, error) {
	unlock, err := s.locks.Lock(ctx, keyValue.ServerKey(serverID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	server, err := s.servers.FetchByID(ctx, serverID)
	if err != nil {
		return nil, err
	}
	if !isOwner(server, user.ID) {
		s.sugar.Warnf("User ID [%d] tried to edit the channels of server ID [%d] they don't own", user.ID, serverID)
		return nil, apperr.PermissionDenied("user %d does not own server %d", user.ID, serverID)
	}

	h, found, err := s.load(ctx, serverID)
	if err != nil {
		return nil, err
	}
	if !found {
		if !create {
			return nil, apperr.NotFound("hierarchy of server %d", serverID)
		}
		h, err = s.newHierarchy(serverID)
		if err != nil {
			return nil, err
		}
	}

	if err := fn(h); err != nil {
		return nil, err
	}

	if err := s.hierarchies.Save(ctx, h); err != nil {
		return nil, err
	}
	return h, nil
}

func (s *Service) CreateGroup(ctx context.Context, user *models.User, serverID int64, req models.CreateGroupRequest) (*models.Hierarchy, error) {
	if req.Position != nil && *req.Position == 0 {
		return nil, apperr.InvariantViolation("position 0 is reserved for the default group")
	}

	groupID, err := s.ids.Generate()
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, user, serverID, true, func(h *models.Hierarchy) error {
		tail := groupTail(h)
		tail.Insert(&models.Group{ID: groupID, Name: req.Name, Channels: []*models.Channel{}}, tailIndex(req.Position))
		setTail(h, tail)

		s.sugar.Debugf("Created group %d in server %d", groupID, serverID)
		return nil
	})
}

func (s *Service) UpdateGroup(ctx context.Context, user *models.User, serverID int64, groupID int64, req models.UpdateGroupRequest) (*models.Hierarchy, error) {
	return s.mutate(ctx, user, serverID, false, func(h *models.Hierarchy) error {
		i, err := findGroup(h, groupID)
		if err != nil {
			return err
		}

		if req.Position != nil {
			if i == 0 && *req.Position != 0 {
				return apperr.InvariantViolation("the default group cannot be moved")
			}
			if i != 0 && *req.Position == 0 {
				return apperr.InvariantViolation("position 0 is reserved for the default group")
			}
		}

		if req.Name != nil {
			h.Groups[i].Name = *req.Name
		}

		if i != 0 && req.Position != nil {
			tail := groupTail(h)
			if _, err := tail.Move(i-1, tailIndex(req.Position)); err != nil {
				return err
			}
			setTail(h, tail)
		}
		return nil
	})
}

// DeleteGroup removes a group. Without cascade its channels move to the head
// of the default group. With cascade the ids of the dropped channels are
// returned so their messages can be purged.
func (s *Service) DeleteGroup(ctx context.Context, user *models.User, serverID int64, groupID int64, cascade bool) (*models.Hierarchy, []int64, error) {
	var removed []int64

	h, err := s.mutate(ctx, user, serverID, false, func(h *models.Hierarchy) error {
		i, err := findGroup(h, groupID)
		if err != nil {
			return err
		}
		if i == 0 {
			return apperr.InvariantViolation("the default group cannot be deleted")
		}

		tail := groupTail(h)
		group, err := tail.Remove(i - 1)
		if err != nil {
			return err
		}
		setTail(h, tail)

		if cascade {
			for _, c := range group.Channels {
				removed = append(removed, c.ID)
			}
			return nil
		}

		channels := channelList(h.Groups[0])
		channels.Prepend(group.Channels...)
		h.Groups[0].Channels = channels.Items
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	return h, removed, nil
}

func (s *Service) CreateChannel(ctx context.Context, user *models.User, serverID int64, req models.CreateChannelRequest) (*models.Hierarchy, error) {
	if !req.Type.Valid() {
		return nil, apperr.BadRequest("unknown channel type %d", req.Type)
	}

	channelID, err := s.ids.Generate()
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, user, serverID, true, func(h *models.Hierarchy) error {
		group := h.Groups[0]
		if req.GroupID != nil {
			i, err := findGroup(h, *req.GroupID)
			if err != nil {
				return err
			}
			group = h.Groups[i]
		}

		channels := channelList(group)
		channels.Insert(&models.Channel{ID: channelID, Name: req.Name, Type: req.Type}, req.Position)
		group.Channels = channels.Items

		s.sugar.Debugf("Created channel %d in group %d of server %d", channelID, group.ID, serverID)
		return nil
	})
}

// UpdateChannel renames and repositions a channel. When NewGroupID names
// another group the channel leaves its group and is inserted into the
// target at Position, or appended when Position is nil.
func (s *Service) UpdateChannel(ctx context.Context, user *models.User, serverID int64, req models.UpdateChannelRequest) (*models.Hierarchy, error) {
	return s.mutate(ctx, user, serverID, false, func(h *models.Hierarchy) error {
		gi, err := findGroup(h, req.GroupID)
		if err != nil {
			return err
		}
		group := h.Groups[gi]

		ci, err := findChannel(group, req.ChannelID)
		if err != nil {
			return err
		}

		if req.Name != nil {
			group.Channels[ci].Name = *req.Name
		}

		if req.NewGroupID != nil && *req.NewGroupID != group.ID {
			ti, err := findGroup(h, *req.NewGroupID)
			if err != nil {
				return err
			}
			target := h.Groups[ti]

			source := channelList(group)
			channel, err := source.Remove(ci)
			if err != nil {
				return err
			}
			group.Channels = source.Items

			dest := channelList(target)
			dest.Insert(channel, req.Position)
			target.Channels = dest.Items
			return nil
		}

		channels := channelList(group)
		if _, err := channels.Move(ci, req.Position); err != nil {
			return err
		}
		group.Channels = channels.Items
		return nil
	})
}

func (s *Service) DeleteChannel(ctx context.Context, user *models.User, serverID int64, groupID int64, channelID int64) (*models.Hierarchy, error) {
	return s.mutate(ctx, user, serverID, false, func(h *models.Hierarchy) error {
		gi, err := findGroup(h, groupID)
		if err != nil {
			return err
		}
		group := h.Groups[gi]

		ci, err := findChannel(group, channelID)
		if err != nil {
			return err
		}

		channels := channelList(group)
		if _, err := channels.Remove(ci); err != nil {
			return err
		}
		group.Channels = channels.Items
		return nil
	})
}

// GetHierarchy returns the hierarchy of a server, or an empty one when no
// group was created yet. Private servers are visible to members only.
func (s *Service) GetHierarchy(ctx context.Context, user *models.User, serverID int64) (*models.Hierarchy, error) {
	server, err := s.servers.FetchByID(ctx, serverID)
	if err != nil {
		return nil, err
	}

	if server.Private {
		membership, err := s.memberships.FetchByID(ctx, serverID)
		if err != nil {
			return nil, err
		}
		member := slices.ContainsFunc(membership.Members, func(m models.MemberRef) bool { return m.ID == user.ID })
		if !member {
			return nil, apperr.PermissionDenied("server %d is private", serverID)
		}
	}

	h, found, err := s.load(ctx, serverID)
	if err != nil {
		return nil, err
	}
	if !found {
		return &models.Hierarchy{ServerID: serverID, Groups: []*models.Group{}}, nil
	}
	return h, nil
}

// FindChannel reports whether a channel exists anywhere in the server's
// hierarchy.
func (s *Service) FindChannel(ctx context.Context, serverID int64, channelID int64) (*models.Channel, error) {
	h, found, err := s.load(ctx, serverID)
	if err != nil {
		return nil, err
	}
	if found {
		for _, g := range h.Groups {
			if ci, err := findChannel(g, channelID); err == nil {
				return g.Channels[ci], nil
			}
		}
	}
	return nil, apperr.NotFound("channel %d in server %d", channelID, serverID)
}
