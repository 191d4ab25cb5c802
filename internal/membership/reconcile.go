package membership

import (
	"concord-backend/internal/keyValue"
	"concord-backend/internal/models"
	"context"
	"slices"
	"time"
)

// Report counts what a reconciliation pass changed.
type Report struct {
	ServersChecked      int `json:"serversChecked"`
	MembershipsRepaired int `json:"membershipsRepaired"`
	UsersRepaired       int `json:"usersRepaired"`
	OrphansRemoved      int `json:"orphansRemoved"`
}

func (r Report) Changed() bool {
	return r.MembershipsRepaired+r.UsersRepaired+r.OrphansRemoved > 0
}

// Reconcile repairs what interrupted sagas leave behind. The membership
// document is authoritative for members and invites, server.owners for
// ownership. Owners missing from members are added back, user documents are
// brought in line, and ids of servers that no longer exist are dropped.
func (c *Coordinator) Reconcile(ctx context.Context) (Report, error) {
	var report Report

	servers, err := c.servers().All(ctx)
	if err != nil {
		return report, err
	}
	memberships, err := c.memberships().All(ctx)
	if err != nil {
		return report, err
	}
	users, err := c.users().All(ctx)
	if err != nil {
		return report, err
	}

	known := map[int64]bool{}
	serverIDs := []int64{}
	for _, s := range servers {
		if !known[s.ID] {
			known[s.ID] = true
			serverIDs = append(serverIDs, s.ID)
		}
	}
	for _, m := range memberships {
		if !known[m.ServerID] {
			known[m.ServerID] = true
			serverIDs = append(serverIDs, m.ServerID)
		}
	}

	// which users claim which server, taken from the snapshot so the right
	// user locks can be taken up front
	claims := map[int64][]int64{}
	for _, u := range users {
		for _, id := range slices.Concat(u.Servers, u.OwnedServers, u.Invites) {
			claims[id] = addID(claims[id], u.ID)
		}
	}

	for _, serverID := range serverIDs {
		if err := c.reconcileServer(ctx, serverID, claims[serverID], &report); err != nil {
			return report, err
		}
		report.ServersChecked++
	}

	for _, u := range users {
		stale := false
		for _, id := range slices.Concat(u.Servers, u.OwnedServers, u.Invites) {
			if !known[id] {
				stale = true
				break
			}
		}
		if !stale {
			continue
		}
		if err := c.dropStaleServers(ctx, u.ID, &report); err != nil {
			return report, err
		}
	}

	return report, nil
}

func (c *Coordinator) reconcileServer(ctx context.Context, serverID int64, claimants []int64, report *Report) error {
	unlock, err := c.lock(ctx, serverID)
	if err != nil {
		return err
	}
	defer unlock()

	server, serverFound, err := c.servers().Find(ctx, serverID)
	if err != nil {
		return err
	}
	membership, membershipFound, err := c.memberships().Find(ctx, serverID)
	if err != nil {
		return err
	}

	if !serverFound {
		// a membership without its server is left over from a deletion
		if membershipFound {
			c.sugar.Warnf("Removing membership of deleted server ID [%d]", serverID)
			if err := c.memberships().DeleteByID(ctx, serverID); err != nil {
				return err
			}
			report.OrphansRemoved++
		}
		return nil
	}

	changed := false
	if !membershipFound {
		membership = &models.Membership{ServerID: serverID, Members: []models.MemberRef{}, Invites: []models.MemberRef{}}
		changed = true
	}
	for _, owner := range server.Owners {
		if !containsRef(membership.Members, owner.ID) {
			membership.Members = append(membership.Members, owner)
			membership.Invites = nonNil(removeRef(membership.Invites, owner.ID))
			changed = true
		}
	}
	// a member is never also invited
	for _, member := range membership.Members {
		if containsRef(membership.Invites, member.ID) {
			membership.Invites = nonNil(removeRef(membership.Invites, member.ID))
			changed = true
		}
	}

	if changed {
		c.sugar.Warnf("Repairing membership of server ID [%d]", serverID)
		if err := c.memberships().Save(ctx, membership); err != nil {
			return err
		}
		report.MembershipsRepaired++
	}

	involved := slices.Clone(claimants)
	for _, ref := range slices.Concat(membership.Members, membership.Invites, server.Owners) {
		involved = addID(involved, ref.ID)
	}

	keys := make([]string, 0, len(involved))
	for _, id := range involved {
		keys = append(keys, keyValue.UserKey(id))
	}
	unlockUsers, err := c.locks.Lock(ctx, keys...)
	if err != nil {
		return err
	}
	defer unlockUsers()

	for _, userID := range involved {
		user, found, err := c.users().Find(ctx, userID)
		if err != nil {
			return err
		}
		if !found {
			continue
		}

		if !syncUser(user, serverID, membership, server) {
			continue
		}
		c.sugar.Warnf("Repairing user ID [%d] for server ID [%d]", userID, serverID)
		if err := c.users().Save(ctx, user); err != nil {
			return err
		}
		report.UsersRepaired++
	}
	return nil
}

// syncUser makes the user's lists agree with the membership and owners of
// one server. It reports whether anything changed.
func syncUser(user *models.User, serverID int64, membership *models.Membership, server *models.Server) bool {
	before := [3]int{len(user.Servers), len(user.Invites), len(user.OwnedServers)}

	if containsRef(membership.Members, user.ID) {
		user.Servers = addID(user.Servers, serverID)
	} else {
		user.Servers = nonNil(removeID(user.Servers, serverID))
	}

	if containsRef(membership.Invites, user.ID) {
		user.Invites = addID(user.Invites, serverID)
	} else {
		user.Invites = nonNil(removeID(user.Invites, serverID))
	}

	if isOwner(server, user.ID) {
		user.OwnedServers = addID(user.OwnedServers, serverID)
	} else {
		user.OwnedServers = nonNil(removeID(user.OwnedServers, serverID))
	}

	return before != [3]int{len(user.Servers), len(user.Invites), len(user.OwnedServers)}
}

func (c *Coordinator) dropStaleServers(ctx context.Context, userID int64, report *Report) error {
	unlock, err := c.locks.Lock(ctx, keyValue.UserKey(userID))
	if err != nil {
		return err
	}
	defer unlock()

	user, found, err := c.users().Find(ctx, userID)
	if err != nil || !found {
		return err
	}

	exists := func(serverID int64) (bool, error) {
		_, found, err := c.servers().Find(ctx, serverID)
		return found, err
	}

	changed := false
	for _, list := range []*[]int64{&user.Servers, &user.OwnedServers, &user.Invites} {
		kept := []int64{}
		for _, id := range *list {
			ok, err := exists(id)
			if err != nil {
				return err
			}
			if ok {
				kept = append(kept, id)
			} else {
				changed = true
			}
		}
		*list = kept
	}

	if !changed {
		return nil
	}

	c.sugar.Warnf("Dropping deleted servers from user ID [%d]", userID)
	if err := c.users().Save(ctx, user); err != nil {
		return err
	}
	report.UsersRepaired++
	return nil
}

// RunReconciler runs Reconcile every interval until ctx is done.
func (c *Coordinator) RunReconciler(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := c.Reconcile(ctx)
			if err != nil {
				c.sugar.Errorf("Reconciliation failed: %v", err)
				continue
			}
			if report.Changed() {
				c.sugar.Infof("Reconciliation repaired %d memberships, %d users, removed %d orphans",
					report.MembershipsRepaired, report.UsersRepaired, report.OrphansRemoved)
			} else {
				c.sugar.Debugf("Reconciliation checked %d servers, nothing to repair", report.ServersChecked)
			}
		}
	}
}
