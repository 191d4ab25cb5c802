// Package messages is the append-only message log of server channels.
package messages

import (
	"concord-backend/internal/apperr"
	"concord-backend/internal/models"
	"concord-backend/internal/snowflake"
	"concord-backend/internal/storage"
	"context"
	"slices"
	"time"

	"go.uber.org/zap"
)

const (
	FirstPageSize = 30
	NextPageSize  = 10
)

// channelFinder checks that a channel belongs to a server.
type channelFinder interface {
	FindChannel(ctx context.Context, serverID int64, channelID int64) (*models.Channel, error)
}

type Log struct {
	sugar    *zap.SugaredLogger
	ids      *snowflake.Generator
	channels channelFinder
	servers  storage.Collection[models.Server]
	messages storage.Collection[models.Message]
	now      func() time.Time
}

func New(sugar *zap.SugaredLogger, store storage.Store, channels channelFinder, ids *snowflake.Generator) *Log {
	return &Log{
		sugar:    sugar,
		ids:      ids,
		channels: channels,
		servers:  storage.Servers(store),
		messages: storage.Messages(store),
		now:      time.Now,
	}
}

func (l *Log) PostMessage(ctx context.Context, user *models.User, serverID int64, req models.PostMessageRequest) (*models.Message, error) {
	if _, err := l.servers.FetchByID(ctx, serverID); err != nil {
		return nil, err
	}
	if !slices.Contains(user.Servers, serverID) {
		return nil, apperr.PermissionDenied("user %d is not a member of server %d", user.ID, serverID)
	}
	if _, err := l.channels.FindChannel(ctx, serverID, req.ChannelID); err != nil {
		return nil, err
	}

	messageID, err := l.ids.Generate()
	if err != nil {
		return nil, err
	}

	msg := models.Message{
		ID:        messageID,
		ServerID:  serverID,
		ChannelID: req.ChannelID,
		UserID:    user.ID,
		Text:      req.Text,
		UpdatedAt: l.now().UTC(),
	}
	if err := l.messages.Save(ctx, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// GetMessages returns a channel's messages newest first. Without a cursor
// (or with one of 0) the first FirstPageSize messages are returned, with one
// the NextPageSize messages older than the cursor id.
func (l *Log) GetMessages(ctx context.Context, user *models.User, serverID int64, channelID int64, cursor *int64) ([]models.Message, error) {
	server, err := l.servers.FetchByID(ctx, serverID)
	if err != nil {
		return nil, err
	}
	if server.Private && !slices.Contains(user.Servers, serverID) {
		return nil, apperr.PermissionDenied("server %d is private", serverID)
	}
	if _, err := l.channels.FindChannel(ctx, serverID, channelID); err != nil {
		return nil, err
	}

	limit, before := FirstPageSize, int64(0)
	if cursor != nil && *cursor > 0 {
		limit, before = NextPageSize, *cursor
	}

	return l.messages.ListByKey(ctx, storage.ChannelKey(channelID), before, limit)
}

// PurgeChannels deletes every message of the given channels.
func (l *Log) PurgeChannels(ctx context.Context, channelIDs []int64) error {
	var total int64
	for _, id := range channelIDs {
		n, err := l.messages.DeleteByKey(ctx, storage.ChannelKey(id))
		if err != nil {
			return err
		}
		total += n
	}
	if total > 0 {
		l.sugar.Debugf("Purged %d messages from %d channels", total, len(channelIDs))
	}
	return nil
}
