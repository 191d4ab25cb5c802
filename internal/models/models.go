package models

import "time"

type User struct {
	ID           int64   `json:"id,string"`
	Email        string  `json:"email,omitempty"`
	Handle       string  `json:"handle"`
	UserName     string  `json:"userName"`
	AvatarURL    string  `json:"avatarUrl"`
	Password     []byte  `json:"password,omitempty"`
	Servers      []int64 `json:"servers"`
	OwnedServers []int64 `json:"ownedServers"`
	Invites      []int64 `json:"invites"`
}

// MemberRef is a snapshot of a user taken at the time of an action. It is
// stored inside Server and Membership documents and never refreshed.
type MemberRef struct {
	ID     int64  `json:"id,string"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

func (u *User) MemberRef() MemberRef {
	return MemberRef{ID: u.ID, Name: u.UserName, Avatar: u.AvatarURL}
}

// Public strips fields that never leave the server.
func (u User) Public() User {
	u.Password = nil
	return u
}

type Server struct {
	ID          int64       `json:"id,string"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Avatar      string      `json:"avatar"`
	CoverImage  string      `json:"coverImage"`
	Private     bool        `json:"private"`
	Owners      []MemberRef `json:"owners"`
}

// Membership is keyed by server id.
type Membership struct {
	ServerID int64       `json:"serverId,string"`
	Members  []MemberRef `json:"members"`
	Invites  []MemberRef `json:"invites"`
}

type CompleteServer struct {
	Server     Server     `json:"server"`
	Membership Membership `json:"membership"`
}

type ServerPreview struct {
	ID     int64  `json:"id,string"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

type ChannelType int

const (
	ChannelTypeChat ChannelType = iota + 1
	ChannelTypeAnnouncements
	ChannelTypeVoice
	ChannelTypeAdvancedVoice
)

func (t ChannelType) Valid() bool {
	return t >= ChannelTypeChat && t <= ChannelTypeAdvancedVoice
}

// Hierarchy is keyed by server id. Groups[0] is always the default group.
type Hierarchy struct {
	ServerID int64    `json:"serverId,string"`
	Groups   []*Group `json:"groups"`
}

type Group struct {
	ID       int64      `json:"id,string"`
	Name     string     `json:"name"`
	Pos      int        `json:"position"`
	Channels []*Channel `json:"channels"`
}

func (g *Group) Position() int     { return g.Pos }
func (g *Group) SetPosition(p int) { g.Pos = p }

type Channel struct {
	ID   int64       `json:"id,string"`
	Name string      `json:"name"`
	Type ChannelType `json:"type"`
	Pos  int         `json:"position"`
}

func (c *Channel) Position() int     { return c.Pos }
func (c *Channel) SetPosition(p int) { c.Pos = p }

type Message struct {
	ID        int64     `json:"id,string"`
	ServerID  int64     `json:"serverId,string"`
	ChannelID int64     `json:"channelId,string"`
	UserID    int64     `json:"userId,string"`
	Text      string    `json:"text"`
	UpdatedAt time.Time `json:"updatedAt"`
}
