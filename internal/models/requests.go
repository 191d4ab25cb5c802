package models

// Pointer fields are optional: nil means "leave unchanged". Positions in
// particular are pointers because 0 is a meaningful target.

type RegisterRequest struct {
	Email           string `json:"email" validate:"required,emailaddr"`
	Handle          string `json:"handle" validate:"required,alphanum,min=3,max=32"`
	UserName        string `json:"userName" validate:"required,min=1,max=64"`
	Password        string `json:"password" validate:"password,eqfield=ConfirmPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type CreateServerRequest struct {
	Name        string `json:"name" validate:"required,min=4,max=64"`
	Description string `json:"description" validate:"max=1024"`
	Avatar      string `json:"avatar" validate:"omitempty,max=512"`
	CoverImage  string `json:"coverImage" validate:"omitempty,max=512"`
	Private     bool   `json:"private"`
}

type UpdateServerRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=4,max=64"`
	Description *string `json:"description" validate:"omitempty,max=1024"`
	Avatar      *string `json:"avatar" validate:"omitempty,max=512"`
	CoverImage  *string `json:"coverImage" validate:"omitempty,max=512"`
	Private     *bool   `json:"private"`
}

type UserAndServerRequest struct {
	ServerID int64 `json:"serverId,string" validate:"required"`
	UserID   int64 `json:"userId,string" validate:"required"`
}

type CreateGroupRequest struct {
	Name     string `json:"name" validate:"required,max=64"`
	Position *int   `json:"position"`
}

type UpdateGroupRequest struct {
	Name     *string `json:"name" validate:"omitempty,min=1,max=64"`
	Position *int    `json:"position"`
}

type CreateChannelRequest struct {
	GroupID  *int64      `json:"groupId,string"`
	Name     string      `json:"name" validate:"required,max=64"`
	Type     ChannelType `json:"type" validate:"channeltype"`
	Position *int        `json:"position"`
}

type UpdateChannelRequest struct {
	GroupID   int64   `json:"-"`
	ChannelID int64   `json:"-"`
	Name      *string `json:"name" validate:"omitempty,min=1,max=64"`
	Position  *int    `json:"position"`
	// NewGroupID moves the channel to another group of the same server.
	NewGroupID *int64 `json:"newGroupId,string"`
}

type PostMessageRequest struct {
	ChannelID int64  `json:"channelId,string" validate:"required"`
	Text      string `json:"text" validate:"required,max=4000"`
}
