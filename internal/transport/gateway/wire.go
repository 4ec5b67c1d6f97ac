package gateway

import (
	"encoding/json"
	"time"
)

// frame is the envelope for every gateway exchange in either direction.
type frame struct {
	Op    string          `json:"op"`
	Type  string          `json:"t,omitempty"`
	Seq   int64           `json:"seq,omitempty"`
	ReqID string          `json:"req_id,omitempty"`
	Data  json.RawMessage `json:"d,omitempty"`
	Error string          `json:"error,omitempty"`
}

// Envelope opcodes.
const (
	opIdentify  = "identify"
	opReady     = "ready"
	opHeartbeat = "heartbeat"
	opDispatch  = "dispatch"
	opRequest   = "request"
	opResponse  = "response"
)

// Dispatch event types.
const (
	eventDirectMessage  = "DIRECT_MESSAGE"
	eventChannelMessage = "CHANNEL_MESSAGE"
	eventComponent      = "COMPONENT_SELECT"
	eventGuildAdd       = "GUILD_ADD"
	eventGuildRemove    = "GUILD_REMOVE"
)

// Request methods.
const (
	methodFetchUser     = "user.fetch"
	methodFetchMember   = "member.fetch"
	methodSendDirect    = "dm.send"
	methodCreateChannel = "channel.create"
	methodFetchChannel  = "channel.fetch"
	methodDeleteChannel = "channel.delete"
	methodSendChannel   = "channel.send"
	methodReact         = "message.react"
)

type identifyPayload struct {
	Token string `json:"token"`
}

type readyPayload struct {
	Bot struct {
		ID        string    `json:"id"`
		Username  string    `json:"username"`
		AvatarURL string    `json:"avatar_url"`
		CreatedAt time.Time `json:"created_at"`
	} `json:"bot"`
	GuildIDs           []string `json:"guild_ids"`
	HeartbeatIntervalS int      `json:"heartbeat_interval_s"`
}

type wireUser struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	AvatarURL string    `json:"avatar_url"`
	CreatedAt time.Time `json:"created_at"`
	IsBot     bool      `json:"is_bot"`
}

type wireMember struct {
	UserID  string   `json:"user_id"`
	RoleIDs []string `json:"role_ids"`
	IsAdmin bool     `json:"is_admin"`
}

type wireChannel struct {
	ID       string `json:"id"`
	GuildID  string `json:"guild_id"`
	Name     string `json:"name"`
	Topic    string `json:"topic"`
	ParentID string `json:"parent_id"`
}

type wireMessageEvent struct {
	MessageID   string    `json:"message_id"`
	ChannelID   string    `json:"channel_id"`
	GuildID     string    `json:"guild_id"`
	Author      wireUser  `json:"author"`
	Body        string    `json:"body"`
	Attachments []string  `json:"attachments"`
	Timestamp   time.Time `json:"timestamp"`
}

type wireComponentEvent struct {
	PromptID  string `json:"prompt_id"`
	ActorID   string `json:"actor_id"`
	ChoiceID  string `json:"choice_id"`
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
}

type wireGuildEvent struct {
	GuildID string `json:"guild_id"`
}

type sendRequest struct {
	TargetID string       `json:"target_id"`
	Content  string       `json:"content"`
	Fields   []wireField  `json:"fields,omitempty"`
	ImageURL string       `json:"image_url,omitempty"`
	Buttons  []wireButton `json:"buttons,omitempty"`
}

type wireField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type wireButton struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type sendResponse struct {
	MessageID string `json:"message_id"`
}

type fetchMemberRequest struct {
	GuildID string `json:"guild_id"`
	UserID  string `json:"user_id"`
}

type fetchByIDRequest struct {
	ID string `json:"id"`
}

type deleteChannelRequest struct {
	ChannelID string `json:"channel_id"`
	Reason    string `json:"reason"`
}

type createChannelRequest struct {
	GuildID     string   `json:"guild_id"`
	Name        string   `json:"name"`
	Topic       string   `json:"topic"`
	ParentID    string   `json:"parent_id,omitempty"`
	AllowRoles  []string `json:"allow_roles,omitempty"`
	AllowUsers  []string `json:"allow_users,omitempty"`
	DenyDefault bool     `json:"deny_default"`
}

type reactRequest struct {
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
}
