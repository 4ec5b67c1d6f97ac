package dto

import (
	"time"

	"github.com/spec-kit/modmail-bridge/internal/domain"
)

// LoginRequest payload.
type LoginRequest struct {
	PlatformUserID string `json:"platform_user_id"`
	Password       string `json:"password"`
}

// LoginResponse payload.
type LoginResponse struct {
	Token string `json:"token"`
}

// GuildSettingRequest payload for create/update.
type GuildSettingRequest struct {
	Name         string  `json:"name"`
	CategoryID   *string `json:"category_id"`
	StaffRoleID  *string `json:"staff_role_id"`
	LogChannelID *string `json:"log_channel_id"`
	IsDefault    bool    `json:"is_default"`
}

// GuildSettingResponse payload.
type GuildSettingResponse struct {
	GuildID      string    `json:"guild_id"`
	Name         string    `json:"name"`
	CategoryID   *string   `json:"category_id,omitempty"`
	StaffRoleID  *string   `json:"staff_role_id,omitempty"`
	LogChannelID *string   `json:"log_channel_id,omitempty"`
	IsDefault    bool      `json:"is_default"`
	CreatedAt    time.Time `json:"created_at"`
}

// BlockUserRequest payload.
type BlockUserRequest struct {
	UserID string `json:"user_id"`
	Reason string `json:"reason"`
}

// BlockedUserResponse payload.
type BlockedUserResponse struct {
	UserID    string    `json:"user_id"`
	BlockedBy string    `json:"blocked_by"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// FromGuildSetting maps a domain setting to its response.
func FromGuildSetting(setting domain.GuildSetting) GuildSettingResponse {
	return GuildSettingResponse{
		GuildID:      setting.GuildID,
		Name:         setting.Name,
		CategoryID:   setting.CategoryID,
		StaffRoleID:  setting.StaffRoleID,
		LogChannelID: setting.LogChannelID,
		IsDefault:    setting.IsDefault,
		CreatedAt:    setting.CreatedAt,
	}
}

// FromBlockedUser maps a domain blocklist entry to its response.
func FromBlockedUser(blocked domain.BlockedUser) BlockedUserResponse {
	return BlockedUserResponse{
		UserID:    blocked.UserID,
		BlockedBy: blocked.BlockedBy,
		Reason:    blocked.Reason,
		CreatedAt: blocked.CreatedAt,
	}
}
