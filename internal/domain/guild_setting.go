package domain

import "time"

// GuildSetting holds per-destination configuration for the bridge. At most
// one record carries IsDefault=true; setting a new default clears the old one.
type GuildSetting struct {
	GuildID      string
	Name         string
	CategoryID   *string
	StaffRoleID  *string
	LogChannelID *string
	IsDefault    bool
	CreatedAt    time.Time
}
