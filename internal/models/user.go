package models

// Device classes detected from the environment identification string.
const (
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceDesktop = "desktop"
)

// Presence states.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// UserProfile is one presence entry in a room.
type UserProfile struct {
	Username   string `json:"username"`
	JoinedAt   string `json:"joinedAt"`
	LastActive string `json:"lastActive"`
	Device     string `json:"device"`
	Status     string `json:"status"`
}

// Settings holds per-session user preferences.
type Settings struct {
	Theme         string `json:"theme"`
	Notifications bool   `json:"notifications"`
	Privacy       string `json:"privacy"`
}

// DefaultSettings mirrors the preferences a fresh session starts with.
func DefaultSettings() Settings {
	return Settings{Theme: "light", Notifications: true, Privacy: "public"}
}
