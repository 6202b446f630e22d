package types

// UserID identifies a user on the community platform
type UserID string

func (id UserID) String() string {
	return string(id)
}

// GuildID identifies a community (guild) on the platform
type GuildID string

func (id GuildID) String() string {
	return string(id)
}

// Handle is the user's canonical identifier at the external organization source
type Handle string

func (h Handle) String() string {
	return string(h)
}

// ChannelID identifies a notification channel
type ChannelID string

func (id ChannelID) String() string {
	return string(id)
}
