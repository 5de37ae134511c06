package core

// Config is runtime configuration for the CLI.
type Config struct {
	Broker    string
	Identity  string
	TopicBase string
	// GuildID is the default guild when a command omits --guild.
	GuildID int64
}
