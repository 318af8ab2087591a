// Package constants holds defaults shared by the CLI, the config loader and
// the build information.
package constants

// DefaultEnvPath is the default path to the .env file
const DefaultEnvPath = "./.env"

// DefaultConfigPath is the default path to the config.toml file
const DefaultConfigPath = "./config.toml"

// DefaultDatabasePath is the SQLite file used when storage.path is unset.
// A leading ~/ is expanded by the config loader.
const DefaultDatabasePath = "~/.leadbot/leadbot.db"

// DefaultLockName is the run lock key of the decision cycle.
const DefaultLockName = "agent_cycle"
