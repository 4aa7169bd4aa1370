// Package appinfo provides application identity constants.
// These are used across packages for consistent naming.
package appinfo

const (
	// AppName is the display name of the application.
	AppName = "metarelay"

	// DirName is the directory name used for storing application data.
	// Location: %LOCALAPPDATA%/metarelay/ (Windows) or the user config dir,
	// typically ~/.config/metarelay/ (other)
	DirName = "metarelay"

	// MutexName is the Windows mutex name for single instance control.
	// "Local\" prefix scopes the mutex to the current user session.
	MutexName = "Local\\metarelay"

	// JournalDirName is the per-repo directory that holds the event journal.
	JournalDirName = ".metarelay"

	// JournalFileName is the append-only event journal file name.
	JournalFileName = "events.jsonl"

	// DatabaseFileName is the SQLite database file name.
	DatabaseFileName = "metarelay.sqlite"

	// EnvCloudURL overrides cloud.url from the config file.
	EnvCloudURL = "METARELAY_SUPABASE_URL"

	// EnvCloudKey overrides cloud.key from the config file.
	EnvCloudKey = "METARELAY_SUPABASE_KEY"
)
