// Package profile locates the on-disk state of a named profile. A profile
// groups one gateway and one operator daemon with their databases, sockets
// and logs under ~/.convsync/profiles/<name>.
package profile

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.convsync, or $CONVSYNC_HOME when set.
func BaseDir() string {
	if dir := os.Getenv("CONVSYNC_HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".convsync")
}

// Dir returns the profile directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "profiles", name)
}

// SocketPath returns the daemon's gRPC socket path.
func SocketPath(name string) string {
	return filepath.Join(Dir(name), "daemon.sock")
}

// MessagesDBPath returns the gateway's Message Store path.
func MessagesDBPath(name string) string {
	return filepath.Join(Dir(name), "messages.db")
}

// ProviderDBPath returns the whatsmeow device store path.
func ProviderDBPath(name string) string {
	return filepath.Join(Dir(name), "whatsapp.db")
}

// LogDir returns the log directory for a profile.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the log file of a component ("gateway", "daemon").
func LogPath(name, component string) string {
	return filepath.Join(LogDir(name), component+".log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the profile directory tree with proper permissions.
func EnsureDir(name string) error {
	for _, d := range []string{Dir(name), LogDir(name)} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
