//go:build prod

package database

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"memit/internal/logging"
)

// GetDefaultDBPath returns the database path for production mode.
// In production, the database is stored in the user's config directory.
func GetDefaultDBPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		logging.L().Warn("user config dir unavailable, using working directory", zap.Error(err))
		return "memit.db"
	}

	appDir := filepath.Join(configDir, "memit")
	if err := os.MkdirAll(appDir, 0o755); err != nil {
		logging.L().Warn("create app config dir failed, using working directory", zap.Error(err))
		return "memit.db"
	}

	return filepath.Join(appDir, "memit.db")
}

func IsDevelopment() bool {
	return false
}
