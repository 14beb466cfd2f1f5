// Package tasks implements scheduled maintenance tasks for the bot.
// It includes task definitions, dependencies, and registration mechanisms.
package tasks

import (
	"log/slog"

	"github.com/juliuspc/broadcastbot/internal/config"
	"github.com/juliuspc/broadcastbot/internal/database"
)

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger *slog.Logger
	Store  database.Store
	Config *config.Config
}
