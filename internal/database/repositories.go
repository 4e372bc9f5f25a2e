package database

import (
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/jobwatch/internal/database/repositories"
	"github.com/frostdev-ops/jobwatch/internal/database/sqlite"
)

// Repositories holds all repository instances
type Repositories struct {
	AlertEvents repositories.AlertEventRepository
}

// NewRepositories creates all repository instances
func NewRepositories(db *sql.DB, logger *logrus.Logger) *Repositories {
	dbx := sqlx.NewDb(db, "sqlite")
	return &Repositories{
		AlertEvents: sqlite.NewAlertEventRepository(dbx, logger),
	}
}
