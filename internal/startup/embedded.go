package startup

import (
	"fmt"
	"os"
	"path/filepath"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"

	"github.com/directchat/internal/logger"
)

// StartEmbeddedPostgres boots a local PostgreSQL under ./.pgdata for -dev
// and returns it with the URL to connect to.
func StartEmbeddedPostgres() (*embeddedpostgres.EmbeddedPostgres, string, error) {
	const (
		port     = 5432
		user     = "directchat"
		password = "directchat_dev"
		database = "directchat"
	)

	dataDir := filepath.Join(".", ".pgdata")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, "", fmt.Errorf("create pgdata dir: %w", err)
	}

	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(port).
			Username(user).
			Password(password).
			Database(database).
			DataPath(dataDir).
			RuntimePath(filepath.Join(os.TempDir(), "embedded-pg-runtime")),
	)

	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, "", fmt.Errorf("start: %w", err)
	}
	url := fmt.Sprintf("postgres://%s:%s@localhost:%d/%s?sslmode=disable", user, password, port, database)
	logger.Infof("embedded PostgreSQL running on port %d", port)
	return db, url, nil
}
