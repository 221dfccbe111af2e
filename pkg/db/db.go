package db

import (
	"sync"

	"github.com/gantry-io/gantry/env"
	"github.com/gantry-io/gantry/internal/models"
	"github.com/gantry-io/gantry/pkg/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var (
	conn *gorm.DB
	once sync.Once
)

// Connection returns the process-wide gorm connection,
// opening it on first use according to the environment.
func Connection() *gorm.DB {
	once.Do(func() {
		var err error

		switch env.Variables().DatabaseType {
		case "postgres":
			conn, err = gorm.Open(
				postgres.Open(env.Variables().DatabaseDSN),
				&gorm.Config{},
			)
		case "sqlite":
			fallthrough
		default:
			conn, err = gorm.Open(
				sqlite.Open(env.Variables().DatabaseDSN),
				&gorm.Config{},
			)
		}

		if err != nil {
			log.Fatal("failed to connect to database", "error", err)
		}
	})

	return conn
}

// Migrate creates or updates the schema for every gantry model.
func Migrate() error {
	return Connection().AutoMigrate(models.All()...)
}
