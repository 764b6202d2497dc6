package migration

import (
	"github.com/carebase/planmart/internal/config"
	"github.com/carebase/planmart/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		// The embedded migrations are Postgres DDL. Other dialects are only
		// used in tests, which create their schema with AutoMigrate.
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		}

		if cfg.SeedDemoData {
			return seed.EnsureDemoPlans(conn)
		}
		return nil
	}),
)
