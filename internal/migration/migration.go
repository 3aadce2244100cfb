package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	dispatchdomain "github.com/smallbiznis/pasarku/internal/dispatch/domain"
	"github.com/smallbiznis/pasarku/internal/events"
	merchantdomain "github.com/smallbiznis/pasarku/internal/merchant/domain"
	orderdomain "github.com/smallbiznis/pasarku/internal/order/domain"
	quotadomain "github.com/smallbiznis/pasarku/internal/quota/domain"
	"gorm.io/gorm"
)

// Models lists every table the fulfillment core owns, in dependency order.
func Models() []any {
	return []any{
		&merchantdomain.Merchant{},
		&dispatchdomain.Courier{},
		&orderdomain.Order{},
		&orderdomain.OrderItem{},
		&quotadomain.MerchantSubscription{},
		&quotadomain.QuotaLedgerEntry{},
		&quotadomain.QuotaTierRow{},
		&events.OrderEvent{},
	}
}

// Migrate brings the schema up to date. Postgres uses the versioned SQL files;
// other dialects are only meant for local runs and use AutoMigrate.
func Migrate(conn *gorm.DB, dbType string) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	if dbType != "postgres" {
		if err := conn.AutoMigrate(Models()...); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return RunMigrations(sqlDB)
}

// RunMigrations applies the embedded postgres migrations.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}
