package app

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"minijira/internal/config"
	"minijira/internal/db"
	"minijira/internal/engine"
	"minijira/internal/migrate"
)

// Open connects to the workspace database, applies pending migrations and
// returns a ready engine. Callers close the returned *sql.DB.
func Open(ctx context.Context, dbCfg db.Config, log *zap.Logger) (engine.Engine, *sql.DB, error) {
	conn, err := db.Open(dbCfg)
	if err != nil {
		return engine.Engine{}, nil, err
	}
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		conn.Close()
		return engine.Engine{}, nil, fmt.Errorf("migrate: %w", err)
	}
	return engine.New(conn, log), conn, nil
}

// SeedResult counts the rows Seed actually created.
type SeedResult struct {
	Departments int
	Users       int
}

// Seed creates the departments and users listed in the config. Existing
// department ids and user emails are left untouched, so running it again is
// safe.
func Seed(ctx context.Context, eng engine.Engine, cfg *config.Config) (SeedResult, error) {
	var res SeedResult
	if cfg == nil {
		return res, nil
	}
	for _, d := range cfg.Seed.Departments {
		_, created, err := eng.EnsureDepartment(ctx, d.ID, d.Name)
		if err != nil {
			return res, fmt.Errorf("seed department %s: %w", d.ID, err)
		}
		if created {
			res.Departments++
		}
	}
	for _, u := range cfg.Seed.Users {
		_, created, err := eng.EnsureUser(ctx, engine.SeedUserOptions{
			Email:        u.Email,
			Password:     u.Password,
			Name:         u.Name,
			DepartmentID: u.Department,
			Roles:        u.Roles,
		})
		if err != nil {
			return res, fmt.Errorf("seed user %s: %w", u.Email, err)
		}
		if created {
			res.Users++
		}
	}
	return res, nil
}
