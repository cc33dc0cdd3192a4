package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tbourn/go-messaging-backend/internal/config"
	"github.com/tbourn/go-messaging-backend/internal/repo"
	"github.com/tbourn/go-messaging-backend/internal/services"
	"github.com/tbourn/go-messaging-backend/internal/sysutil"
)

// errNoIdentity is returned by commands that act on behalf of a user when
// --as (or MSGCTL_AS) is missing.
var errNoIdentity = errors.New("--as is required for this command")

// app carries global flags and the engine opened for one invocation.
type app struct {
	dbPath   string
	as       string
	logLevel string

	db  *gorm.DB
	eng *services.Engine
}

// open resolves flags against the environment, opens the database and
// builds the engine. Limits come from the same variables the server reads.
func (a *app) open(cmd *cobra.Command) error {
	a.dbPath = sysutil.FirstNonEmpty(a.dbPath, os.Getenv("DB_PATH"), "app.db")
	a.as = sysutil.FirstNonEmpty(a.as, os.Getenv("MSGCTL_AS"))

	l := sysutil.NewLogger(cmd.ErrOrStderr(), sysutil.LogOptions{
		Level:  sysutil.FirstNonEmpty(a.logLevel, os.Getenv("LOG_LEVEL"), "warn"),
		Pretty: !sysutil.IsTruthy(os.Getenv("MSGCTL_JSON_LOGS")),
	})
	cmd.SetContext(l.WithContext(ctxOf(cmd)))

	db, err := repo.OpenSQLite(a.dbPath)
	if err != nil {
		return err
	}
	if err := repo.AutoMigrate(db); err != nil {
		return err
	}

	var ecfg services.EngineConfig
	if cfg, err := config.Load(); err == nil {
		ecfg = services.EngineConfig{
			MaxContentRunes: cfg.MaxContentRunes,
			EditMaxRetries:  cfg.EditMaxRetries,
			ThreadMaxDepth:  cfg.ThreadMaxDepth,
		}
	} else {
		zerolog.Ctx(cmd.Context()).Warn().Err(err).Msg("ignoring invalid environment, using engine defaults")
	}

	a.db = db
	a.eng = services.NewEngine(db, ecfg)
	return nil
}

func (a *app) close() error {
	if a.db == nil {
		return nil
	}
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// actor returns the --as user id.
func (a *app) actor() (string, error) {
	if a.as == "" {
		return "", errNoIdentity
	}
	return a.as, nil
}

func ctxOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// printJSON writes v as indented JSON to the command's stdout.
func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
