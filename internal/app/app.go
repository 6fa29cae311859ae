// Package app assembles the runtime shared by the API server and the CLI.
package app

import (
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"github.com/Wikid82/jailkeeper/internal/config"
	"github.com/Wikid82/jailkeeper/internal/database"
	"github.com/Wikid82/jailkeeper/internal/engine"
	"github.com/Wikid82/jailkeeper/internal/logger"
	"github.com/Wikid82/jailkeeper/internal/services"
)

// Runtime is everything a binary needs after startup.
type Runtime struct {
	Config   config.Config
	DB       *gorm.DB
	Client   engine.Client
	Service  *engine.ServiceControl
	Services *services.Services

	closers []io.Closer
}

// LoadEnv reads a .env file from the working directory when there is one.
func LoadEnv() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Log().WithError(err).Warn("could not read .env file")
	}
}

// Boot loads configuration and wires the stores, the engine client and the
// services. console receives log output alongside the rotated log file.
func Boot(console io.Writer) (*Runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	rt := &Runtime{Config: cfg}
	rt.closers = append(rt.closers, logger.Setup(cfg.Debug, console, cfg.LogFile))

	if err := rt.wire(engine.NewExecRunner()); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) wire(runner engine.Runner) error {
	db, err := database.Open(rt.Config.DatabasePath, rt.Config.Debug)
	if err != nil {
		return err
	}
	rt.DB = db

	rt.Client = engine.NewFail2banClient(runner, rt.Config.EngineBinary)
	rt.Service = engine.NewServiceControl(runner, rt.Config.ServiceBinary, rt.Config.ServiceName)

	var geo services.CountryLookup
	if rt.Config.GeoIPDatabase != "" {
		lookup, err := services.OpenGeoIP(rt.Config.GeoIPDatabase)
		if err != nil {
			logger.Log().WithError(err).Warn("GeoIP database unavailable, countries will be omitted")
		} else {
			geo = lookup
			rt.closers = append(rt.closers, lookup)
		}
	}

	rt.Services = services.New(rt.Config, db, rt.Client, geo)
	return nil
}

// Close releases the database, the GeoIP reader and the log rotator.
func (rt *Runtime) Close() {
	if rt.DB != nil {
		if sqlDB, err := rt.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		_ = rt.closers[i].Close()
	}
}
