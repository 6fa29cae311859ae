package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Wikid82/jailkeeper/internal/app"
	"github.com/Wikid82/jailkeeper/internal/logger"
	"github.com/Wikid82/jailkeeper/internal/metrics"
	"github.com/Wikid82/jailkeeper/internal/server"
	"github.com/Wikid82/jailkeeper/internal/version"
)

func main() {
	app.LoadEnv()

	rt, err := app.Boot(os.Stdout)
	if err != nil {
		logger.Log().WithError(err).Fatal("startup failed")
	}
	defer rt.Close()

	metrics.Register(prometheus.DefaultRegisterer)
	logger.Log().WithField("version", version.Full()).Infof("starting %s API", version.Name)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(rt.Config, rt.Services, rt.Client, rt.Service)
	if err := srv.Run(ctx); err != nil {
		logger.Log().WithError(err).Error("server error")
		rt.Close()
		os.Exit(1)
	}
}
