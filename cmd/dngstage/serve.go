package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/dngstage/internal/api"
	"github.com/samcharles93/dngstage/internal/backend"
	"github.com/samcharles93/dngstage/internal/logger"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
		maxBody     int64
		settings    decodeSettings
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "listen address",
			Value:       "127.0.0.1:8080",
			Destination: &addr,
		},
		&cli.DurationFlag{
			Name:        "read-timeout",
			Usage:       "read timeout",
			Value:       30 * time.Second,
			Destination: &readTimeout,
		},
		&cli.Int64Flag{
			Name:        "max-body",
			Usage:       "largest accepted upload in bytes",
			Value:       api.DefaultMaxBodyBytes,
			Destination: &maxBody,
		},
	}
	flags = append(flags, settings.classifyFlags()...)
	flags = append(flags, settings.stageFlags()...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the classify, inspect and extract API",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			cfg := configFrom(ctx)
			applyServeConfig(cmd, cfg, &addr)
			settings.applyConfig(cmd, cfg)
			defaults, err := settings.options()
			if err != nil {
				return err
			}
			host, err := backend.New(backendName)
			if err != nil {
				return err
			}
			if host == nil {
				log.Warn("no staged backend attached; every file takes the native path")
			}

			server := api.NewServer(api.Config{
				Host:         host,
				Defaults:     defaults,
				Log:          log,
				MaxBodyBytes: maxBody,
			})
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			log.Info("starting server", "address", addr, "backend", backendName)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
