package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/tgstep/internal/api"
	"github.com/samcharles93/tgstep/internal/inference"
)

func serveCmd() *cli.Command {
	var (
		addr             string
		readTimeout      time.Duration
		maxNewTokens     int64
		maxStopSequences int64
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the generate and OpenAI-compatible endpoints",
		Flags: append(append(commonModelFlags(), loggingFlags()...),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read header timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
			&cli.Int64Flag{
				Name:        "max-new-tokens",
				Usage:       "largest max_new_tokens a request may ask for",
				Value:       512,
				Destination: &maxNewTokens,
			},
			&cli.Int64Flag{
				Name:        "max-stop-sequences",
				Usage:       "most stop sequences a request may carry",
				Value:       4,
				Destination: &maxStopSequences,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyServeConfig(cmd, LoadConfig(), &addr, &maxNewTokens, &maxStopSequences)
			ctx, log := setupLogger(ctx)

			res, layout, err := loadEngine(ctx, log)
			if err != nil {
				return err
			}
			defer func() {
				if err := res.Engine.Close(); err != nil {
					log.Warn("close engine", "error", err)
				}
			}()

			server := api.NewServer(res.Engine, api.Config{
				ModelID:          res.ModelID,
				Shards:           layout.WorldSize,
				Defaults:         res.GenerationDefaults,
				Formatter:        inference.ChatFormatterFromEnv(os.Getenv),
				MaxNewTokens:     int(maxNewTokens),
				MaxStopSequences: int(maxStopSequences),
				Log:              log,
			})
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)

			log.Info("starting server", "address", addr, "model", res.ModelID, "shards", layout.WorldSize, "rank", layout.Rank)
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
