package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/Vasu1712/scenyx-inbox/internal/auth"
	"github.com/Vasu1712/scenyx-inbox/internal/config"
	"github.com/Vasu1712/scenyx-inbox/internal/server"
)

type contextKey int

const contextKeyConfig contextKey = iota

func getConfig(ctx *cli.Context) *config.Config {
	return ctx.Context.Value(contextKeyConfig).(*config.Config)
}

func prepareApp(ctx *cli.Context) error {
	cfg, err := config.Load(ctx.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	ctx.Context = context.WithValue(ctx.Context, contextKeyConfig, cfg)
	return nil
}

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "Run the DM API, push hub, upload store and name directory",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "addr", Usage: "Listen address, overrides server.addr"},
	},
	Action: cmdServe,
}

func cmdServe(ctx *cli.Context) error {
	cfg := getConfig(ctx)
	if ctx.IsSet("addr") {
		cfg.Server.Addr = ctx.String("addr")
	}
	log := cfg.Log.NewLogger(os.Stderr)

	runCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(runCtx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := srv.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close backends")
		}
	}()
	log.Info().
		Str("storage", cfg.Storage.Driver).
		Str("feed", cfg.Feed.Driver).
		Str("names", cfg.Names.Driver).
		Msg("Backends ready")
	return srv.Run(runCtx)
}

var tokenCommand = &cli.Command{
	Name:      "token",
	Usage:     "Issue an access token for a user id",
	ArgsUsage: "USER_ID",
	Action:    cmdToken,
}

func cmdToken(ctx *cli.Context) error {
	if ctx.NArg() == 0 {
		return fmt.Errorf("you must specify a user id")
	}
	cfg := getConfig(ctx)
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is not configured")
	}
	token, err := auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL).Issue(ctx.Args().Get(0))
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func main() {
	app := &cli.App{
		Name:  "scenyx-server",
		Usage: "Collaborator services for the scenyx seller inbox",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML config file",
				EnvVars: []string{"SCENYX_CONFIG"},
			},
		},
		Before: prepareApp,
		Commands: []*cli.Command{
			serveCommand,
			tokenCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
