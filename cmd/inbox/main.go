package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/Vasu1712/scenyx-inbox/internal/client"
	"github.com/Vasu1712/scenyx-inbox/internal/config"
	"github.com/Vasu1712/scenyx-inbox/internal/inbox"
)

type contextKey int

const (
	contextKeyConfig contextKey = iota
	contextKeyEngine
)

func getConfig(ctx *cli.Context) *config.Config {
	return ctx.Context.Value(contextKeyConfig).(*config.Config)
}

func getEngine(ctx *cli.Context) *inbox.Engine {
	return ctx.Context.Value(contextKeyEngine).(*inbox.Engine)
}

func prepareApp(ctx *cli.Context) error {
	cfg, err := config.Load(ctx.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if ctx.IsSet("token") {
		cfg.Inbox.Token = ctx.String("token")
	}
	if ctx.IsSet("base-url") {
		cfg.Inbox.BaseURL = ctx.String("base-url")
	}
	if cfg.Inbox.Token == "" {
		return fmt.Errorf("no access token: set inbox.token, SCENYX_INBOX_TOKEN or --token")
	}
	ctx.Context = context.WithValue(ctx.Context, contextKeyConfig, cfg)
	return nil
}

// requiresEngine connects the inbox engine and loads the conversation list.
func requiresEngine(ctx *cli.Context) error {
	cfg := getConfig(ctx)
	log := cfg.Log.NewLogger(os.Stderr)
	e, err := newEngine(cfg, log)
	if err != nil {
		return err
	}
	if err := e.Load(ctx.Context); err != nil {
		e.Close()
		return fmt.Errorf("failed to load conversations: %w", err)
	}
	ctx.Context = context.WithValue(ctx.Context, contextKeyEngine, e)
	return nil
}

func newEngine(cfg *config.Config, log zerolog.Logger) (*inbox.Engine, error) {
	conn := client.NewConn(cfg.Inbox.BaseURL, cfg.Inbox.Token, cfg.Inbox.RequestTimeout)
	return inbox.NewEngine(conn,
		client.NewDurable(conn),
		client.NewPush(conn, cfg.Inbox.ReconnectDelay, log),
		client.NewBlobs(conn),
		client.NewNames(conn),
		inbox.Options{
			HistoryLimit:       cfg.Inbox.HistoryLimit,
			SearchDebounce:     cfg.Inbox.SearchDebounce,
			NameTimeout:        cfg.Inbox.NameTimeout,
			PublishRetries:     cfg.Inbox.PublishRetries,
			RequirePushConfirm: cfg.Inbox.RequirePushConfirm,
		},
		log)
}

var listCommand = &cli.Command{
	Name:   "list",
	Usage:  "Print the conversation list and exit",
	Before: requiresEngine,
	Action: func(ctx *cli.Context) error {
		e := getEngine(ctx)
		defer e.Close()
		newConsole(e, os.Stdout).printList()
		return nil
	},
}

var chatCommand = &cli.Command{
	Name:   "chat",
	Usage:  "Open the interactive inbox",
	Before: requiresEngine,
	Action: func(ctx *cli.Context) error {
		e := getEngine(ctx)
		defer e.Close()
		runCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt)
		defer stop()
		return newConsole(e, os.Stdout).Run(runCtx, os.Stdin)
	},
}

func main() {
	app := &cli.App{
		Name:  "scenyx-inbox",
		Usage: "Seller inbox for store and customer conversations",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML config file",
				EnvVars: []string{"SCENYX_CONFIG"},
			},
			&cli.StringFlag{Name: "token", Usage: "Access token, overrides inbox.token"},
			&cli.StringFlag{Name: "base-url", Usage: "Server URL, overrides inbox.base_url"},
		},
		Before: prepareApp,
		Commands: []*cli.Command{
			chatCommand,
			listCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
