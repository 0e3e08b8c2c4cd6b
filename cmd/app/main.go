package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/nodeflow/internal"
	"github.com/starford/nodeflow/internal/apperr"
	pkgconfig "github.com/starford/nodeflow/pkg/config"
)

var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadWithDefaults(cmd.String("config"), "", cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// stdout carries the MCP protocol.
	logger := internal.NewLogger(os.Stderr, cfg.App.LogLevel)
	slog.SetDefault(logger)

	return internal.RunMCP(ctx,
		internal.WithConfig(cfg),
		internal.WithLogger(logger),
		internal.WithVersion(version),
	)
}

// withComponents runs fn against freshly opened components, logging to
// stderr so stdout stays machine-readable.
func withComponents(cmd *cli.Command, fn func(c *internal.Components) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := internal.NewLogger(os.Stderr, slog.LevelWarn)
	if cmd.Bool("verbose") {
		logger = internal.NewLogger(os.Stderr, cfg.App.LogLevel)
	}

	c, err := internal.Open(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	err = fn(c)
	if apperr.IsRedirect(err) {
		return fmt.Errorf("%w (run 'nodeflow login' to sign in)", err)
	}
	return err
}

func main() {
	cmd := &cli.Command{
		Name:    "nodeflow",
		Usage:   "Flow editor companion: local flow server, MCP tools and backend client",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Log at the configured level instead of warnings only (client commands)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the local flow server",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the flow tools over MCP stdio",
				Action: serveMCP,
			},
			newLoginCommand(),
			newRegisterCommand(),
			newLogoutCommand(),
			newVerifyCommand(),
			newProjectsCommand(),
			newPromptsCommand(),
			newRunCommand(),
			newAskCommand(),
			newNodeTypesCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		if errors.Is(err, apperr.ErrAuthExpired) || errors.Is(err, apperr.ErrUnauthenticated) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
