package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/herald/internal"
	"github.com/starford/herald/internal/publisher"
	pkgconfig "github.com/starford/herald/pkg/config"
)

var version = "dev"

func loadOptions(cmd *cli.Command, extra ...internal.Option) ([]internal.Option, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}
	return append(opts, extra...), nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func refresh(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd, internal.WithLogOutput(os.Stderr))
	if err != nil {
		return err
	}
	return internal.Refresh(ctx, os.Stdout, opts...)
}

func status(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd, internal.WithLogOutput(os.Stderr))
	if err != nil {
		return err
	}
	return internal.Status(ctx, os.Stdout, cmd.Bool("modified"), opts...)
}

func publish(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd, internal.WithLogOutput(os.Stderr))
	if err != nil {
		return err
	}
	req := publisher.Request{
		All:   cmd.Bool("all"),
		Paths: cmd.StringSlice("path"),
	}
	return internal.Publish(ctx, os.Stdout, req, opts...)
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	// stdout carries the MCP protocol.
	opts, err := loadOptions(cmd, internal.WithLogOutput(os.Stderr))
	if err != nil {
		return err
	}
	return internal.ServeMCP(ctx, opts...)
}

func main() {
	cmd := &cli.Command{
		Name:    "herald",
		Usage:   "Track publish-flagged Markdown notes and push them to a GitHub repository",
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
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API, the watcher and the reconciliation loop",
				Action: serve,
			},
			{
				Name:   "refresh",
				Usage:  "Rescan the vault once and print the result",
				Action: refresh,
			},
			{
				Name:   "status",
				Usage:  "Print the tracked notes",
				Action: status,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "modified", Aliases: []string{"m"}, Usage: "Only notes changed since their last publish"},
				},
			},
			{
				Name:   "publish",
				Usage:  "Publish modified notes, all notes, or the given paths",
				Action: publish,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "all", Usage: "Include unmodified notes"},
					&cli.StringSliceFlag{Name: "path", Aliases: []string{"p"}, Usage: "Vault-relative note path (repeatable)"},
				},
			},
			{
				Name:   "mcp",
				Usage:  "Serve the MCP tools over stdio",
				Action: mcp,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
