package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/arbor/internal"
	pkgconfig "github.com/starford/arbor/pkg/config"
)

var version = "dev"

func runMode(mode internal.Mode) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		configPath := cmd.String("config")

		cfg := internal.NewDefaultConfig()
		if err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}

		opts := []internal.Option{
			internal.WithConfig(cfg),
			internal.WithMode(mode),
			internal.WithVersion(version),
		}

		if err := internal.Run(ctx, opts...); err != nil {
			return fmt.Errorf("app run error: %w", err)
		}

		return nil
	}
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:        "config",
		Aliases:     []string{"c"},
		Usage:       "Path to config file; built-in defaults apply when it does not exist",
		DefaultText: "config/config.yaml",
		Value:       "config/config.yaml",
		Sources:     cli.EnvVars("APP_CONFIG_FILE"),
	}
}

func main() {

	cmd := &cli.Command{
		Name:    "arbor",
		Usage:   "Note graph cache with attribute inheritance, query search and autocomplete",
		Version: version,
		Flags:   []cli.Flag{configFlag()},
		Action:  runMode(internal.ModeHTTP),
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Serve the REST API and SSE change stream (default)",
				Flags:  []cli.Flag{configFlag()},
				Action: runMode(internal.ModeHTTP),
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools on stdio",
				Flags:  []cli.Flag{configFlag()},
				Action: runMode(internal.ModeMCP),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
