package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/saiset-co/kodespace/config"
	"github.com/saiset-co/kodespace/health"
	"github.com/saiset-co/kodespace/service"
)

var version = "0.1.0-dev"

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "kodespace: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	configFlag := &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "path to the YAML config file",
		Value:   "config.yml",
		Sources: cli.EnvVars("KODESPACE_CONFIG"),
	}

	return &cli.Command{
		Name:           "kodespace",
		Usage:          "code snippet sharing service",
		Version:        versionString(),
		DefaultCommand: "serve",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "start the HTTP API",
				Flags: []cli.Flag{configFlag},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					svc, err := service.NewService(ctx, cmd.String("config"))
					if err != nil {
						return err
					}
					return svc.Start()
				},
			},
			{
				Name:  "check",
				Usage: "validate the config file and exit",
				Flags: []cli.Flag{configFlag},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg, _, err := config.NewLoader().LoadFromFile(ctx, cmd.String("config"))
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.Root().Writer, "%s %s: config ok (storage: %s)\n", cfg.Name, cfg.Version, cfg.Storage.Type)
					return nil
				},
			},
			{
				Name:  "version",
				Usage: "print build information",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					fmt.Fprintln(cmd.Root().Writer, versionString())
					return nil
				},
			},
		},
	}
}

func versionString() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, orUnknown(health.Commit), orUnknown(health.BuildTime))
}

func orUnknown(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
