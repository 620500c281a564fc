// Package cmd wires the CLI entrypoints: the server itself and the terminal
// dashboard that watches a running instance.
package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"github.com/urfave/cli/v2"

	"github.com/syntalk/im-server/config"
)

const ServiceName = "im-server"

// Populated by the linker on release builds.
var (
	version = "0.0.0"
	commit  = "dev"
)

func Run() error {
	app := &cli.App{
		Name:    ServiceName,
		Usage:   "Real-time instant messaging server",
		Version: version + " (" + commit + ")",
		Commands: []*cli.Command{
			serverCmd(),
			topCmd(),
		},
	}

	return app.Run(os.Args)
}

func serverCmd() *cli.Command {
	return &cli.Command{
		Name:    "server",
		Aliases: []string{"s"},
		Usage:   "Run the IM server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config_file",
				Aliases: []string{"c"},
				Usage:   "Path to the configuration file",
			},
		},
		Action: func(c *cli.Context) error {
			// The CLI flag is replayed through a pflag set so it takes the
			// flag slot in viper's precedence chain.
			flags := pflag.NewFlagSet(ServiceName, pflag.ContinueOnError)
			flags.String("config_file", "", "path to the configuration file")
			if file := c.String("config_file"); file != "" {
				if err := flags.Set("config_file", file); err != nil {
					return err
				}
			}

			cfg, err := config.LoadConfig(flags)
			if err != nil {
				return err
			}

			app := NewApp(cfg, flags)
			if err := app.Start(c.Context); err != nil {
				return err
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop

			slog.Info("shutting down", slog.Duration("grace", cfg.Service.ShutdownTimeout))
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeout)
			defer cancel()
			return app.Stop(ctx)
		},
	}
}
