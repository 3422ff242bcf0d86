package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/reposync/reposyncd/configuration"
	"github.com/reposync/reposyncd/internal/vctx"
	"github.com/reposync/reposyncd/notify"
	"github.com/reposync/reposyncd/repo"
	"github.com/reposync/reposyncd/server"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve <config>",
		Short: "Start the server, loading configuration from the given YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(args[0])
		},
	}
}

func runServe(configPath string) error {
	f, err := os.Open(configPath)
	if err != nil {
		return fmt.Errorf("open configuration: %w", err)
	}
	defer f.Close()

	cfg, err := configuration.Parse(f)
	if err != nil {
		return fmt.Errorf("parse configuration: %w", err)
	}

	if err := vctx.ConfigureLogging(cfg.Log.Level, cfg.Log.Formatter); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}

	registry, err := repo.Build(cfg)
	if err != nil {
		return fmt.Errorf("build repository registry: %w", err)
	}
	defer registry.Close()

	broadcaster := notify.NewBroadcaster()
	defer broadcaster.Close()
	bridge := notify.NewBridge(broadcaster)

	app := server.NewApp(registry, bridge)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", app)

	logged := handlers.CombinedLoggingHandler(os.Stdout, mux)

	fmt.Fprintf(os.Stdout, "vsyncd listening on %s\n", cfg.HTTP.Addr)
	return http.ListenAndServe(cfg.HTTP.Addr, logged)
}
