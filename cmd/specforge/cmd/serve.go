package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/specforge/specforge/internal/api"
	"github.com/specforge/specforge/internal/config"
	"github.com/specforge/specforge/internal/core"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the REST API over the workflow engine, expert hub, signal poller
and audit trail.

With routing.watch enabled the routing table reloads on file change;
invalid tables are rejected and the active table stays in place.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveHost, "host", "",
		"host address to bind to (default: configured host)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0,
		"port to listen on (default: configured port)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	d, err := initDeps()
	if err != nil {
		return err
	}
	defer d.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	h, err := d.buildHub()
	if err != nil {
		return err
	}
	board, err := d.buildBoard(ctx)
	if err != nil {
		return err
	}

	server := api.NewServer(d.engine, h, d.buildPoller(board), d.sink,
		api.WithLogger(d.logger),
		api.WithTimeout(time.Duration(d.cfg.Server.TimeoutSeconds)*time.Second),
		api.WithCORSOrigins(corsOrigins(d.cfg.Server)),
	)

	host := d.cfg.Server.Host
	if serveHost != "" {
		host = serveHost
	}
	port := d.cfg.Server.Port
	if servePort > 0 {
		port = servePort
	}
	addr := fmt.Sprintf("%s:%d", host, port)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := server.ListenAndServe(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if d.cfg.Routing.Watch {
		watcher, err := config.NewRoutingWatcher(d.cfg.Routing.File, func(table *core.RoutingTable) error {
			return h.SwapRoutingTable(table)
		}, d.logger)
		if err != nil {
			return err
		}
		group.Go(func() error {
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	fmt.Printf("specforge API listening on http://%s\n", addr)
	if err := group.Wait(); err != nil {
		return err
	}
	return nil
}

func corsOrigins(cfg config.ServerConfig) []string {
	if len(cfg.CORSOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSOrigins
}
