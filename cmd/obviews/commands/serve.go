package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/l3aro/obviews/internal/server"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve <executable>",
		Short: "Serve a task to a browser",
		Long: `Starts the HTTP server for the task. It runs until interrupted or
until /api/stop is requested.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.env(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				e.cfg.Host = host
			}
			if cmd.Flags().Changed("port") {
				e.cfg.Port = port
			}
			if err := e.cfg.Validate(); err != nil {
				return err
			}

			tk, err := opts.openTask(e, args[0])
			if err != nil {
				return err
			}
			l, err := e.layout()
			if err != nil {
				return err
			}

			srv := server.New(server.Options{
				Application:  "obviews " + Version,
				Task:         tk,
				Layout:       l,
				Palette:      e.palette,
				DefaultViews: e.cfg.DefaultViews,
				CacheSize:    e.cfg.CacheSize,
				Logger:       e.logger,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(cmd.OutOrStdout(), "Serving %s on http://%s/\n", tk.Name, e.cfg.Addr())
			return srv.ListenAndServe(ctx, e.cfg.Addr())
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Listen host (default from config)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port (default from config)")
	return cmd
}
