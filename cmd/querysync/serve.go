package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/arthur-debert/querysync/querysync/server"
)

func (cli *CLI) addServeCommand() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the list views over HTTP",
		Long: `Serve the page routes (/, /products, /users), the list API
(/api/{dataset}), the state routes (/state{path}), /healthz and /metrics.

Every browser session gets its own query state, persisted in the cache file
under the key query-store:<session id>.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.runServe(cmd)
		},
	}
	cmd.Flags().String("addr", ":8080", "Listen address")
	cmd.Flags().Duration("dedup-interval", server.DefaultDedupInterval, "Reuse identical list responses for this long (0 disables)")
	cmd.Flags().Duration("session-ttl", server.DefaultSessionTTL, "Keep idle sessions in memory for this long")
	cmd.Flags().Duration("ready-wait", server.DefaultReadyWait, "Wait this long for a session to load before answering 503")
	addCatalogFlags(cmd.Flags())
	cli.rootCmd.AddCommand(cmd)
}

func (cli *CLI) runServe(cmd *cobra.Command) error {
	reg, err := cli.registry()
	if err != nil {
		return err
	}
	cat, err := cli.catalog()
	if err != nil {
		return WrapError("build datasets", err)
	}
	st := cli.storage()
	defer func() { _ = st.Close() }()

	srv := server.New(reg, cat, st,
		server.WithLogger(cli.logger),
		server.WithDedupInterval(cli.viperInst.GetDuration("dedup-interval")),
		server.WithSessionTTL(cli.viperInst.GetDuration("session-ttl")),
		server.WithReadyWait(cli.viperInst.GetDuration("ready-wait")),
		server.WithShutdownTimeout(server.DefaultShutdownTimeout),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := cli.viperInst.GetString("addr")
	cmd.Printf("Serving on %s (state in %s)\n", addr, st.Path())
	if err := srv.Run(ctx, addr); err != nil {
		return &CLIError{
			Operation:   "serve",
			Cause:       "server stopped",
			Details:     err.Error(),
			Suggestions: []string{"Check that " + addr + " is free", CommonSuggestions.CheckConfig},
			Underlying:  err,
		}
	}
	return nil
}
