package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/nutrilens-cli/internal/api"
)

var (
	serveAddr     string
	serveProvider string
	serveModel    string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve records, statistics and insights over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("addr") {
			c.ListenAddr = serveAddr
		}
		ctx := cmd.Context()
		store, err := openStore(ctx, c, log)
		if err != nil {
			return err
		}
		defer store.Close()

		gen, model, err := buildGenerator(c, runtimeOptions{ProviderFlag: serveProvider, ModelFlag: serveModel}, log)
		if err != nil {
			return err
		}
		srv := &http.Server{
			Addr:              c.ListenAddr,
			Handler:           api.NewServer(store, newOrchestrator(c, store, gen, model, log), log),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() { errCh <- srv.ListenAndServe() }()
		log.WithField("addr", c.ListenAddr).Info("listening")
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Serving on http://%s\n", c.ListenAddr)

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides listen_addr)")
	serveCmd.Flags().StringVar(&serveProvider, "provider", "", "openrouter or ollama (overrides default_provider)")
	serveCmd.Flags().StringVar(&serveModel, "model", "", "model name (overrides default_model)")
}
