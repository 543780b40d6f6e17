package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/forPelevin/recut/internal/api"
	"github.com/forPelevin/recut/internal/artifacts"
	"github.com/forPelevin/recut/internal/config"
	"github.com/forPelevin/recut/internal/ledger"
	"github.com/forPelevin/recut/internal/logging"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the run ledger and EDLs over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.FromContext(cmd.Context())
			addr, _ := cmd.Flags().GetString("addr")
			logger := logging.Component(log.Logger, "api")

			store, err := artifacts.NewStore(cfg.Paths.RunsDir)
			if err != nil {
				return err
			}
			l, err := ledger.Open(cfg.Paths.LedgerPath())
			if err != nil {
				return err
			}
			defer l.Close()

			srv := &http.Server{
				Addr:              addr,
				Handler:           api.NewRouter(&api.App{Ledger: l, Store: store, Log: logger}),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				logger.Info().Str("addr", addr).Msg("listening")
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			logger.Info().Msg("shutting down")
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().String("addr", ":8080", "Listen address")
	return cmd
}
