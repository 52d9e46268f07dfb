package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	httpDelivery "github.com/shelfscan/backend/internal/delivery/http"
	"github.com/shelfscan/backend/internal/infrastructure/retailer"
	"github.com/shelfscan/backend/internal/usecase"
	"github.com/spf13/cobra"
)

func (a *app) newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve scrape and crawl progress over HTTP",
		Example: `  shelfscan serve --port 8080
  curl localhost:8080/api/v1/retailers/giant/progress`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return a.runServe(ctx)
		},
	}
	cmd.Flags().String("port", "", "listen port (default 8080)")
	a.v.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	return cmd
}

func (a *app) runServe(ctx context.Context) error {
	log.Printf("Starting shelfscan status API v%s", httpDelivery.Version)
	log.Printf("Environment: %s", a.cfg.Server.Environment)
	log.Printf("Data dir: %s", a.cfg.DataDir)

	handler := httpDelivery.NewHandler(usecase.NewStatusService(retailer.Repositories(a.cfg.DataDir)))
	router := httpDelivery.SetupRouter(a.cfg, handler)

	addr := fmt.Sprintf(":%s", a.cfg.Server.Port)
	server := &http.Server{Addr: addr, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	errs := make(chan error, 1)
	go func() {
		log.Printf("Server listening on %s", addr)
		errs <- server.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
		log.Printf("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
