package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/stockclass/internal/api"
	"github.com/dgallion1/stockclass/internal/classapi"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the classification filter web UI",
		Long: `Serve the classification filter in the browser. Each browser session gets
its own selection, results and edit form; idle sessions are evicted after
session_ttl. The session cookie is signed with session_secret, which must be
set (STOCKCLASS_SESSION_SECRET).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.cfg.ValidateServe(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	cmd.Flags().Int("port", 0, "listen port")
	cmd.Flags().Duration("session-ttl", 0, "idle time after which a browser session is dropped")
	return cmd
}

// serve runs the web server until ctx is done, then shuts it down.
func (a *app) serve(ctx context.Context) error {
	client := classapi.NewClient(a.cfg.APIBaseURL, a.cfg.HTTPTimeout)
	defer client.Close()

	srv, err := api.NewServer(client, a.log, a.cfg)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:         a.cfg.Addr(),
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2*a.cfg.HTTPTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info("starting stockclass", "addr", httpServer.Addr, "api_base_url", a.cfg.APIBaseURL)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Session janitor.
	g.Go(func() error {
		ticker := time.NewTicker(janitorInterval(a.cfg.SessionTTL))
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if n := srv.Sessions().Cleanup(); n > 0 {
					a.log.Info("evicted idle sessions", "count", n, "active", srv.Sessions().Len())
				}
			}
		}
	})

	// Graceful shutdown.
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		srv.Close()
		return err
	})

	return g.Wait()
}

// janitorInterval checks a few times per ttl, but not more than once a
// second.
func janitorInterval(ttl time.Duration) time.Duration {
	d := ttl / 4
	if d < time.Second {
		d = time.Second
	}
	return d
}
