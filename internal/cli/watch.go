package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Mcdamien/HenscoPOS-sub000/internal/connectivity"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/live"
)

const shutdownTimeout = 5 * time.Second

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the device in sync and serve live queries",
		Long: `Check the server, drain the queue whenever it comes back online, and
serve live query results to presentation clients:

  GET /live/{query}?store=ID   websocket stream of a live query
  GET /status                  connectivity and queue counts

Press Ctrl-C to stop.`,
		Args: cobra.NoArgs,
		RunE: withApp(rootOpts, func(ctx context.Context, a *app, out *OutputFormatter, _ []string) error {
			if addr == "" {
				addr = a.cfg.Listen.Addr
			}
			return runWatch(ctx, a, out, addr)
		}),
	}
	cmd.Flags().StringVar(&addr, "listen", "", "address for live queries (default listen.addr)")
	return cmd
}

func runWatch(parent context.Context, a *app, out *OutputFormatter, addr string) error {
	mon, err := connectivity.New(a.engine, a.client, a.hub,
		connectivity.WithInterval(a.cfg.Sync.CheckInterval),
		connectivity.WithAutoSync(a.cfg.Sync.AutoSync),
		connectivity.WithLogger(a.log))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start monitor", err)
	}
	defer mon.Close()

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			a.log.Info("received signal, shutting down", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	srv := &http.Server{
		Addr:              addr,
		Handler:           watchRouter(a, mon),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if a.cfg.Server.URL == "" {
			a.log.Warn("server.url is not configured, staying offline")
			<-gctx.Done()
			return nil
		}
		return mon.Run(gctx)
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen %s: %w", addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, done := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer done()
		return srv.Shutdown(shutdownCtx)
	})

	a.log.Info("watching", zap.String("listen", addr), zap.String("server", a.cfg.Server.URL))
	out.VerboseLog("serving live queries on %s", addr)
	fmt.Fprintf(out.Writer, "Watching %s. Live queries on http://%s/live/\n", a.cfg.Server.URL, addr)
	fmt.Fprintln(out.Writer, "Press Ctrl-C to stop.")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "watch stopped", err)
	}
	a.log.Info("watch stopped gracefully")
	return nil
}

func watchRouter(a *app, mon *connectivity.Monitor) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/live/*name", gin.WrapH(live.NewHandler(a.hub, a.log)))
	r.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, mon.Status())
	})
	return r
}
