package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Aafimalek/animation-genai/server"
	"github.com/Aafimalek/animation-genai/workspace"
)

var (
	serveAddr string
	olderThan time.Duration

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE:  runServe,
	}

	pruneCmd = &cobra.Command{
		Use:   "prune",
		Short: "Remove stale workspaces",
		RunE:  runPrune,
	}
)

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default server.addr)")
	pruneCmd.Flags().DurationVar(&olderThan, "older-than", 0, "minimum age to prune (default workspace.max_age)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	loop, err := buildLoop(ctx, cfg, true)
	if err != nil {
		return err
	}
	api, err := server.New(server.Options{
		Runner:         loop,
		MaxAttempts:    cfg.Generation.MaxAttempts,
		AutoFix:        cfg.Generation.AutoFix,
		MaxConcurrent:  cfg.Server.MaxConcurrent,
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxResults:     cfg.Server.MaxResults,
		ResultTTL:      cfg.Workspace.MaxAge,
		Logger:         logger.Named("server"),
	})
	if err != nil {
		return err
	}

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ws := newWorkspaces(cfg)
	prune(ws, cfg.Workspace.MaxAge)

	g, gctx := errgroup.WithContext(ctx)
	// In-flight generations are cancelled on shutdown, which kills their renders.
	httpSrv.BaseContext = func(net.Listener) context.Context { return gctx }
	g.Go(func() error {
		logger.Info("starting web server", zap.String("addr", addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err := httpSrv.Shutdown(shutdownCtx)
		api.Wait()
		return err
	})
	g.Go(func() error {
		if cfg.Workspace.MaxAge <= 0 {
			return nil
		}
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				prune(ws, cfg.Workspace.MaxAge)
				api.PruneResults()
			}
		}
	})
	return g.Wait()
}

func prune(ws *workspace.Manager, maxAge time.Duration) []string {
	if maxAge <= 0 {
		return nil
	}
	removed, err := ws.Prune(maxAge)
	if err != nil {
		logger.Warn("failed to prune workspaces", zap.String("root", ws.Root), zap.Error(err))
	}
	return removed
}

func runPrune(cmd *cobra.Command, args []string) error {
	if err := cfg.ValidateRender(); err != nil {
		return err
	}
	age := cfg.Workspace.MaxAge
	if olderThan > 0 {
		age = olderThan
	}
	if age <= 0 {
		return fmt.Errorf("nothing to prune: max age is %v", age)
	}
	removed, err := newWorkspaces(cfg).Prune(age)
	if err != nil {
		return err
	}
	for _, dir := range removed {
		fmt.Fprintln(cmd.OutOrStdout(), dir)
	}
	return nil
}
