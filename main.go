package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/moyoez/codesync-go/api"
	"github.com/moyoez/codesync-go/auth"
	"github.com/moyoez/codesync-go/broker"
	"github.com/moyoez/codesync-go/gateway"
	"github.com/moyoez/codesync-go/presence"
	"github.com/moyoez/codesync-go/session"
	"github.com/moyoez/codesync-go/store"
	"github.com/moyoez/codesync-go/tool"
)

func main() {
	cfg := tool.SetFlags()

	// initialize logger
	tool.InitLogger()
	tool.SetLogMode(cfg.Log)

	appCfg, err := tool.LoadConfig(cfg.UseConfigPath)
	if err != nil {
		tool.DefaultLogger.Fatalf("%v", err)
	}
	tool.ApplyFlags(&appCfg, cfg)

	var st store.Store
	if appCfg.Database.Path != "" {
		st, err = store.OpenSQLite(appCfg.Database.Path)
		if err != nil {
			tool.DefaultLogger.Fatalf("open database: %v", err)
		}
		tool.DefaultLogger.Infof("[Store] using sqlite database %s", appCfg.Database.Path)
	} else {
		st = store.NewMemory()
		tool.DefaultLogger.Info("[Store] no database configured, state is kept in memory")
	}

	b := broker.New()
	tracker := presence.New(b)

	opts := session.OptionsFromConfig(appCfg)
	opts.InUse = func(publicID string) bool { return tracker.Count(publicID) > 0 }
	registry := session.NewRegistry(opts, b, st)
	registry.OnTeardown(b.ReleaseSession)
	registry.OnTeardown(tracker.Drop)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if n, err := registry.Restore(ctx); err != nil {
		tool.DefaultLogger.Errorf("[Registry] restore sessions: %v", err)
	} else if n > 0 {
		tool.DefaultLogger.Infof("[Registry] restored %d sessions", n)
	}

	authn := auth.New(st, appCfg.Auth)
	gw := gateway.New(appCfg.WebSocket, registry, b, tracker, authn)
	server := api.NewServer(appCfg, api.Deps{
		Registry: registry,
		Broker:   b,
		Presence: tracker,
		Auth:     authn,
		Gateway:  gw,
	})

	registryDone := make(chan struct{})
	go func() {
		defer close(registryDone)
		registry.Run(ctx)
	}()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	select {
	case <-ctx.Done():
		tool.DefaultLogger.Info("Shutting down")
	case err := <-serverErr:
		if err != nil {
			tool.DefaultLogger.Errorf("API server stopped: %v", err)
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		tool.DefaultLogger.Errorf("API server shutdown: %v", err)
	}
	<-registryDone
	registry.Close()
	if err := st.Close(); err != nil {
		tool.DefaultLogger.Errorf("[Store] close: %v", err)
	}
}
