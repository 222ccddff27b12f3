// Package main runs the patient queue sync agent: it keeps the local
// pending-action store drained against the remote API, maintains the
// push notification connection, and exposes the in-memory queue to
// embedding frontends.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/careflow/patientqueue/internal/api"
	"github.com/careflow/patientqueue/internal/config"
	"github.com/careflow/patientqueue/internal/connectivity"
	"github.com/careflow/patientqueue/internal/logging"
	"github.com/careflow/patientqueue/internal/models"
	"github.com/careflow/patientqueue/internal/notify"
	"github.com/careflow/patientqueue/internal/queue"
	"github.com/careflow/patientqueue/internal/store"
	"github.com/careflow/patientqueue/internal/syncengine"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the agent configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Error("loading configuration failed", err, map[string]interface{}{"path": *configPath})
		os.Exit(1)
	}

	logging.Setup(os.Stdout, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	actionStore, err := store.Open(cfg.DataDir)
	if err != nil {
		logging.Error("opening pending-action store failed", err, map[string]interface{}{"data_dir": cfg.DataDir})
		os.Exit(1)
	}
	defer actionStore.Close()

	client := api.New(cfg.API.BaseURL, cfg.APITimeout())
	client.SetCredentials(api.Credentials{UserID: cfg.Auth.UserID, Token: cfg.Auth.Token})

	feed := notify.NewFeed()
	engine := syncengine.New(actionStore, client, feed)

	runSync := func() {
		if _, err := engine.Sync(ctx); err != nil {
			logging.Debug("sync trigger skipped or failed", map[string]interface{}{"error": err.Error()})
		}
	}

	monitor := connectivity.New(client.Health, cfg.ProbeInterval(), runSync)

	queueSvc := queue.New(monitor, client, actionStore)
	queueSvc.Subscribe(func(patients []models.Patient) {
		logging.Debug("queue updated", map[string]interface{}{"patients": len(patients)})
	})

	push := notify.NewPushClient(notify.PushConfig{
		URL:                  cfg.WebSocket.URL,
		Credentials:          client.Credentials(),
		ReconnectInterval:    cfg.ReconnectInterval(),
		MaxReconnectAttempts: cfg.WebSocket.MaxReconnectAttempts,
	}, feed)

	monitor.Subscribe(func(online bool) {
		if online {
			push.HandleOnline()
		} else {
			push.HandleOffline()
		}
	})

	monitor.Start(ctx)
	monitor.StartPeriodicSync(cfg.SyncInterval())
	push.Connect()

	// Seed the in-memory queue from the server if it is reachable.
	if patients, err := client.FetchQueue(ctx); err == nil {
		queueSvc.Load(patients)
	} else {
		logging.Warn("initial queue fetch failed", map[string]interface{}{"error": err.Error()})
	}

	logging.Info("patient queue agent started", map[string]interface{}{
		"api":       cfg.API.BaseURL,
		"websocket": cfg.WebSocket.URL,
		"data_dir":  cfg.DataDir,
	})

	<-ctx.Done()

	push.Close()
	monitor.Stop()
	logging.Info("patient queue agent stopped", nil)
}
