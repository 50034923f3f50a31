package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/nimbletv/pulse/internal/app"
	"github.com/nimbletv/pulse/internal/event"
	"github.com/nimbletv/pulse/internal/focus"
	"github.com/nimbletv/pulse/internal/httpapi"
	"github.com/nimbletv/pulse/internal/store"
)

type config struct {
	StreamURL  string `env:"PULSE_STREAM_URL" envDefault:"wss://push.example.tv"`
	StreamPath string `env:"PULSE_STREAM_PATH" envDefault:"/notifications"`
	EntitleURL string `env:"PULSE_ENTITLE_URL" envDefault:"https://entitle.example.tv"`
	DebugAddr  string `env:"PULSE_DEBUG_ADDR" envDefault:":8080"`
	DataPath   string `env:"PULSE_DATA_PATH" envDefault:"pulse.db"`

	DeviceID   string `env:"PULSE_DEVICE_ID"`
	UserID     string `env:"PULSE_USER_ID"`
	Username   string `env:"PULSE_USERNAME"`
	CustomerNo string `env:"PULSE_CUSTOMER_NO"`
	PackageID  string `env:"PULSE_PACKAGE_ID"`
	AppVersion string `env:"PULSE_APP_VERSION"`
	Region     string `env:"PULSE_REGION"`
}

var defaultMenu = []focus.MenuItem{
	{ID: "home", Label: "Home", Route: "/home"},
	{ID: "guide", Label: "TV Guide", Route: "/guide"},
	{ID: "vod", Label: "On Demand", Route: "/vod"},
	{ID: "settings", Label: "Settings", Route: "/settings"},
}

func main() {
	_ = godotenv.Load()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		panic(err)
	}

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	durable, err := store.OpenSQLite(cfg.DataPath)
	if err != nil {
		log.Fatal("open durable store", zap.Error(err))
	}
	st := &store.Store{Session: store.NewMemory(), Durable: durable}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine := app.New(ctx, app.Config{
		StreamURL:  cfg.StreamURL,
		StreamPath: cfg.StreamPath,
		EntitleURL: cfg.EntitleURL,
		Identity: event.Identity{
			DeviceID:   cfg.DeviceID,
			UserID:     cfg.UserID,
			Username:   cfg.Username,
			CustomerNo: cfg.CustomerNo,
			PackageID:  cfg.PackageID,
			AppVersion: cfg.AppVersion,
			Region:     cfg.Region,
		},
		Menu:  defaultMenu,
		Route: "/home",
		Store: st,
		Log:   log,
		OnLogout: func() {
			log.Warn("forced logout requested by block directive")
		},
	})

	if err := engine.Open(); err != nil {
		log.Fatal("open stream", zap.Error(err))
	}

	handler := httpapi.SetupRoutes(engine.Arbiter(), engine.Authority(), engine.Lock())
	srv := &http.Server{Addr: cfg.DebugAddr, Handler: handler}
	go func() {
		log.Info("debug server listening", zap.String("addr", cfg.DebugAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("debug server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	_ = srv.Close()
	if err := engine.Close(); err != nil {
		log.Warn("shutdown", zap.Error(err))
	}
}
