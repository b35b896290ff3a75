package main

import (
	"embed"
	"fmt"
	"net/http"
	"time"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"github.com/wailsapp/wails/v2/pkg/options/linux"
	"go.uber.org/zap"
	"gorm.io/gorm/logger"

	"memit/internal/broker"
	"memit/internal/config"
	"memit/internal/database"
	"memit/internal/logging"
	"memit/internal/services"
)

//go:embed all:frontend/dist
var assets embed.FS

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Println("Error loading config:", err)
		return
	}
	if err := logging.Init(cfg.App.Production); err != nil {
		fmt.Println("Error initialising logger:", err)
		return
	}
	defer logging.Sync()
	log := logging.Named("main")

	dbLevel := logger.Info
	if cfg.App.Production {
		dbLevel = logger.Warn
	}
	db, err := database.Init(database.Config{
		Path:     cfg.Database.Path,
		LogLevel: dbLevel,
	})
	if err != nil {
		log.Error("open database", zap.Error(err))
		return
	}

	ring, err := services.OpenKeyring(services.KeyringOptions{
		Backend:  cfg.Keyring.Backend,
		FileDir:  cfg.Keyring.FileDir,
		Password: cfg.Keyring.Password,
	})
	if err != nil {
		log.Error("open keyring", zap.Error(err))
		return
	}

	app := NewApp(cfg)
	if sqlDB, err := db.DB(); err == nil {
		app.dbClose = sqlDB.Close
	}

	httpClient := &http.Client{Timeout: 2 * time.Minute}
	svc := services.NewServices(
		db,
		services.NewKeyringService(ring),
		services.DefaultExplainers(httpClient),
		services.URLOpenerFunc(app.openURL),
		services.Options{
			CacheSize:  cfg.Explain.CacheSize,
			CacheTTL:   cfg.Explain.CacheTTL,
			HTTPClient: httpClient,
		},
	)

	b := broker.New(cfg.Broker.Workers, cfg.Broker.Queue)
	svc.Register(b)
	app.services = svc
	app.broker = b

	err = wails.Run(&options.App{
		Title:     "Memit",
		Width:     480,
		Height:    680,
		MinWidth:  360,
		MinHeight: 420,
		AssetServer: &assetserver.Options{
			Assets: assets,
		},
		Linux: &linux.Options{
			WindowIsTranslucent: false,
			WebviewGpuPolicy:    linux.WebviewGpuPolicyAlways,
			ProgramName:         "Memit",
		},
		BackgroundColour: &options.RGBA{R: 255, G: 255, B: 255, A: 1},
		OnStartup:        app.startup,
		OnShutdown:       app.shutdown,
		Bind: []interface{}{
			app,
		},
	})
	if err != nil {
		log.Error("wails run", zap.Error(err))
	}
}
