// cmd/guard/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"trading-session-guard/application/bootstrap"
	"trading-session-guard/internal/infrastructure/config"
	"trading-session-guard/pkg/logger"
)

var (
	version   = "1.0.0"
	buildTime = "неизвестно"
)

func main() {
	var (
		cfgPath     string
		logLevel    string
		sweepNow    bool
		showVersion bool
	)

	flag.StringVar(&cfgPath, "config", ".env", "Путь к .env файлу конфигурации")
	flag.StringVar(&logLevel, "log-level", "", "Уровень логирования: debug, info, warn, error (переопределяет .env)")
	flag.BoolVar(&sweepNow, "sweep-now", false, "Выполнить одну очистку и выйти")
	flag.BoolVar(&showVersion, "version", false, "Показать версию")
	flag.Parse()

	if showVersion {
		fmt.Printf("trading-session-guard %s (сборка: %s)\n", version, buildTime)
		return
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Не удалось загрузить конфигурацию: %v\n", err)
		os.Exit(1)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	if err := logger.InitGlobal(cfg.Logging.File, cfg.Logging.Level, cfg.Logging.Color); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Не удалось инициализировать логгер: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	cfg.PrintSummary()

	if err := run(cfg, sweepNow); err != nil {
		logger.Error("❌ %v", err)
		logger.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config, sweepNow bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.NewAppBuilder().WithConfig(cfg).Build(ctx)
	if err != nil {
		return fmt.Errorf("сборка приложения: %w", err)
	}

	if sweepNow {
		defer app.Close()
		report, err := app.SweepNow(ctx)
		out, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(out))
		return err
	}

	logger.Info("🚀 Запуск Trading Session Guard %s", version)
	return app.Run(ctx)
}
