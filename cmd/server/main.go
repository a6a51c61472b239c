package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/annel0/voxel-creatures/internal/api"
	"github.com/annel0/voxel-creatures/internal/config"
	"github.com/annel0/voxel-creatures/internal/eventbus"
	"github.com/annel0/voxel-creatures/internal/logging"
	"github.com/annel0/voxel-creatures/internal/observability"
	"github.com/annel0/voxel-creatures/internal/simulation"
	"github.com/annel0/voxel-creatures/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации (по умолчанию $CREATURES_CONFIG)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}

	if err := logging.InitDefaultLogger(cfg.LoggerOptions()); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := api.NewServerMetrics()
	logging.Info("🐑 Запуск симулятора существ (run=%s, seed=%d, %d тиков/с)",
		metrics.RunID, cfg.Simulation.Seed, cfg.Simulation.TickRate)

	var shutdownTelemetry func(context.Context) error
	if cfg.Telemetry.Enabled {
		shutdownTelemetry, err = observability.InitTelemetry(ctx, observability.TelemetryOptions{
			ServiceName: cfg.Telemetry.ServiceName,
			RunID:       metrics.RunID,
			Endpoint:    cfg.Telemetry.Endpoint,
			SampleRatio: cfg.Telemetry.SampleRatio,
		})
		if err != nil {
			logging.Error("❌ Ошибка инициализации OpenTelemetry: %v", err)
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var simOpts []simulation.Option

	// === EVENT BUS ===
	var bus eventbus.EventBus
	var busMetrics *eventbus.MetricsExporter
	if cfg.Events.Enabled {
		bus = newEventBus(cfg.Events)
		if _, err := eventbus.StartLoggingListener(ctx, bus, eventbus.Filter{}); err != nil {
			logging.Warn("⚠️ Не удалось подписать логгер событий: %v", err)
		}
		busMetrics = eventbus.NewMetricsExporter(bus, registry)
		busMetrics.Start(time.Second)
		simOpts = append(simOpts, simulation.WithEventBus(bus))
	}

	// === SNAPSHOT ARCHIVE ===
	var archive *storage.SnapshotArchive
	if cfg.Archive.Enabled {
		archive, err = storage.OpenSnapshotArchive(storage.ArchiveOptions{Path: cfg.Archive.Path, Keep: cfg.Archive.Keep})
		if err != nil {
			logging.Error("❌ Архив снимков недоступен: %v", err)
		} else {
			logging.Info("🗄️ Архив снимков: каждые %d тиков, хранить %d", cfg.Archive.Every, cfg.Archive.Keep)
			simOpts = append(simOpts, simulation.WithArchive(archive))
		}
	}

	store := api.NewSnapshotStore()
	sim, err := simulation.New(cfg, store, registry, simOpts...)
	if err != nil {
		logging.Error("❌ Ошибка создания мира: %v", err)
		_ = logging.CloseDefaultLogger()
		log.Fatalf("❌ Ошибка создания мира: %v", err)
	}

	var restServer *api.RestServer
	if cfg.API.Enabled {
		restServer = api.NewRestServer(api.Config{
			Port:     fmt.Sprintf(":%d", cfg.API.GetPort()),
			Store:    store,
			Registry: registry,
			Metrics:  metrics,
			History:  history(archive),
		})
		go func() {
			if err := restServer.Start(); err != nil {
				logging.Error("❌ Ошибка отладочного API: %v", err)
				stop()
			}
		}()
		logging.Info("   🌐 Отладочный API: http://localhost:%d/api/entities", cfg.API.GetPort())
		logging.Info("   ❤️  Health check: http://localhost:%d/health", cfg.API.GetPort())
	}

	if err := sim.Run(ctx); err != nil {
		logging.Error("❌ Симуляция завершилась с ошибкой: %v", err)
	}

	// === GRACEFUL SHUTDOWN ===
	logging.Info("📡 Завершение работы после %d тиков...", sim.Ticks())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs error
	if restServer != nil {
		errs = multierr.Append(errs, restServer.Stop(shutdownCtx))
	}
	if busMetrics != nil {
		busMetrics.Stop()
	}
	if bus != nil {
		errs = multierr.Append(errs, bus.Close())
	}
	if archive != nil {
		errs = multierr.Append(errs, archive.Close())
	}
	if shutdownTelemetry != nil {
		errs = multierr.Append(errs, shutdownTelemetry(shutdownCtx))
	}
	for _, err := range multierr.Errors(errs) {
		logging.Error("❌ Ошибка остановки: %v", err)
	}

	logging.Info("👋 Симулятор остановлен")
	if err := logging.CloseDefaultLogger(); err != nil {
		log.Printf("Ошибка закрытия логгера: %v", err)
	}
}

// newEventBus подключается к JetStream, а при отсутствии адреса или ошибке
// возвращает in-memory шину
func newEventBus(cfg config.EventsConfig) eventbus.EventBus {
	if cfg.NatsURL != "" {
		js, err := eventbus.NewJetStreamBus(eventbus.JetStreamOptions{
			URL:       cfg.NatsURL,
			Stream:    cfg.Stream,
			Retention: cfg.Retention,
		})
		if err == nil {
			logging.Info("📨 События существ публикуются в JetStream %s (stream %s)", cfg.NatsURL, cfg.Stream)
			return js
		}
		logging.Warn("⚠️ JetStream недоступен, используем in-memory шину: %v", err)
	}
	return eventbus.NewMemoryBus(cfg.Buffer)
}

// history не даёт nil-указателю архива превратиться в непустой интерфейс
func history(archive *storage.SnapshotArchive) api.History {
	if archive == nil {
		return nil
	}
	return archive
}
