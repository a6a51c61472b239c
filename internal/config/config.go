package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/annel0/voxel-creatures/internal/creature"
	"github.com/annel0/voxel-creatures/internal/logging"
)

// EnvConfigPath - переменная окружения с путём к конфигурации
const EnvConfigPath = "CREATURES_CONFIG"

// ErrInvalidConfig - конфигурация противоречива
var ErrInvalidConfig = errors.New("invalid config")

// Config корневая структура конфигурации симулятора
type Config struct {
	Simulation SimulationConfig   `yaml:"simulation"`
	Terrain    TerrainConfig      `yaml:"terrain"`
	Logging    LoggingConfig      `yaml:"logging"`
	Telemetry  TelemetryConfig    `yaml:"telemetry"`
	API        APIConfig          `yaml:"api"`
	Events     EventsConfig       `yaml:"events"`
	Archive    ArchiveConfig      `yaml:"archive"`
	Species    []creature.Species `yaml:"species"`
	Spawns     []SpawnConfig      `yaml:"spawns"`
}

type SimulationConfig struct {
	Seed         int64   `yaml:"seed"`
	TickRate     int     `yaml:"tick_rate"` // Тиков в секунду
	MaxDeltaTime float64 `yaml:"max_dt"`
	PathBudget   int     `yaml:"path_budget"`
	WorldFloorY  float64 `yaml:"world_floor_y"`
	RescueY      float64 `yaml:"rescue_y"`
	CompactEvery int     `yaml:"compact_every"` // Сжатие арены раз в N тиков
}

type TerrainConfig struct {
	Seed       int64   `yaml:"seed"`
	Size       int     `yaml:"size"`
	BaseHeight int     `yaml:"base_height"`
	Amplitude  int     `yaml:"amplitude"`
	NoiseScale float64 `yaml:"noise_scale"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Console    bool   `yaml:"console"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	Endpoint    string  `yaml:"endpoint"` // host:port OTLP HTTP, пусто - localhost:4318
	SampleRatio float64 `yaml:"sample_ratio"`
}

type APIConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// EventsConfig - публикация событий существ (атаки, гибель, спавн).
// Без nats_url события идут в in-memory шину и только логируются.
type EventsConfig struct {
	Enabled   bool          `yaml:"enabled"`
	NatsURL   string        `yaml:"nats_url"`
	Stream    string        `yaml:"stream"`
	Retention time.Duration `yaml:"retention"`
	Buffer    int           `yaml:"buffer"` // Ёмкость in-memory шины
}

// ArchiveConfig - история снимков в BadgerDB
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`  // Пусто - архив в памяти
	Every   int    `yaml:"every"` // Снимок раз в N тиков
	Keep    int    `yaml:"keep"`  // Сколько последних снимков хранить
}

// SpawnConfig - группа существ, создаваемых при старте
type SpawnConfig struct {
	Species string  `yaml:"species"`
	Count   int     `yaml:"count"`
	X       float64 `yaml:"x"`
	Z       float64 `yaml:"z"`
	Radius  float64 `yaml:"radius"` // Разброс точек спавна вокруг (x, z)
}

// GetPort возвращает порт отладочного API с поддержкой fallback значений
func (a *APIConfig) GetPort() int {
	return getPortWithEnvFallback(a.Port, "CREATURES_API_PORT", 8088)
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	if configPort > 0 {
		return configPort
	}

	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	return defaultPort
}

// Default возвращает конфигурацию демонстрационного мира
func Default() *Config {
	logOpts := logging.DefaultOptions()
	return &Config{
		Simulation: SimulationConfig{
			Seed:         1,
			TickRate:     20,
			MaxDeltaTime: 0.1,
			PathBudget:   200,
			WorldFloorY:  -50,
			RescueY:      100,
			CompactEvery: 20,
		},
		Terrain: TerrainConfig{
			Seed:       42,
			Size:       64,
			BaseHeight: 4,
			Amplitude:  6,
			NoiseScale: 0.05,
		},
		Logging: LoggingConfig{
			Level:      logOpts.Level,
			Console:    logOpts.Console,
			File:       logOpts.File,
			MaxSizeMB:  logOpts.MaxSizeMB,
			MaxBackups: logOpts.MaxBackups,
			MaxAgeDays: logOpts.MaxAgeDays,
			Compress:   logOpts.Compress,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "voxel-creatures",
			SampleRatio: 1,
		},
		API: APIConfig{Enabled: true},
		Events: EventsConfig{
			Stream:    "CREATURES",
			Retention: time.Hour,
			Buffer:    1024,
		},
		Archive: ArchiveConfig{
			Path:  "data",
			Every: 20,
			Keep:  600,
		},
		Species: []creature.Species{
			{Name: "sheep", Width: 0.9, Height: 1.3, Depth: 1.3, Speed: 2, MaxHealth: 8},
			{Name: "rabbit", Width: 0.4, Height: 0.6, Depth: 0.5, Locomotion: "hopper", Speed: 3,
				MaxHealth: 3, Behavior: creature.BehaviorPrey, DetectionRadius: 6},
			{Name: "wolf", Width: 0.6, Height: 0.9, Depth: 1.2, Speed: 3.5, MaxHealth: 20,
				Behavior: creature.BehaviorPredator, Hostile: true, AttackRange: 1.5,
				Targets: []string{"rabbit", "sheep"}},
		},
		Spawns: []SpawnConfig{
			{Species: "sheep", Count: 6, X: 32, Z: 32, Radius: 10},
			{Species: "rabbit", Count: 8, X: 24, Z: 40, Radius: 12},
			{Species: "wolf", Count: 2, X: 40, Z: 24, Radius: 4},
		},
	}
}

// Load читает YAML файл конфигурации поверх значений по умолчанию.
// Если path == "", пытается прочитать путь из ENV CREATURES_CONFIG, иначе возвращает Default().
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Списки видов и спавнов из файла заменяют демонстрационные целиком
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate проверяет конфигурацию целиком, включая описания видов
func (c *Config) Validate() error {
	sim := c.Simulation
	if sim.TickRate <= 0 {
		return fmt.Errorf("%w: tick_rate must be positive", ErrInvalidConfig)
	}
	if sim.MaxDeltaTime <= 0 || sim.PathBudget <= 0 {
		return fmt.Errorf("%w: max_dt and path_budget must be positive", ErrInvalidConfig)
	}
	if sim.RescueY <= sim.WorldFloorY {
		return fmt.Errorf("%w: rescue_y %.1f must be above world_floor_y %.1f", ErrInvalidConfig, sim.RescueY, sim.WorldFloorY)
	}
	if c.Terrain.Size <= 0 || c.Terrain.BaseHeight < 1 || c.Terrain.Amplitude < 0 || c.Terrain.NoiseScale <= 0 {
		return fmt.Errorf("%w: terrain size, base_height and noise_scale must be positive", ErrInvalidConfig)
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("%w: telemetry sample_ratio must be in [0, 1]", ErrInvalidConfig)
	}
	if c.Events.Enabled && c.Events.Buffer <= 0 {
		return fmt.Errorf("%w: events buffer must be positive", ErrInvalidConfig)
	}
	if c.Archive.Enabled && (c.Archive.Every <= 0 || c.Archive.Keep < 0) {
		return fmt.Errorf("%w: archive every must be positive and keep non-negative", ErrInvalidConfig)
	}

	known := make(map[string]bool, len(c.Species))
	for _, s := range c.Species {
		if err := s.WithDefaults().Validate(); err != nil {
			return err
		}
		if known[s.Name] {
			return fmt.Errorf("%w: %q", creature.ErrDuplicateSpecies, s.Name)
		}
		known[s.Name] = true
	}
	for _, sp := range c.Spawns {
		if !known[sp.Species] {
			return fmt.Errorf("%w: spawn references %q", creature.ErrUnknownSpecies, sp.Species)
		}
		if sp.Count < 0 || sp.Radius < 0 {
			return fmt.Errorf("%w: spawn %q has negative count or radius", ErrInvalidConfig, sp.Species)
		}
	}
	return nil
}

// LoggerOptions переводит секцию logging в параметры логгера
func (c *Config) LoggerOptions() logging.Options {
	return logging.Options{
		Level:      c.Logging.Level,
		Console:    c.Logging.Console,
		File:       c.Logging.File,
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAgeDays: c.Logging.MaxAgeDays,
		Compress:   c.Logging.Compress,
	}
}

// WorldSettings переводит секцию simulation в параметры мира
func (c *Config) WorldSettings() creature.Settings {
	return creature.Settings{
		Seed:         c.Simulation.Seed,
		MaxDeltaTime: c.Simulation.MaxDeltaTime,
		PathBudget:   c.Simulation.PathBudget,
		WorldFloorY:  c.Simulation.WorldFloorY,
		RescueY:      c.Simulation.RescueY,
	}
}
