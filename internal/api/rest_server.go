// Package api - отладочный HTTP API симулятора: состояние, позы существ и метрики.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/annel0/voxel-creatures/internal/creature"
	"github.com/annel0/voxel-creatures/internal/logging"
	"github.com/annel0/voxel-creatures/internal/middleware"
	"github.com/annel0/voxel-creatures/internal/storage"
)

const serviceName = "debug_api"

// RestServer - отладочный REST API. Читает только SnapshotStore.
type RestServer struct {
	router  *gin.Engine
	server  *http.Server
	store   *SnapshotStore
	history History
	metrics *ServerMetrics
	log     *logging.Logger
}

// History - архив прошлых снимков
type History interface {
	Ticks() ([]uint64, error)
	Load(tick uint64) (storage.Record, error)
}

// Config содержит конфигурацию для REST сервера
type Config struct {
	Port     string               // адрес, например ":8088"
	Store    *SnapshotStore       // снимки мира
	Registry *prometheus.Registry // регистр метрик; nil - дефолтный
	Metrics  *ServerMetrics       // nil - новые метрики процесса
	History  History              // nil - без /api/history
}

// GenericResponse представляет общий ответ API
type GenericResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// NewRestServer создаёт отладочный API сервер
func NewRestServer(config Config) *RestServer {
	if config.Port == "" {
		config.Port = ":8088"
	}
	if config.Store == nil {
		config.Store = NewSnapshotStore()
	}
	if config.Metrics == nil {
		config.Metrics = NewServerMetrics()
	}

	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(middleware.NewRequestLogger().Handler())

	var (
		reg      prometheus.Registerer
		gatherer prometheus.Gatherer
	)
	if config.Registry != nil {
		reg, gatherer = config.Registry, config.Registry
	}
	promMw := middleware.NewPrometheusMiddleware(serviceName, reg)
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router, gatherer)

	rs := &RestServer{
		router:  router,
		store:   config.Store,
		history: config.History,
		metrics: config.Metrics,
		log:     logging.GetServerLogger(),
		server: &http.Server{
			Addr:              config.Port,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
	rs.setupRoutes()
	return rs
}

func (rs *RestServer) setupRoutes() {
	rs.router.GET("/health", rs.handleHealth)

	api := rs.router.Group("/api")
	{
		api.GET("/stats", rs.handleStats)
		api.GET("/entities", rs.handleEntities)
		api.GET("/entities/:id", rs.handleEntity)
		if rs.history != nil {
			api.GET("/history", rs.handleHistory)
			api.GET("/history/:tick", rs.handleHistoryTick)
		}
	}
}

// Handler возвращает HTTP-обработчик (для тестов и встраивания)
func (rs *RestServer) Handler() http.Handler {
	return rs.router
}

// Start запускает сервер и блокируется до Stop
func (rs *RestServer) Start() error {
	rs.log.Info("Отладочный API слушает %s", rs.server.Addr)
	if err := rs.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("debug api: %w", err)
	}
	return nil
}

// Stop корректно останавливает сервер
func (rs *RestServer) Stop(ctx context.Context) error {
	return rs.server.Shutdown(ctx)
}

// handleHealth проверка состояния сервера
func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Unix(),
	})
}

// handleStats возвращает статистику процесса и симуляции
func (rs *RestServer) handleStats(c *gin.Context) {
	snap := rs.store.Latest()
	cpuPercent, _ := rs.metrics.GetCPUUsage()

	dying := 0
	for _, p := range snap.Entities {
		if p.Dying {
			dying++
		}
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Статистика получена",
		Data: gin.H{
			"run_id":      rs.metrics.RunID,
			"uptime":      rs.metrics.GetUptime(),
			"cpu_percent": fmt.Sprintf("%.2f", cpuPercent),
			"memory":      rs.metrics.MemoryStats(),
			"simulation": gin.H{
				"tick":      snap.Tick,
				"entities":  len(snap.Entities),
				"dying":     dying,
				"species":   snap.Species,
				"last_step": snap.LastStep,
			},
		},
	})
}

// handleEntities возвращает позы всех существ из последнего снимка
func (rs *RestServer) handleEntities(c *gin.Context) {
	snap := rs.store.Latest()

	species := c.Query("species")
	poses := snap.Entities
	if species != "" {
		poses = make([]creature.Pose, 0, len(snap.Entities))
		for _, p := range snap.Entities {
			if p.Species == species {
				poses = append(poses, p)
			}
		}
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: fmt.Sprintf("Тик %d", snap.Tick),
		Data:    poses,
	})
}

// handleEntity возвращает позу одного существа по ID дескриптора
func (rs *RestServer) handleEntity(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Неверный ID существа",
		})
		return
	}

	pose, ok := rs.store.Find(id)
	if !ok {
		c.JSON(http.StatusNotFound, GenericResponse{
			Success: false,
			Message: "Существо не найдено",
		})
		return
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: "Существо найдено",
		Data:    pose,
	})
}

// handleHistory возвращает список сохранённых тиков
func (rs *RestServer) handleHistory(c *gin.Context) {
	ticks, err := rs.history.Ticks()
	if err != nil {
		rs.log.Error("Ошибка чтения архива: %v", err)
		c.JSON(http.StatusInternalServerError, GenericResponse{
			Success: false,
			Message: "Архив недоступен",
		})
		return
	}
	if ticks == nil {
		ticks = []uint64{}
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: fmt.Sprintf("Снимков: %d", len(ticks)),
		Data:    ticks,
	})
}

// handleHistoryTick возвращает архивный снимок тика
func (rs *RestServer) handleHistoryTick(c *gin.Context) {
	tick, err := strconv.ParseUint(c.Param("tick"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, GenericResponse{
			Success: false,
			Message: "Неверный номер тика",
		})
		return
	}

	rec, err := rs.history.Load(tick)
	switch {
	case errors.Is(err, storage.ErrSnapshotNotFound):
		c.JSON(http.StatusNotFound, GenericResponse{
			Success: false,
			Message: "Снимок не найден",
		})
		return
	case err != nil:
		rs.log.Error("Ошибка чтения снимка %d: %v", tick, err)
		c.JSON(http.StatusInternalServerError, GenericResponse{
			Success: false,
			Message: "Архив недоступен",
		})
		return
	}

	c.JSON(http.StatusOK, GenericResponse{
		Success: true,
		Message: fmt.Sprintf("Тик %d", rec.Tick),
		Data:    rec,
	})
}
