package modules

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	handlers "github.com/oksasatya/go-ddd-task-sync/internal/interface/http"
	"github.com/oksasatya/go-ddd-task-sync/internal/interface/middleware"
)

type TaskModule struct {
	Handler *handlers.TaskHandler
	Redis   *redis.Client
}

func NewTaskModule(h *handlers.TaskHandler, rdb *redis.Client) *TaskModule {
	return &TaskModule{Handler: h, Redis: rdb}
}

func (m *TaskModule) Register(rg *gin.RouterGroup) {
	searchLimiter := middleware.RateLimit(m.Redis, 60, time.Minute, middleware.KeyByIPAndPath(), nil)

	tasks := rg.Group("/tasks")
	tasks.GET("", m.Handler.List)
	tasks.POST("", m.Handler.Create)
	tasks.GET("/search", searchLimiter, m.Handler.Search)
	tasks.GET("/:id", m.Handler.Get)
	tasks.PUT("/:id", m.Handler.Replace)
	tasks.DELETE("/:id", m.Handler.Delete)
}

func (m *TaskModule) Name() string { return "tasks" }
