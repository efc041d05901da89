package modules

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	handlers "github.com/oksasatya/go-ddd-task-sync/internal/interface/http"
	"github.com/oksasatya/go-ddd-task-sync/internal/interface/middleware"
)

// UserModule serves /users: listing with query parameters, CRUD by id and
// full-text search.
type UserModule struct {
	Handler *handlers.UserHandler
	Redis   *redis.Client
}

func NewUserModule(h *handlers.UserHandler, rdb *redis.Client) *UserModule {
	return &UserModule{Handler: h, Redis: rdb}
}

func (m *UserModule) Register(rg *gin.RouterGroup) {
	searchLimiter := middleware.RateLimit(m.Redis, 60, time.Minute, middleware.KeyByIPAndPath(), nil)

	users := rg.Group("/users")
	users.GET("", m.Handler.List)
	users.POST("", m.Handler.Create)
	users.GET("/search", searchLimiter, m.Handler.Search)
	users.GET("/:id", m.Handler.Get)
	users.PUT("/:id", m.Handler.Replace)
	users.DELETE("/:id", m.Handler.Delete)
}

func (m *UserModule) Name() string { return "users" }
