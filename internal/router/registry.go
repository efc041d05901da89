package router

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type Registry struct {
	Engine      *gin.Engine
	API         *gin.RouterGroup
	Logger      *logrus.Logger
	middlewares []gin.HandlerFunc
	modules     []Module
	names       map[string]struct{}
}

func NewRegistry(engine *gin.Engine, logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Registry{Engine: engine, API: engine.Group("/api"), Logger: logger, names: map[string]struct{}{}}
}

// Use adds middleware that runs on every module route.
func (r *Registry) Use(mw ...gin.HandlerFunc) {
	r.middlewares = append(r.middlewares, mw...)
}

// Add queues a module; a second module with the same name is ignored.
func (r *Registry) Add(mod Module) {
	if _, dup := r.names[mod.Name()]; dup {
		r.Logger.WithField("module", mod.Name()).Warn("module already registered")
		return
	}
	r.names[mod.Name()] = struct{}{}
	r.modules = append(r.modules, mod)
}

func (r *Registry) RegisterAll() {
	if len(r.middlewares) > 0 {
		r.API.Use(r.middlewares...)
	}
	for _, m := range r.modules {
		m.Register(r.API)
		r.Logger.WithField("module", m.Name()).Debug("module registered")
	}
}
