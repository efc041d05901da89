package router

import (
	"github.com/oksasatya/go-ddd-task-sync/internal/application"
	"github.com/oksasatya/go-ddd-task-sync/internal/container"
	"github.com/oksasatya/go-ddd-task-sync/internal/infrastructure/messaging"
	"github.com/oksasatya/go-ddd-task-sync/internal/infrastructure/search"
	handlers "github.com/oksasatya/go-ddd-task-sync/internal/interface/http"
	"github.com/oksasatya/go-ddd-task-sync/internal/router/modules"
)

type AppDeps struct {
	Coordinator *application.Coordinator
	Indexer     *search.Indexer
	Users       *handlers.UserHandler
	Tasks       *handlers.TaskHandler
	Health      *handlers.HealthHandler
}

// BuildDeps wires the coordinator, its post-commit notifiers and the HTTP
// handlers from the container. Optional backends that are not configured
// are simply left out.
func BuildDeps() AppDeps {
	cfg := container.GetConfig()
	logger := container.GetLogger()
	store := container.GetStore()

	var notifiers []application.ChangeNotifier
	var indexer *search.Indexer
	if es := container.GetES(); es != nil {
		indexer = search.NewIndexer(es, store, cfg.ESUsersIndex, cfg.ESTasksIndex, logger)
		notifiers = append(notifiers, indexer)
	}
	if pub := container.GetRabbitPub(); pub != nil {
		notifiers = append(notifiers, messaging.NewAssignmentNotifier(pub, cfg, logger))
	}

	coord := application.NewCoordinator(store, logger, notifiers...)

	deps := AppDeps{
		Coordinator: coord,
		Indexer:     indexer,
		Users:       handlers.NewUserHandler(coord, nil, logger),
		Tasks:       handlers.NewTaskHandler(coord, nil, logger, cfg.TasksDefaultLimit),
		Health:      handlers.NewHealthHandler(store, logger),
	}
	if indexer != nil {
		deps.Users.Searcher = indexer
		deps.Tasks.Searcher = indexer
	}
	return deps
}

// InitModules initializes all application modules and registers them with the router registry
// This function should be called once during application startup to wire up all modules
func InitModules(r *Registry) AppDeps {
	deps := BuildDeps()
	rdb := container.GetRedis()

	r.Add(modules.NewHealthModule(deps.Health))
	r.Add(modules.NewUserModule(deps.Users, rdb))
	r.Add(modules.NewTaskModule(deps.Tasks, rdb))
	if container.GetConfig().DebugMetricsEnabled {
		r.Add(modules.NewDebugModule(rdb))
	}
	return deps
}
