package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"

	"github.com/oksasatya/go-ddd-task-sync/config"
	"github.com/oksasatya/go-ddd-task-sync/internal/application"
	"github.com/oksasatya/go-ddd-task-sync/internal/domain/repository"
	"github.com/oksasatya/go-ddd-task-sync/internal/infrastructure"
	"github.com/oksasatya/go-ddd-task-sync/pkg/helpers"
	"github.com/oksasatya/go-ddd-task-sync/pkg/validation"
)

type seedUser struct {
	Name  string
	Email string
	Tasks []string
}

var demo = []seedUser{
	{Name: "Demo User", Email: "demo@example.com", Tasks: []string{"Write report", "Review pull request"}},
	{Name: "Second User", Email: "second@example.com", Tasks: []string{"Plan sprint"}},
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName+"-seed", cfg.Env)
	validation.Init()

	ctx := context.Background()
	store, err := infrastructure.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("failed to open store: %v", err)
	}
	defer func() { _ = store.Close(ctx) }()

	coord := application.NewCoordinator(store, logger)
	deadline := time.Now().UTC().Add(7 * 24 * time.Hour).Truncate(time.Second)

	for _, su := range demo {
		u, err := store.Users().GetByEmail(ctx, nil, su.Email)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			u, err = coord.CreateUser(ctx, application.UserInput{Name: su.Name, Email: su.Email})
			if err != nil {
				logger.Fatalf("failed to seed user %s: %v", su.Email, err)
			}
		case err != nil:
			logger.Fatalf("failed to look up %s: %v", su.Email, err)
		default:
			fmt.Printf("user exists: id=%s email=%s\n", u.ID, u.Email)
			continue
		}
		fmt.Printf("seeded user: id=%s email=%s name=%s\n", u.ID, u.Email, u.Name)

		for _, name := range su.Tasks {
			t, err := coord.CreateTask(ctx, application.TaskInput{
				Name:         name,
				Description:  "seeded",
				Deadline:     deadline,
				AssignedUser: u.ID,
			})
			if err != nil {
				logger.Fatalf("failed to seed task %q: %v", name, err)
			}
			fmt.Printf("  seeded task: id=%s name=%s assignedUser=%s\n", t.ID, t.Name, t.AssignedUser)
		}
	}
}
