package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-ddd-task-sync/internal/application"
	"github.com/oksasatya/go-ddd-task-sync/pkg/response"
)

// TaskSearcher is implemented by search.Indexer.
type TaskSearcher interface {
	SearchTasks(ctx context.Context, q string, size int) ([]map[string]any, error)
}

type TaskHandler struct {
	Svc          *application.Coordinator
	Searcher     TaskSearcher
	Logger       *logrus.Logger
	DefaultLimit int64
}

func NewTaskHandler(svc *application.Coordinator, search TaskSearcher, logger *logrus.Logger, defaultLimit int64) *TaskHandler {
	return &TaskHandler{Svc: svc, Searcher: search, Logger: logger, DefaultLimit: defaultLimit}
}

// taskRequest accepts the cached assignee name for compatibility; it is
// always recomputed from the assignee.
type taskRequest struct {
	Name             string     `json:"name" form:"name"`
	Description      string     `json:"description" form:"description"`
	Deadline         *time.Time `json:"deadline" form:"deadline"`
	Completed        *bool      `json:"completed" form:"completed"`
	AssignedUser     string     `json:"assignedUser" form:"assignedUser"`
	AssignedUserName string     `json:"assignedUserName" form:"assignedUserName"`
}

func (r taskRequest) input() application.TaskInput {
	in := application.TaskInput{
		Name:         r.Name,
		Description:  r.Description,
		Completed:    r.Completed,
		AssignedUser: r.AssignedUser,
	}
	if r.Deadline != nil {
		in.Deadline = *r.Deadline
	}
	return in
}

func (h *TaskHandler) List(c *gin.Context) {
	list(c, h.Logger, h.DefaultLimit, h.Svc.ListTasks, h.Svc.CountTasks, application.NewTaskDocument, "tasks")
}

func (h *TaskHandler) Get(c *gin.Context) {
	t, err := h.Svc.GetTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	one(c, h.Logger, http.StatusOK, application.NewTaskDocument(*t), "OK")
}

func (h *TaskHandler) Create(c *gin.Context) {
	var req taskRequest
	if err := c.ShouldBind(&req); err != nil {
		bindError(c, err)
		return
	}
	t, err := h.Svc.CreateTask(c.Request.Context(), req.input())
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusCreated, application.NewTaskDocument(*t), "task created", nil)
}

func (h *TaskHandler) Replace(c *gin.Context) {
	var req taskRequest
	if err := c.ShouldBind(&req); err != nil {
		bindError(c, err)
		return
	}
	t, err := h.Svc.ReplaceTask(c.Request.Context(), c.Param("id"), req.input())
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusOK, application.NewTaskDocument(*t), "task updated", nil)
}

func (h *TaskHandler) Delete(c *gin.Context) {
	if err := h.Svc.DeleteTask(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.Logger, err)
		return
	}
	response.NoContent(c)
}

func (h *TaskHandler) Search(c *gin.Context) {
	if h.Searcher == nil {
		response.Success(c, http.StatusOK, []map[string]any{}, "OK", nil)
		return
	}
	out, err := h.Searcher.SearchTasks(c.Request.Context(), c.Query("q"), searchSize(c))
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusOK, out, "OK", nil)
}
