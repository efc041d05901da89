package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-ddd-task-sync/internal/application"
	"github.com/oksasatya/go-ddd-task-sync/pkg/response"
)

// UserSearcher is implemented by search.Indexer.
type UserSearcher interface {
	SearchUsers(ctx context.Context, q string, size int) ([]map[string]any, error)
}

type UserHandler struct {
	Svc      *application.Coordinator
	Searcher UserSearcher
	Logger   *logrus.Logger
}

func NewUserHandler(svc *application.Coordinator, search UserSearcher, logger *logrus.Logger) *UserHandler {
	return &UserHandler{Svc: svc, Searcher: search, Logger: logger}
}

type userRequest struct {
	Name         string   `json:"name" form:"name"`
	Email        string   `json:"email" form:"email"`
	PendingTasks []string `json:"pendingTasks" form:"pendingTasks"`
}

func (r userRequest) input() application.UserInput {
	return application.UserInput{Name: r.Name, Email: r.Email, PendingTasks: r.PendingTasks}
}

func (h *UserHandler) List(c *gin.Context) {
	list(c, h.Logger, 0, h.Svc.ListUsers, h.Svc.CountUsers, application.NewUserDocument, "users")
}

func (h *UserHandler) Get(c *gin.Context) {
	u, err := h.Svc.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	one(c, h.Logger, http.StatusOK, application.NewUserDocument(*u), "OK")
}

func (h *UserHandler) Create(c *gin.Context) {
	var req userRequest
	if err := c.ShouldBind(&req); err != nil {
		bindError(c, err)
		return
	}
	u, err := h.Svc.CreateUser(c.Request.Context(), req.input())
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusCreated, application.NewUserDocument(*u), "user created", nil)
}

func (h *UserHandler) Replace(c *gin.Context) {
	var req userRequest
	if err := c.ShouldBind(&req); err != nil {
		bindError(c, err)
		return
	}
	u, err := h.Svc.ReplaceUser(c.Request.Context(), c.Param("id"), req.input())
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusOK, application.NewUserDocument(*u), "user updated", nil)
}

func (h *UserHandler) Delete(c *gin.Context) {
	if err := h.Svc.DeleteUser(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.Logger, err)
		return
	}
	response.NoContent(c)
}

// Search queries the users index; without a search backend it returns an
// empty list.
func (h *UserHandler) Search(c *gin.Context) {
	if h.Searcher == nil {
		response.Success(c, http.StatusOK, []map[string]any{}, "OK", nil)
		return
	}
	out, err := h.Searcher.SearchUsers(c.Request.Context(), c.Query("q"), searchSize(c))
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	response.Success(c, http.StatusOK, out, "OK", nil)
}
