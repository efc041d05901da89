package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-ddd-task-sync/pkg/query"
	"github.com/oksasatya/go-ddd-task-sync/pkg/response"
)

// list serves a collection GET: where/sort/select/skip/limit, or a bare
// integer when count=true.
func list[E, D any](c *gin.Context, logger *logrus.Logger, defaultLimit int64, find func(context.Context, query.Params) ([]E, error),
	count func(context.Context, query.Params) (int64, error), toDoc func(E) D, what string) {
	q, err := query.Parse(c.Request.URL.Query(), defaultLimit)
	if err != nil {
		respondError(c, logger, err)
		return
	}
	ctx := c.Request.Context()

	if q.Count {
		n, err := count(ctx, q)
		if err != nil {
			respondError(c, logger, err)
			return
		}
		response.Success(c, http.StatusOK, n, what+" count", nil)
		return
	}

	items, err := find(ctx, q)
	if err != nil {
		respondError(c, logger, err)
		return
	}
	docs := make([]D, 0, len(items))
	for _, it := range items {
		docs = append(docs, toDoc(it))
	}
	out, err := query.ProjectAll(docs, q.Select)
	if err != nil {
		respondError(c, logger, err)
		return
	}
	response.Success(c, http.StatusOK, out, "OK", nil)
}

// one renders a single document honouring select.
func one[D any](c *gin.Context, logger *logrus.Logger, status int, doc D, message string) {
	proj, err := query.ParseSelect(c.Request.URL.Query())
	if err != nil {
		respondError(c, logger, err)
		return
	}
	out, err := query.Project(doc, proj)
	if err != nil {
		respondError(c, logger, err)
		return
	}
	response.Success(c, status, out, message, nil)
}

// searchSize reads the optional size query parameter; bad values fall back
// to the searcher's default.
func searchSize(c *gin.Context) int {
	n, err := strconv.Atoi(c.Query("size"))
	if err != nil {
		return 0
	}
	return n
}
