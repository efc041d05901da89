package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/go-ddd-task-sync/internal/application"
	"github.com/oksasatya/go-ddd-task-sync/internal/infrastructure/memory"
	"github.com/oksasatya/go-ddd-task-sync/pkg/query"
)

type mockSearcher struct {
	mock.Mock
}

func (m *mockSearcher) SearchUsers(ctx context.Context, q string, size int) ([]map[string]any, error) {
	args := m.Called(ctx, q, size)
	return args.Get(0).([]map[string]any), args.Error(1)
}

func (m *mockSearcher) SearchTasks(ctx context.Context, q string, size int) ([]map[string]any, error) {
	args := m.Called(ctx, q, size)
	return args.Get(0).([]map[string]any), args.Error(1)
}

type server struct {
	engine *gin.Engine
	coord  *application.Coordinator
	users  *UserHandler
	tasks  *TaskHandler
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	coord := application.NewCoordinator(memory.New(), logger)
	s := &server{
		engine: gin.New(),
		coord:  coord,
		users:  NewUserHandler(coord, nil, logger),
		tasks:  NewTaskHandler(coord, nil, logger, 100),
	}
	api := s.engine.Group("/api")
	api.GET("/users", s.users.List)
	api.POST("/users", s.users.Create)
	api.GET("/users/search", s.users.Search)
	api.GET("/users/:id", s.users.Get)
	api.PUT("/users/:id", s.users.Replace)
	api.DELETE("/users/:id", s.users.Delete)
	api.GET("/tasks", s.tasks.List)
	api.POST("/tasks", s.tasks.Create)
	api.GET("/tasks/search", s.tasks.Search)
	api.GET("/tasks/:id", s.tasks.Get)
	api.PUT("/tasks/:id", s.tasks.Replace)
	api.DELETE("/tasks/:id", s.tasks.Delete)
	return s
}

type envelope struct {
	Status  int               `json:"status"`
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    json.RawMessage   `json:"data"`
	Error   map[string]string `json:"error"`
}

func (s *server) do(t *testing.T, method, target, body string) (int, envelope) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w.Code, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v), string(raw))
	return v
}

func TestUsers_CRUD(t *testing.T) {
	s := newServer(t)

	code, env := s.do(t, http.MethodPost, "/api/users", `{"name":"Alice","email":"Alice@Example.com"}`)
	require.Equal(t, http.StatusCreated, code)
	created := decode[map[string]any](t, env.Data)
	id := created["_id"].(string)
	assert.NotEmpty(t, id)
	assert.Equal(t, "alice@example.com", created["email"])
	assert.Equal(t, []any{}, created["pendingTasks"])
	assert.NotEmpty(t, created["dateCreated"])

	code, env = s.do(t, http.MethodGet, "/api/users/"+id+`?select={"name":1}`, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, map[string]any{"_id": id, "name": "Alice"}, decode[map[string]any](t, env.Data))

	code, env = s.do(t, http.MethodPut, "/api/users/"+id, `{"name":"Alice B","email":"alice@example.com","pendingTasks":[]}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Alice B", decode[map[string]any](t, env.Data)["name"])

	code, _ = s.do(t, http.MethodDelete, "/api/users/"+id, "")
	assert.Equal(t, http.StatusNoContent, code)

	code, env = s.do(t, http.MethodGet, "/api/users/"+id, "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "{}", string(env.Data))
}

func TestUsers_Errors(t *testing.T) {
	s := newServer(t)
	_, _ = s.do(t, http.MethodPost, "/api/users", `{"name":"Alice","email":"alice@example.com"}`)

	tests := []struct {
		name      string
		method    string
		target    string
		body      string
		want      int
		wantField string
	}{
		{name: "malformed id", method: http.MethodGet, target: "/api/users/abc", want: http.StatusNotFound},
		{name: "missing fields", method: http.MethodPost, target: "/api/users", body: `{"name": ""}`, want: http.StatusBadRequest, wantField: "email"},
		{name: "bad email", method: http.MethodPost, target: "/api/users", body: `{"name":"x","email":"nope"}`, want: http.StatusBadRequest, wantField: "email"},
		{name: "broken json", method: http.MethodPost, target: "/api/users", body: `{"name":`, want: http.StatusBadRequest, wantField: "payload"},
		{name: "wrong type", method: http.MethodPost, target: "/api/users", body: `{"name":"x","email":"y@example.com","pendingTasks":"t1"}`, want: http.StatusBadRequest, wantField: "pendingTasks"},
		{name: "duplicate email", method: http.MethodPost, target: "/api/users", body: `{"name":"Other","email":"ALICE@example.com"}`, want: http.StatusConflict},
		{name: "replace missing", method: http.MethodPut, target: "/api/users/abc", body: `{"name":"x","email":"x@example.com"}`, want: http.StatusNotFound},
		{name: "delete missing", method: http.MethodDelete, target: "/api/users/abc", want: http.StatusNotFound},
		{name: "bad where", method: http.MethodGet, target: "/api/users?where=" + url.QueryEscape(`{"name":`), want: http.StatusBadRequest, wantField: "where"},
		{name: "forbidden operator", method: http.MethodGet, target: "/api/users?where=" + url.QueryEscape(`{"$where":"1"}`), want: http.StatusBadRequest, wantField: "where"},
		{name: "negative skip", method: http.MethodGet, target: "/api/users?skip=-1", want: http.StatusBadRequest, wantField: "skip"},
		{name: "unknown field", method: http.MethodGet, target: "/api/users?where=" + url.QueryEscape(`{"owner":"x"}`), want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := s.do(t, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.want, code)
			assert.False(t, env.Success)
			assert.NotEmpty(t, env.Message)
			if tt.wantField != "" {
				assert.Contains(t, env.Error, tt.wantField)
			}
		})
	}
}

func TestTasks_SyncThroughHTTP(t *testing.T) {
	s := newServer(t)

	_, env := s.do(t, http.MethodPost, "/api/users", `{"name":"Alice","email":"alice@example.com"}`)
	uid := decode[map[string]any](t, env.Data)["_id"].(string)

	code, env := s.do(t, http.MethodPost, "/api/tasks", `{"name":"Task1","deadline":"2030-01-01T00:00:00.000Z","description":"testing task","completed":false}`)
	require.Equal(t, http.StatusCreated, code)
	task := decode[map[string]any](t, env.Data)
	tid := task["_id"].(string)
	assert.Equal(t, "unassigned", task["assignedUserName"])
	assert.Equal(t, "", task["assignedUser"])
	assert.Equal(t, "2030-01-01T00:00:00Z", task["deadline"])

	body := fmt.Sprintf(`{"name":"Task1","deadline":"2030-01-01T00:00:00.000Z","completed":false,"assignedUser":%q,"assignedUserName":"ignored"}`, uid)
	code, env = s.do(t, http.MethodPut, "/api/tasks/"+tid, body)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Alice", decode[map[string]any](t, env.Data)["assignedUserName"])

	_, env = s.do(t, http.MethodGet, "/api/users/"+uid, "")
	assert.Equal(t, []any{tid}, decode[map[string]any](t, env.Data)["pendingTasks"])

	body = strings.Replace(body, `"completed":false`, `"completed":true`, 1)
	code, _ = s.do(t, http.MethodPut, "/api/tasks/"+tid, body)
	require.Equal(t, http.StatusOK, code)
	_, env = s.do(t, http.MethodGet, "/api/users/"+uid, "")
	assert.Equal(t, []any{}, decode[map[string]any](t, env.Data)["pendingTasks"])

	code, env = s.do(t, http.MethodPut, "/api/tasks/"+tid, `{"name":"Task1","deadline":"2030-01-01T00:00:00Z"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, env.Error, "completed")

	code, env = s.do(t, http.MethodPost, "/api/tasks", `{"name":"NoDeadline"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, env.Error, "deadline")

	code, _ = s.do(t, http.MethodDelete, "/api/tasks/"+tid, "")
	assert.Equal(t, http.StatusNoContent, code)
}

func TestTasks_FormBody(t *testing.T) {
	s := newServer(t)
	u, err := s.coord.CreateUser(context.Background(), application.UserInput{Name: "Bob", Email: "bob@example.com"})
	require.NoError(t, err)

	form := url.Values{
		"name":         {"Form task"},
		"deadline":     {"2030-01-01T00:00:00Z"},
		"completed":    {"false"},
		"assignedUser": {u.ID},
	}
	req := httptest.NewRequest(http.MethodPost, "/api/tasks", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	got, err := s.coord.GetUser(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Len(t, got.PendingTasks, 1)

	form = url.Values{"name": {"Carol"}, "email": {"carol@example.com"}, "pendingTasks": got.PendingTasks}
	req = httptest.NewRequest(http.MethodPost, "/api/users", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	got, err = s.coord.GetUser(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Empty(t, got.PendingTasks, "task moved to the new user")
}

func TestList_QueryParameters(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()
	for _, name := range []string{"Carol", "alice", "Bob"} {
		_, err := s.coord.CreateUser(ctx, application.UserInput{Name: name, Email: strings.ToLower(name) + "@example.com"})
		require.NoError(t, err)
	}

	names := func(raw json.RawMessage) []string {
		var out []string
		for _, d := range decode[[]map[string]any](t, raw) {
			out = append(out, d["name"].(string))
		}
		return out
	}

	tests := []struct {
		name   string
		params url.Values
		want   []string
	}{
		{name: "creation order", params: url.Values{}, want: []string{"Carol", "alice", "Bob"}},
		{name: "sort", params: url.Values{"sort": {`{"name":1}`}}, want: []string{"Bob", "Carol", "alice"}},
		{name: "sort desc with window", params: url.Values{"sort": {`{"name":-1}`}, "skip": {"1"}, "limit": {"1"}}, want: []string{"Carol"}},
		{name: "regex", params: url.Values{"where": {`{"name":{"$regex":"^a","$options":"i"}}`}}, want: []string{"alice"}},
		{name: "in", params: url.Values{"where": {`{"email":{"$in":["bob@example.com","carol@example.com"]}}`}}, want: []string{"Carol", "Bob"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := s.do(t, http.MethodGet, "/api/users?"+tt.params.Encode(), "")
			require.Equal(t, http.StatusOK, code)
			assert.Equal(t, tt.want, names(env.Data))
		})
	}

	code, env := s.do(t, http.MethodGet, "/api/users?count=true&where="+url.QueryEscape(`{"name":{"$ne":"Bob"}}`), "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "2", string(env.Data))

	code, env = s.do(t, http.MethodGet, "/api/users?"+url.Values{"filter": {`{"email":0}`}}.Encode(), "")
	require.Equal(t, http.StatusOK, code)
	for _, d := range decode[[]map[string]any](t, env.Data) {
		assert.NotContains(t, d, "email")
		assert.Contains(t, d, "_id")
	}
}

func TestTasks_DefaultLimit(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()
	for i := 0; i < 101; i++ {
		_, err := s.coord.CreateTask(ctx, application.TaskInput{Name: fmt.Sprintf("t%03d", i), Deadline: time.Now()})
		require.NoError(t, err)
	}

	_, env := s.do(t, http.MethodGet, "/api/tasks", "")
	assert.Len(t, decode[[]map[string]any](t, env.Data), 100)

	_, env = s.do(t, http.MethodGet, "/api/tasks?limit=0", "")
	assert.Len(t, decode[[]map[string]any](t, env.Data), 101)

	_, env = s.do(t, http.MethodGet, "/api/tasks?count=true", "")
	assert.Equal(t, "100", string(env.Data))

	_, env = s.do(t, http.MethodGet, "/api/users", "")
	assert.Equal(t, "[]", string(env.Data))
}

func TestSearch(t *testing.T) {
	s := newServer(t)

	code, env := s.do(t, http.MethodGet, "/api/users/search?q=ann", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "[]", string(env.Data))

	m := new(mockSearcher)
	s.users.Searcher = m
	s.tasks.Searcher = m
	m.On("SearchUsers", mock.Anything, "ann", 5).Return([]map[string]any{{"name": "Ann"}}, nil)
	m.On("SearchTasks", mock.Anything, "report", 0).Return([]map[string]any(nil), errors.New("es down"))

	code, env = s.do(t, http.MethodGet, "/api/users/search?q=ann&size=5", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []map[string]any{{"name": "Ann"}}, decode[[]map[string]any](t, env.Data))

	code, env = s.do(t, http.MethodGet, "/api/tasks/search?q=report&size=abc", "")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "internal server error", env.Message)
	m.AssertExpectations(t)
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&application.ValidationError{Fields: map[string]string{"name": "is required"}}, http.StatusBadRequest},
		{&query.ParamError{Param: "where", Err: errors.New("bad")}, http.StatusBadRequest},
		{fmt.Errorf("%w: unknown field", query.ErrInvalidQuery), http.StatusBadRequest},
		{application.ErrUserNotFound, http.StatusNotFound},
		{application.ErrTaskNotFound, http.StatusNotFound},
		{application.ErrDuplicateEmail, http.StatusConflict},
		{fmt.Errorf("%w: write conflict", application.ErrConflict), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusOf(tt.err))
		})
	}
}
