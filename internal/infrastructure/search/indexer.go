// Package search projects committed users and tasks into Elasticsearch and
// serves full-text lookups over them. The index is a read model only: a
// failed write leaves it stale until the document changes again.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-ddd-task-sync/internal/application"
	"github.com/oksasatya/go-ddd-task-sync/internal/domain/repository"
)

const requestTimeout = 3 * time.Second

// Indexer implements application.ChangeNotifier.
type Indexer struct {
	ES         *elasticsearch.Client
	Store      repository.Store
	UsersIndex string
	TasksIndex string
	Logger     *logrus.Logger
}

func NewIndexer(es *elasticsearch.Client, store repository.Store, usersIndex, tasksIndex string, logger *logrus.Logger) *Indexer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Indexer{ES: es, Store: store, UsersIndex: usersIndex, TasksIndex: tasksIndex, Logger: logger}
}

var mappings = map[string]map[string]any{
	"users": {
		"name":         map[string]any{"type": "text"},
		"email":        map[string]any{"type": "text", "fields": map[string]any{"raw": map[string]any{"type": "keyword"}}},
		"pendingTasks": map[string]any{"type": "keyword"},
		"dateCreated":  map[string]any{"type": "date"},
	},
	"tasks": {
		"name":             map[string]any{"type": "text"},
		"description":      map[string]any{"type": "text"},
		"deadline":         map[string]any{"type": "date"},
		"completed":        map[string]any{"type": "boolean"},
		"assignedUser":     map[string]any{"type": "keyword"},
		"assignedUserName": map[string]any{"type": "text"},
		"dateCreated":      map[string]any{"type": "date"},
	},
}

// EnsureIndices creates the user and task indices with explicit mappings
// when they do not exist yet. Existing indices are left alone.
func (ix *Indexer) EnsureIndices(ctx context.Context) error {
	if ix == nil || ix.ES == nil {
		return nil
	}
	var errs []error
	for kind, index := range map[string]string{"users": ix.UsersIndex, "tasks": ix.TasksIndex} {
		if index == "" {
			continue
		}
		errs = append(errs, ix.ensureIndex(ctx, index, mappings[kind]))
	}
	return errors.Join(errs...)
}

func (ix *Indexer) ensureIndex(ctx context.Context, index string, fields map[string]any) error {
	c, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	res, err := esapi.IndicesExistsRequest{Index: []string{index}}.Do(c, ix.ES)
	if err != nil {
		return fmt.Errorf("check index %s: %w", index, err)
	}
	_ = res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("check index %s: %s", index, res.Status())
	}

	b, err := json.Marshal(map[string]any{"mappings": map[string]any{"properties": fields}})
	if err != nil {
		return err
	}
	res, err = esapi.IndicesCreateRequest{Index: index, Body: bytes.NewReader(b)}.Do(c, ix.ES)
	if err != nil {
		return fmt.Errorf("create index %s: %w", index, err)
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		return fmt.Errorf("create index %s: %s", index, res.Status())
	}
	ix.Logger.WithField("index", index).Info("es index created")
	return nil
}

// Notify re-reads every touched document from the store and writes its
// current state to the index. Deleted documents, and touched ones that no
// longer exist, are removed.
func (ix *Indexer) Notify(ctx context.Context, cs application.ChangeSet) error {
	if ix.ES == nil {
		return nil
	}
	var errs []error

	if ix.UsersIndex != "" {
		for _, id := range cs.Users {
			u, err := ix.Store.Users().GetByID(ctx, nil, id)
			switch {
			case errors.Is(err, repository.ErrNotFound):
				errs = append(errs, ix.remove(ctx, ix.UsersIndex, id))
			case err != nil:
				errs = append(errs, fmt.Errorf("read user %s: %w", id, err))
			default:
				errs = append(errs, ix.put(ctx, ix.UsersIndex, id, application.NewUserDocument(*u)))
			}
		}
		for _, id := range cs.DeletedUsers {
			errs = append(errs, ix.remove(ctx, ix.UsersIndex, id))
		}
	}

	if ix.TasksIndex != "" {
		for _, id := range cs.Tasks {
			t, err := ix.Store.Tasks().GetByID(ctx, nil, id)
			switch {
			case errors.Is(err, repository.ErrNotFound):
				errs = append(errs, ix.remove(ctx, ix.TasksIndex, id))
			case err != nil:
				errs = append(errs, fmt.Errorf("read task %s: %w", id, err))
			default:
				errs = append(errs, ix.put(ctx, ix.TasksIndex, id, application.NewTaskDocument(*t)))
			}
		}
		for _, id := range cs.DeletedTasks {
			errs = append(errs, ix.remove(ctx, ix.TasksIndex, id))
		}
	}

	return errors.Join(errs...)
}

func (ix *Indexer) put(ctx context.Context, index, id string, doc any) error {
	b, err := sourceOf(doc)
	if err != nil {
		return err
	}
	req := esapi.IndexRequest{Index: index, DocumentID: id, Body: bytes.NewReader(b), Refresh: "false"}
	c, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	res, err := req.Do(c, ix.ES)
	if err != nil {
		ix.Logger.WithError(err).WithFields(logrus.Fields{"index": index, "doc_id": id}).Warn("es index failed")
		return err
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		ix.Logger.WithFields(logrus.Fields{"index": index, "doc_id": id, "status": res.Status()}).Warn("es index response error")
		return fmt.Errorf("index %s/%s: %s", index, id, res.Status())
	}
	return nil
}

// sourceOf encodes a wire document without _id, which Elasticsearch keeps
// as metadata.
func sourceOf(doc any) ([]byte, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	delete(m, "_id")
	return json.Marshal(m)
}

func (ix *Indexer) remove(ctx context.Context, index, id string) error {
	req := esapi.DeleteRequest{Index: index, DocumentID: id, Refresh: "false"}
	c, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	res, err := req.Do(c, ix.ES)
	if err != nil {
		ix.Logger.WithError(err).WithFields(logrus.Fields{"index": index, "doc_id": id}).Warn("es delete failed")
		return err
	}
	defer func() { _ = res.Body.Close() }()
	// already absent
	if res.StatusCode == http.StatusNotFound {
		return nil
	}
	if res.IsError() {
		ix.Logger.WithFields(logrus.Fields{"index": index, "doc_id": id, "status": res.Status()}).Warn("es delete response error")
		return fmt.Errorf("delete %s/%s: %s", index, id, res.Status())
	}
	return nil
}

// SearchUsers runs a multi_match query over user names and emails.
func (ix *Indexer) SearchUsers(ctx context.Context, q string, size int) ([]map[string]any, error) {
	if ix == nil {
		return []map[string]any{}, nil
	}
	return ix.search(ctx, ix.UsersIndex, q, size, []string{"email^2", "name"})
}

// SearchTasks runs a multi_match query over task names, descriptions and
// assignee names.
func (ix *Indexer) SearchTasks(ctx context.Context, q string, size int) ([]map[string]any, error) {
	if ix == nil {
		return []map[string]any{}, nil
	}
	return ix.search(ctx, ix.TasksIndex, q, size, []string{"name^2", "description", "assignedUserName"})
}

func (ix *Indexer) search(ctx context.Context, index, q string, size int, fields []string) ([]map[string]any, error) {
	if ix.ES == nil || index == "" {
		return []map[string]any{}, nil
	}
	if size <= 0 || size > 50 {
		size = 10
	}
	body := map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  q,
				"fields": fields,
			},
		},
		"size": size,
	}
	b, _ := json.Marshal(body)

	c, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	res, err := ix.ES.Search(
		ix.ES.Search.WithContext(c),
		ix.ES.Search.WithIndex(index),
		ix.ES.Search.WithBody(strings.NewReader(string(b))),
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()
	if res.IsError() {
		return nil, fmt.Errorf("search %s: %s", index, res.Status())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				ID     string         `json:"_id"`
				Source map[string]any `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		if h.Source == nil {
			h.Source = map[string]any{}
		}
		h.Source["_id"] = h.ID
		out = append(out, h.Source)
	}
	return out, nil
}

var _ application.ChangeNotifier = (*Indexer)(nil)
