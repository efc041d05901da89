// Package export writes point-in-time JSON Lines snapshots of both
// collections and uploads them to Google Cloud Storage.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strconv"
	"time"

	"cloud.google.com/go/storage"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-ddd-task-sync/internal/application"
	"github.com/oksasatya/go-ddd-task-sync/internal/domain/repository"
	"github.com/oksasatya/go-ddd-task-sync/pkg/helpers"
	"github.com/oksasatya/go-ddd-task-sync/pkg/query"
)

const pageSize = 500

var stableOrder = []query.SortField{{Field: "dateCreated"}, {Field: "_id"}}

// WriteUsers streams every user as one wire document per line and returns
// the number written.
func WriteUsers(ctx context.Context, store repository.Store, w io.Writer) (int, error) {
	enc := json.NewEncoder(w)
	n := 0
	for skip := int64(0); ; skip += pageSize {
		page, err := store.Users().Find(ctx, query.Params{Sort: stableOrder, Skip: skip, Limit: pageSize})
		if err != nil {
			return n, fmt.Errorf("read users: %w", err)
		}
		for _, u := range page {
			if err := enc.Encode(application.NewUserDocument(u)); err != nil {
				return n, err
			}
			n++
		}
		if len(page) < pageSize {
			return n, nil
		}
	}
}

// WriteTasks is WriteUsers for tasks.
func WriteTasks(ctx context.Context, store repository.Store, w io.Writer) (int, error) {
	enc := json.NewEncoder(w)
	n := 0
	for skip := int64(0); ; skip += pageSize {
		page, err := store.Tasks().Find(ctx, query.Params{Sort: stableOrder, Skip: skip, Limit: pageSize})
		if err != nil {
			return n, fmt.Errorf("read tasks: %w", err)
		}
		for _, t := range page {
			if err := enc.Encode(application.NewTaskDocument(t)); err != nil {
				return n, err
			}
			n++
		}
		if len(page) < pageSize {
			return n, nil
		}
	}
}

// ObjectPath names a snapshot object: prefix/20060102T150405Z/kind.jsonl.
func ObjectPath(prefix string, at time.Time, kind string) string {
	return path.Join(prefix, at.UTC().Format("20060102T150405Z"), kind+".jsonl")
}

// Exporter uploads snapshots to one bucket.
type Exporter struct {
	Store  repository.Store
	GCS    *storage.Client
	Bucket string
	Prefix string
	Logger *logrus.Logger
}

// Run snapshots users then tasks and returns the uploaded object URLs.
// The two files are read separately and are not one consistent cut.
func (e *Exporter) Run(ctx context.Context, at time.Time) ([]string, error) {
	kinds := []struct {
		name  string
		write func(context.Context, repository.Store, io.Writer) (int, error)
	}{
		{"users", WriteUsers},
		{"tasks", WriteTasks},
	}
	var urls []string
	for _, k := range kinds {
		var buf bytes.Buffer
		n, err := k.write(ctx, e.Store, &buf)
		if err != nil {
			return urls, err
		}
		obj := ObjectPath(e.Prefix, at, k.name)
		meta := map[string]string{"kind": k.name, "count": strconv.Itoa(n), "taken_at": at.UTC().Format(time.RFC3339)}
		url, err := helpers.UploadObject(ctx, e.GCS, e.Bucket, obj, "application/x-ndjson", meta, &buf)
		if err != nil {
			return urls, fmt.Errorf("upload %s: %w", obj, err)
		}
		e.Logger.WithFields(logrus.Fields{"object": obj, "count": n}).Info("snapshot uploaded")
		urls = append(urls, url)
	}
	return urls, nil
}
