// Package certs stores corporation approval certificate documents. The
// ledger keeps only the certificate reference; the document itself lives in
// one of the backends here.
package certs

import (
	"context"
	"errors"
	"io"
	"time"
)

// Driver identifies a concrete certificate storage backend.
type Driver string

const (
	DriverFilesystem Driver = "fs"     // local filesystem (default, dev)
	DriverS3         Driver = "s3"     // S3 / MinIO compatible
	DriverMemory     Driver = "memory" // in-memory (tests)
)

// Info describes a stored certificate document.
type Info struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size_bytes"`
	ContentType  string    `json:"content_type,omitempty"`
	Digest       string    `json:"digest,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// Store is the interface certificate backends implement. Certificates are
// immutable: Put fails when the key already exists.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) (Info, error)
	Get(ctx context.Context, key string) (Info, io.ReadCloser, error)
	Head(ctx context.Context, key string) (Info, error)
	Delete(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string) ([]Info, error)
	Driver() Driver
}

// ErrNotFound is returned when no certificate exists under a key.
var ErrNotFound = errors.New("certs: certificate not found")

// ErrExists is returned when a certificate key is already taken.
var ErrExists = errors.New("certs: certificate already exists")
