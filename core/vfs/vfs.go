// Package vfs routes kernel file paths to pluggable storage backends.
package vfs

import (
	"context"
	"errors"
	"time"
)

// ErrReadOnly is returned by mutating operations on a read-only mount.
var ErrReadOnly = errors.New("filesystem is read-only")

// ErrNotFound is returned when a path does not exist.
var ErrNotFound = errors.New("no such file or directory")

// ErrNotDir is returned when a directory operation hits a file.
var ErrNotDir = errors.New("not a directory")

// Entry describes one file or directory.
type Entry struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	Dir     bool      `json:"dir"`
	ModTime time.Time `json:"mtime,omitempty"`
}

// Backend is a single mounted filesystem. Paths handed to a backend are
// absolute, slash-separated and relative to the mount point.
type Backend interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte, appendTo bool) error
	List(ctx context.Context, path string) ([]Entry, error)
	Stat(ctx context.Context, path string) (Entry, error)
	Mkdir(ctx context.Context, path string) error
	Remove(ctx context.Context, path string, recursive bool) error
}
