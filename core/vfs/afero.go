package vfs

import (
	"context"
	"os"
	"strings"

	"github.com/spf13/afero"
)

// AferoBackend adapts an afero filesystem to the Backend interface. The
// memory and local backends are both afero trees.
type AferoBackend struct {
	fs afero.Fs
}

var _ Backend = (*AferoBackend)(nil)

// NewMemory returns an empty in-process tree.
func NewMemory() *AferoBackend {
	return &AferoBackend{fs: afero.NewMemMapFs()}
}

// NewLocal returns a backend bounded to the host directory root. Paths
// that try to escape the root with .. are rejected by the base-path
// wrapper.
func NewLocal(root string) *AferoBackend {
	return &AferoBackend{fs: afero.NewBasePathFs(afero.NewOsFs(), root)}
}

// NewAfero wraps an arbitrary afero filesystem.
func NewAfero(fs afero.Fs) *AferoBackend {
	return &AferoBackend{fs: fs}
}

func (b *AferoBackend) Read(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(b.fs, path)
	if err != nil {
		return nil, mapError(err)
	}
	return data, nil
}

func (b *AferoBackend) Write(ctx context.Context, path string, data []byte, appendTo bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if dir := parentDir(path); dir != "/" {
		if err := b.fs.MkdirAll(dir, 0o755); err != nil {
			return mapError(err)
		}
	}
	flag := os.O_WRONLY | os.O_CREATE
	if appendTo {
		flag |= os.O_APPEND
	} else {
		flag |= os.O_TRUNC
	}
	f, err := b.fs.OpenFile(path, flag, 0o644)
	if err != nil {
		return mapError(err)
	}
	defer f.Close()
	_, err = f.Write(data)
	return mapError(err)
}

func (b *AferoBackend) List(ctx context.Context, path string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	infos, err := afero.ReadDir(b.fs, path)
	if err != nil {
		return nil, mapError(err)
	}
	entries := make([]Entry, 0, len(infos))
	for _, fi := range infos {
		entries = append(entries, Entry{
			Name:    fi.Name(),
			Size:    fi.Size(),
			Dir:     fi.IsDir(),
			ModTime: fi.ModTime(),
		})
	}
	return entries, nil
}

func (b *AferoBackend) Stat(ctx context.Context, path string) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	fi, err := b.fs.Stat(path)
	if err != nil {
		return Entry{}, mapError(err)
	}
	return Entry{Name: fi.Name(), Size: fi.Size(), Dir: fi.IsDir(), ModTime: fi.ModTime()}, nil
}

func (b *AferoBackend) Mkdir(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return mapError(b.fs.MkdirAll(path, 0o755))
}

func (b *AferoBackend) Remove(ctx context.Context, path string, recursive bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if recursive {
		return mapError(b.fs.RemoveAll(path))
	}
	return mapError(b.fs.Remove(path))
}

func parentDir(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx <= 0 {
		return "/"
	}
	return path[:idx]
}

// mapError folds afero/os error values into the package's sentinel errors
// so callers can classify them without knowing the backend.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case os.IsNotExist(err):
		return ErrNotFound
	case os.IsPermission(err):
		return ErrReadOnly
	}
	return err
}
