package codec

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/passbook-dev/passbook/internal/model"
)

// File persists the store document at a fixed path. It satisfies
// bank.Flusher.
type File struct {
	path string
}

// NewFile returns a File for path.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the document path.
func (f *File) Path() string { return f.path }

// Load reads the document. A missing file is an empty store.
func (f *File) Load() (model.State, error) {
	return f.read(Load)
}

// ReadRaw decodes the document without invariant checks. A missing file
// is an empty store.
func (f *File) ReadRaw() (model.State, error) {
	return f.read(Decode)
}

func (f *File) read(decode func([]byte) (model.State, error)) (model.State, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return model.State{}, nil
	}
	if err != nil {
		return model.State{}, fmt.Errorf("reading store: %w", err)
	}
	state, err := decode(data)
	if err != nil {
		return model.State{}, fmt.Errorf("%s: %w", f.path, err)
	}
	return state, nil
}

// Exists reports whether the document file is present.
func (f *File) Exists() bool {
	_, err := os.Stat(f.path)
	return err == nil
}

// Flush writes state to a temp file next to the document, syncs it, and
// renames it into place so readers never see a partial document.
func (f *File) Flush(state model.State) error {
	data, err := Save(state)
	if err != nil {
		return err
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("setting store permissions: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replacing store: %w", err)
	}
	committed = true
	return nil
}
