package nn

import (
	"archive/zip"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
)

// ErrModelUnavailable marks a weight archive that is missing, unreadable or
// does not fit the model's architecture.
var ErrModelUnavailable = errors.New("scoring model unavailable")

// Save writes every layer as w{i}.npy / b{i}.npy entries of a zip archive
// (the .npz layout). The file is written next to path and renamed into place.
func (m *Model) Save(path string) (err error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create weights dir: %w", err)
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".weights-*.npz")
	if err != nil {
		return fmt.Errorf("create weights file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	zw := zip.NewWriter(tmp)
	for i, l := range m.layers {
		if err := writeEntry(zw, fmt.Sprintf("w%d.npy", i), l.W); err != nil {
			return err
		}
		if err := writeEntry(zw, fmt.Sprintf("b%d.npy", i), l.B); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish weights archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close weights file: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

func writeEntry(zw *zip.Writer, name string, m *mat.Dense) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	if err := npyio.Write(w, m); err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return nil
}

// Load replaces the model's weights with the archive at path. Any failure
// wraps ErrModelUnavailable and leaves the current weights untouched.
func (m *Model) Load(path string) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	defer zr.Close()

	entries := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		entries[f.Name] = f
	}

	layers := make([]Layer, len(m.layers))
	for i, dims := range m.shapes() {
		w, err := readEntry(entries, fmt.Sprintf("w%d", i))
		if err != nil {
			return err
		}
		b, err := readEntry(entries, fmt.Sprintf("b%d", i))
		if err != nil {
			return err
		}
		if r, c := w.Dims(); r != dims[0] || c != dims[1] {
			return fmt.Errorf("%w: w%d has shape (%d, %d), want (%d, %d)", ErrModelUnavailable, i, r, c, dims[0], dims[1])
		}
		if r, c := b.Dims(); r != 1 || c != dims[1] {
			return fmt.Errorf("%w: b%d has shape (%d, %d), want (1, %d)", ErrModelUnavailable, i, r, c, dims[1])
		}
		layers[i] = Layer{W: w, B: b}
	}
	m.layers = layers
	return nil
}

func readEntry(entries map[string]*zip.File, key string) (*mat.Dense, error) {
	f, ok := entries[key+".npy"]
	if !ok {
		if f, ok = entries[key]; !ok {
			return nil, fmt.Errorf("%w: archive has no %s", ErrModelUnavailable, key)
		}
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrModelUnavailable, key, err)
	}
	defer rc.Close()
	var d mat.Dense
	if err := npyio.Read(rc, &d); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrModelUnavailable, key, err)
	}
	return &d, nil
}
