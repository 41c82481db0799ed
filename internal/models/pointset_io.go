package models

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"
)

// CompressedExt marks point set files stored as zstd-compressed YAML.
const CompressedExt = ".zst"

// pointSetFile is the on-disk YAML layout of an ordered point set.
type pointSetFile struct {
	Width  int            `yaml:"width"`
	Height int            `yaml:"height"`
	Rows   [][][3]float64 `yaml:"rows"`
}

// MarshalYAML implements yaml.Marshaler.
func (ps *OrderedPointSet) MarshalYAML() (interface{}, error) {
	f := pointSetFile{
		Width:  ps.width,
		Height: ps.Height(),
		Rows:   make([][][3]float64, ps.Height()),
	}
	for r := range f.Rows {
		row := make([][3]float64, ps.width)
		for c := range row {
			p := ps.At(r, c)
			row[c] = [3]float64{p.X, p.Y, p.Z}
		}
		f.Rows[r] = row
	}
	return f, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (ps *OrderedPointSet) UnmarshalYAML(node *yaml.Node) error {
	var f pointSetFile
	if err := node.Decode(&f); err != nil {
		return err
	}
	if f.Height != len(f.Rows) {
		return fmt.Errorf("point set declares %d rows but holds %d", f.Height, len(f.Rows))
	}

	ps.Reset()
	ps.width = f.Width
	for i, row := range f.Rows {
		pts := make([]r3.Vec, len(row))
		for c, p := range row {
			pts[c] = r3.Vec{X: p[0], Y: p[1], Z: p[2]}
		}
		if err := ps.PushRow(pts); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	return nil
}

// ReadPointSet loads an ordered point set from a YAML file, decompressing
// it first when the name ends in CompressedExt.
func ReadPointSet(path string) (*OrderedPointSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading point set: %w", err)
	}
	if strings.HasSuffix(path, CompressedExt) {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		if data, err = dec.DecodeAll(data, nil); err != nil {
			return nil, fmt.Errorf("error decompressing point set: %w", err)
		}
	}

	ps := &OrderedPointSet{}
	if err := yaml.Unmarshal(data, ps); err != nil {
		return nil, fmt.Errorf("error parsing point set: %w", err)
	}
	return ps, nil
}

// WritePointSet saves an ordered point set as YAML, creating parent
// directories as needed. Names ending in CompressedExt are zstd-compressed.
func WritePointSet(path string, ps *OrderedPointSet) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating point set directory: %w", err)
	}

	data, err := yaml.Marshal(ps)
	if err != nil {
		return fmt.Errorf("error marshaling point set: %w", err)
	}
	if strings.HasSuffix(path, CompressedExt) {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return err
		}
		data = enc.EncodeAll(data, nil)
		if err := enc.Close(); err != nil {
			return err
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("error writing point set: %w", err)
	}
	return nil
}
