package volume

import (
	"fmt"
	"image"
	_ "image/jpeg" // register decoders for image.Decode
	_ "image/png"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"golang.org/x/image/tiff"
	"gopkg.in/yaml.v3"

	"volseg/internal/models"
)

// MetadataFile is the name of the volume description stored next to the
// slice images.
const MetadataFile = "meta.yaml"

// sliceExtensions are tried in order when locating a slice on disk.
var sliceExtensions = []string{".tif", ".tiff", ".png", ".jpg"}

// Source provides authoritative slice data. Implementations must return the
// same content for the same index every time.
type Source interface {
	Info() models.VolumeInfo
	ReadSlice(index int) (*models.Slice, error)
}

// MemorySource keeps every slice in memory. It is used for synthetic
// volumes and tests.
type MemorySource struct {
	info   models.VolumeInfo
	slices []*models.Slice

	mu    sync.Mutex
	reads map[int]int
}

// NewMemorySource builds a source of the given dimensions whose samples are
// produced by fill.
func NewMemorySource(width, height, depth int, fill func(x, y, z int) uint16) *MemorySource {
	src := &MemorySource{
		info: models.VolumeInfo{
			Width:     width,
			Height:    height,
			Slices:    depth,
			VoxelSize: 1,
		},
		slices: make([]*models.Slice, depth),
		reads:  make(map[int]int),
	}
	for z := 0; z < depth; z++ {
		s := models.NewSlice(z, width, height)
		if fill != nil {
			for y := 0; y < height; y++ {
				for x := 0; x < width; x++ {
					s.Set(x, y, fill(x, y, z))
				}
			}
		}
		src.slices[z] = s
	}
	return src
}

// Info implements Source.
func (m *MemorySource) Info() models.VolumeInfo { return m.info }

// ReadSlice implements Source. Every call returns a fresh copy.
func (m *MemorySource) ReadSlice(index int) (*models.Slice, error) {
	if index < 0 || index >= len(m.slices) {
		return nil, fmt.Errorf("%w: slice %d of %d", ErrOutOfRange, index, len(m.slices))
	}
	m.mu.Lock()
	m.reads[index]++
	m.mu.Unlock()
	return m.slices[index].Clone(), nil
}

// Reads reports how many times slice index has been read.
func (m *MemorySource) Reads(index int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads[index]
}

// DirSource reads slices from a directory holding MetadataFile and one image
// per slice, named by zero-padded index (e.g. 007.tif).
type DirSource struct {
	dir       string
	info      models.VolumeInfo
	numDigits int
}

// OpenDir loads the metadata of an on-disk volume.
func OpenDir(dir string) (*DirSource, error) {
	data, err := os.ReadFile(filepath.Join(dir, MetadataFile))
	if err != nil {
		return nil, fmt.Errorf("error reading volume metadata: %w", err)
	}

	var info models.VolumeInfo
	if err := yaml.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("error parsing volume metadata: %w", err)
	}

	return &DirSource{
		dir:       dir,
		info:      info,
		numDigits: len(strconv.Itoa(info.Slices)),
	}, nil
}

// Info implements Source.
func (d *DirSource) Info() models.VolumeInfo { return d.info }

// SlicePath returns the path of slice index, preferring TIFF.
func (d *DirSource) SlicePath(index int) string {
	base := fmt.Sprintf("%0*d", d.numDigits, index)
	for _, ext := range sliceExtensions {
		p := filepath.Join(d.dir, base+ext)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return filepath.Join(d.dir, base+sliceExtensions[0])
}

// ReadSlice implements Source by decoding the slice file.
func (d *DirSource) ReadSlice(index int) (*models.Slice, error) {
	if index < 0 || index >= d.info.Slices {
		return nil, fmt.Errorf("%w: slice %d of %d", ErrOutOfRange, index, d.info.Slices)
	}

	path := d.SlicePath(index)
	s, err := decodeSliceFile(index, path)
	if err != nil {
		sliceDecodes.WithLabelValues("error").Inc()
		return nil, err
	}
	if s.Width != d.info.Width || s.Height != d.info.Height {
		sliceDecodes.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("slice %s is %dx%d, volume is %dx%d",
			path, s.Width, s.Height, d.info.Width, d.info.Height)
	}
	sliceDecodes.WithLabelValues("ok").Inc()
	return s, nil
}

// decodeSliceFile decodes a single image file into a Slice.
func decodeSliceFile(index int, path string) (*models.Slice, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open slice: %w", err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode slice %s: %w", path, err)
	}

	s := models.SliceFromImage(index, img)
	s.Filename = path
	return s, nil
}

// WriteDir stores every slice of src in dir as 16-bit TIFF plus the
// metadata file, producing a volume readable by OpenDir.
func WriteDir(dir string, src Source) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating volume directory: %w", err)
	}

	info := src.Info()
	data, err := yaml.Marshal(info)
	if err != nil {
		return fmt.Errorf("error marshaling volume metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, MetadataFile), data, 0644); err != nil {
		return fmt.Errorf("error writing volume metadata: %w", err)
	}

	numDigits := len(strconv.Itoa(info.Slices))
	for z := 0; z < info.Slices; z++ {
		s, err := src.ReadSlice(z)
		if err != nil {
			return err
		}

		path := filepath.Join(dir, fmt.Sprintf("%0*d.tif", numDigits, z))
		if err := writeTIFF(path, s); err != nil {
			return err
		}
	}
	return nil
}

func writeTIFF(path string, s *models.Slice) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create slice file: %w", err)
	}
	defer file.Close()

	if err := tiff.Encode(file, s.Gray16(), &tiff.Options{Compression: tiff.Deflate}); err != nil {
		return fmt.Errorf("failed to encode slice %s: %w", path, err)
	}
	return nil
}
