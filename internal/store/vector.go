package store

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sync"

	verrors "github.com/voxide/voxrag/internal/errors"
)

const (
	float32Size = 4

	// HeaderSize is the fixed vector file header:
	//   0..7   magic "VOXVEC01"
	//   8..15  dimension (uint64, little-endian)
	//   16..23 count (uint64, little-endian)
	HeaderSize = 24

	// initialCapacity is how many vectors a fresh file is pre-grown to hold.
	initialCapacity = 1024
)

var fileMagic = [8]byte{'V', 'O', 'X', 'V', 'E', 'C', '0', '1'}

// MmapVectorStore implements VectorStore over a grow-on-demand
// memory-mapped file. The file may be larger than the valid region;
// the on-disk count is authoritative and trailing reserved bytes are
// ignored on reopen.
//
// A single RW mutex serializes appends (including resize+remap) against
// reads. Get copies bytes out under the shared lock, so no caller ever
// holds a reference into a region the writer may remap.
type MmapVectorStore struct {
	filename string
	file     *os.File
	mu       sync.RWMutex
	mapped   []byte
	dim      int
	count    uint64

	// Windows mapping handles; unused on POSIX.
	mapHandle  uintptr
	viewHandle uintptr
}

// NewMmapVectorStore opens or creates the vector file at filename with
// the requested dimension. On an empty file the header is written and
// the file is pre-grown. On a non-empty file the magic and dimension
// are validated; a mismatch is a fatal configuration error instructing
// the operator to delete the file.
func NewMmapVectorStore(filename string, dim int) (*MmapVectorStore, error) {
	if dim <= 0 {
		return nil, verrors.Newf(verrors.ErrCodeConfigInvalid, "invalid vector dimension: %d", dim)
	}

	f, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, verrors.Wrap(verrors.ErrCodeMmapFailed, fmt.Errorf("open %s: %w", filename, err))
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, verrors.Wrap(verrors.ErrCodeMmapFailed, err)
	}

	s := &MmapVectorStore{
		filename: filename,
		file:     f,
		dim:      dim,
	}

	if info.Size() == 0 {
		if err := s.initNew(); err != nil {
			_ = f.Close()
			return nil, err
		}
	}

	if err := s.remap(); err != nil {
		_ = f.Close()
		return nil, err
	}

	onDiskDim, onDiskCount, err := s.readAndValidateHeader()
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	// The file dimension is authoritative; the caller must agree with it.
	if int(onDiskDim) != s.dim {
		_ = s.Close()
		return nil, verrors.Newf(verrors.ErrCodeDimensionLocked,
			"vector dimension mismatch: file dim=%d, requested dim=%d", onDiskDim, s.dim).
			WithSuggestion(fmt.Sprintf("delete %s to reset the store", filename))
	}
	s.count = onDiskCount

	return s, nil
}

func (s *MmapVectorStore) initNew() error {
	initialSize := int64(HeaderSize + initialCapacity*s.dim*float32Size)
	if err := s.resize(initialSize); err != nil {
		return err
	}
	if err := s.remap(); err != nil {
		return err
	}
	s.writeHeader(uint64(s.dim), 0)
	s.count = 0
	return nil
}

func (s *MmapVectorStore) readAndValidateHeader() (dim uint64, count uint64, err error) {
	if len(s.mapped) < HeaderSize {
		return 0, 0, verrors.Newf(verrors.ErrCodeBadMagic,
			"vector file too small for header: %d < %d", len(s.mapped), HeaderSize)
	}

	var mg [8]byte
	copy(mg[:], s.mapped[:8])
	if mg != fileMagic {
		return 0, 0, verrors.New(verrors.ErrCodeBadMagic,
			"invalid vector file header (magic mismatch)", nil).
			WithSuggestion(fmt.Sprintf("delete %s to reset the store", s.filename))
	}

	dim = binary.LittleEndian.Uint64(s.mapped[8:16])
	count = binary.LittleEndian.Uint64(s.mapped[16:24])
	if dim == 0 {
		return 0, 0, verrors.New(verrors.ErrCodeBadMagic,
			"invalid vector file header (dim=0)", nil).
			WithSuggestion(fmt.Sprintf("delete %s to reset the store", s.filename))
	}
	return dim, count, nil
}

func (s *MmapVectorStore) writeHeader(dim uint64, count uint64) {
	copy(s.mapped[:8], fileMagic[:])
	binary.LittleEndian.PutUint64(s.mapped[8:16], dim)
	binary.LittleEndian.PutUint64(s.mapped[16:24], count)
}

// resize unmaps, then truncates the file. The caller must remap after.
// Unmapping before truncate is required on Windows and keeps POSIX
// kernels from faulting readers of pages past the new EOF.
func (s *MmapVectorStore) resize(newSize int64) error {
	if err := s.munmap(); err != nil {
		return verrors.Wrap(verrors.ErrCodeMmapFailed, err)
	}
	if err := s.file.Truncate(newSize); err != nil {
		return verrors.Wrap(verrors.ErrCodeMmapFailed, err)
	}
	return nil
}

// remap maps the whole current file length. Any existing view is
// unmapped first; mapping over a live view leaks handles on Windows.
func (s *MmapVectorStore) remap() error {
	if err := s.munmap(); err != nil {
		return verrors.Wrap(verrors.ErrCodeMmapFailed, err)
	}

	fi, err := s.file.Stat()
	if err != nil {
		return verrors.Wrap(verrors.ErrCodeMmapFailed, err)
	}
	size := fi.Size()
	if size == 0 {
		return nil
	}

	if err := s.mmap(size); err != nil {
		return verrors.Wrap(verrors.ErrCodeMmapFailed, err)
	}
	return nil
}

// Append writes the vector at the next id and returns that id. The id
// equals the pre-increment count; ids are strictly increasing and never
// reused. Growth is max(1.5x current, required), performed under the
// writer lock so no reader observes a partially remapped view.
func (s *MmapVectorStore) Append(vector Vector) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(vector) != s.dim {
		return 0, verrors.Newf(verrors.ErrCodeDimensionMismatch,
			"vector dimension mismatch: expected %d, got %d", s.dim, len(vector))
	}

	requiredSize := int64(HeaderSize + (int(s.count)+1)*s.dim*float32Size)
	if requiredSize > int64(len(s.mapped)) {
		newSize := int64(len(s.mapped)) + int64(len(s.mapped))/2
		if newSize < requiredSize {
			newSize = requiredSize
		}

		if err := s.resize(newSize); err != nil {
			return 0, verrors.New(verrors.ErrCodeVectorAppend, "resize failed", err)
		}
		if err := s.remap(); err != nil {
			return 0, verrors.New(verrors.ErrCodeVectorAppend, "remap failed", err)
		}
		// Fresh mapping; make sure the header is intact before writing.
		s.writeHeader(uint64(s.dim), s.count)
	}

	offset := HeaderSize + int(s.count)*s.dim*float32Size
	for i, v := range vector {
		binary.LittleEndian.PutUint32(s.mapped[offset+i*float32Size:], math.Float32bits(v))
	}

	s.count++
	s.writeHeader(uint64(s.dim), s.count)

	return s.count - 1, nil
}

// Get returns a copy of the vector stored at id.
func (s *MmapVectorStore) Get(id uint64) (Vector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id >= s.count {
		return nil, verrors.Newf(verrors.ErrCodeVectorNotFound,
			"vector id out of range: %d >= %d", id, s.count)
	}

	offset := HeaderSize + int(id)*s.dim*float32Size
	vec := make(Vector, s.dim)
	for i := 0; i < s.dim; i++ {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(s.mapped[offset+i*float32Size:]))
	}

	return vec, nil
}

// Count returns the number of valid vectors.
func (s *MmapVectorStore) Count() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// Dimension returns the store's vector dimension.
func (s *MmapVectorStore) Dimension() int {
	return s.dim
}

// Close unmaps the view and closes the underlying file. Durability of
// vector bytes is at the granularity of page flushes here; metadata
// durability is the bbolt store's concern.
func (s *MmapVectorStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_ = s.munmap()
	return s.file.Close()
}

var _ VectorStore = (*MmapVectorStore)(nil)
