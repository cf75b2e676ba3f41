// Package csvstore keeps resolved city coordinates in a flat CSV file that
// remains readable by pandas (index column first):
//
//	city,lon,lat
//	Hamburg,9.99,53.55
//	Paris,2.35,48.85
//
// The header is written once, when the file is created. New cities are
// appended as single rows.
package csvstore

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/couchcryptid/ens-meteogram/internal/domain"
	"github.com/gofrs/flock"
)

// FileName is the table name used inside HOME_FOLDER.
const FileName = "cities_coordinates.csv"

const lockRetryDelay = 50 * time.Millisecond

var header = []string{"city", "lon", "lat"}

// Store implements domain.CoordinateStore and domain.StoreLocker on a CSV file.
type Store struct {
	path string
	lock *flock.Flock
}

// New creates a store for the CSV file at path. The file is created lazily on
// the first append.
func New(path string) *Store {
	return &Store{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

// Path returns the location of the table.
func (s *Store) Path() string { return s.path }

// Lock takes an exclusive advisory lock on a sidecar file so that several
// processes can share one table.
func (s *Store) Lock(ctx context.Context) (func() error, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return nil, s.ioError("lock", err)
	}
	ok, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, s.ioError("lock", err)
	}
	if !ok {
		return nil, s.ioError("lock", errors.New("lock not acquired"))
	}
	return s.lock.Unlock, nil
}

// Load reads the whole table. A missing file is an empty table.
func (s *Store) Load(_ context.Context) (map[string]domain.Coordinates, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]domain.Coordinates{}, nil
	}
	if err != nil {
		return nil, s.ioError("read", err)
	}
	defer f.Close()

	table, err := parse(f)
	if err != nil {
		return nil, s.ioError("read", err)
	}
	return table, nil
}

// Append writes one row, creating the file with a header if needed.
func (s *Store) Append(_ context.Context, e domain.CoordinateEntry) error {
	if e.City == "" {
		return s.ioError("write", errors.New("empty city name"))
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return s.ioError("write", err)
	}

	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return s.ioError("write", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return s.ioError("write", err)
	}

	if info.Size() > 0 {
		terminated, err := endsWithNewline(s.path, info.Size())
		if err != nil {
			f.Close()
			return s.ioError("write", err)
		}
		if !terminated {
			if _, err := f.Write([]byte("\n")); err != nil {
				f.Close()
				return s.ioError("write", err)
			}
		}
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(header); err != nil {
			f.Close()
			return s.ioError("write", err)
		}
	}
	if err := w.Write(formatRow(e)); err != nil {
		f.Close()
		return s.ioError("write", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return s.ioError("write", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return s.ioError("write", err)
	}
	if err := f.Close(); err != nil {
		return s.ioError("write", err)
	}
	return nil
}

func endsWithNewline(path string, size int64) (bool, error) {
	r, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer r.Close()
	last := make([]byte, 1)
	if _, err := r.ReadAt(last, size-1); err != nil {
		return false, err
	}
	return last[0] == '\n', nil
}

func (s *Store) ioError(op string, err error) error {
	return &domain.CacheIOError{Op: op, Path: s.path, Err: err}
}

// parse reads rows of city,lon,lat. The first row is skipped when it is a
// header (both coordinates non-numeric). Later duplicates of a city are ignored.
func parse(r io.Reader) (map[string]domain.Coordinates, error) {
	cr := csv.NewReader(bufio.NewReader(r))
	cr.FieldsPerRecord = 3
	cr.TrimLeadingSpace = true

	out := make(map[string]domain.Coordinates)
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}

		lon, lonErr := strconv.ParseFloat(rec[1], 64)
		lat, latErr := strconv.ParseFloat(rec[2], 64)
		if line == 1 && lonErr != nil && latErr != nil {
			continue
		}
		if lonErr != nil || latErr != nil {
			return nil, fmt.Errorf("line %d: invalid coordinates %q,%q", line, rec[1], rec[2])
		}
		if rec[0] == "" {
			return nil, fmt.Errorf("line %d: empty city name", line)
		}
		if _, dup := out[rec[0]]; dup {
			continue
		}
		out[rec[0]] = domain.Coordinates{Lon: lon, Lat: lat}
	}
}

func formatRow(e domain.CoordinateEntry) []string {
	return []string{
		e.City,
		strconv.FormatFloat(e.Lon, 'f', -1, 64),
		strconv.FormatFloat(e.Lat, 'f', -1, 64),
	}
}
