// Package cdo runs the Climate Data Operators binary to pull the grid point
// nearest to a city out of the downloaded ensemble files.
package cdo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/couchcryptid/ens-meteogram/internal/domain"
)

const (
	pointPrefix = "point_"
	gribSuffix  = ".grib2"
	maxStderr   = 2048
)

// ErrNoInputFiles is returned when the data folder holds no GRIB files.
var ErrNoInputFiles = errors.New("no grib2 files to extract from")

// Options configures an Extractor.
type Options struct {
	Path    string // cdo executable, defaults to "cdo"
	Threads int
	DataDir string
}

// Extractor interpolates the downloaded fields to a single point.
type Extractor struct {
	path    string
	threads int
	dataDir string
	logger  *slog.Logger
}

// NewExtractor creates an Extractor.
func NewExtractor(opts Options, logger *slog.Logger) *Extractor {
	path := opts.Path
	if path == "" {
		path = "cdo"
	}
	return &Extractor{
		path:    path,
		threads: max(opts.Threads, 1),
		dataDir: opts.DataDir,
		logger:  logger,
	}
}

// Extract merges every GRIB file in the data folder and remaps the result
// to the nearest neighbour of coords. It returns the path of the point file.
func (e *Extractor) Extract(ctx context.Context, city string, coords domain.Coordinates, run domain.ForecastRun) (string, error) {
	inputs, err := e.inputs()
	if err != nil {
		return "", err
	}

	out := filepath.Join(e.dataDir, pointPrefix+domain.FileSafeName(city)+gribSuffix)
	args := []string{
		"-O",
		"-P", strconv.Itoa(e.threads),
		"-remapnn,lon=" + formatCoord(coords.Lon) + "/lat=" + formatCoord(coords.Lat),
		"-merge",
	}
	args = append(args, inputs...)
	args = append(args, out)

	cmd := exec.CommandContext(ctx, e.path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	e.logger.Debug("running cdo", "city", city, "run", run.String(), "args", args)
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("cdo remapnn for %s: %w: %s", city, err, tail(stderr.String()))
	}
	if _, err := os.Stat(out); err != nil {
		return "", fmt.Errorf("cdo remapnn for %s: output missing: %w", city, err)
	}
	e.logger.Info("extracted grid point", "city", city, "run", run.String(), "path", out)
	return out, nil
}

// inputs lists the run's GRIB files, skipping point files from earlier
// extractions.
func (e *Extractor) inputs() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(e.dataDir, "*"+gribSuffix))
	if err != nil {
		return nil, err
	}
	inputs := matches[:0]
	for _, m := range matches {
		if !strings.HasPrefix(filepath.Base(m), pointPrefix) {
			inputs = append(inputs, m)
		}
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoInputFiles, e.dataDir)
	}
	sort.Strings(inputs)
	return inputs, nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderr {
		s = s[len(s)-maxStderr:]
	}
	return s
}
