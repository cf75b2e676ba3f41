// Package plot hands a point dataset to the external meteogram script.
package plot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/couchcryptid/ens-meteogram/internal/domain"
)

const maxStderr = 2048

// Options configures a Plotter.
type Options struct {
	Command         []string // executable and leading arguments
	ImageDir        string
	ClimatologyT2M  string
	ClimatologyT850 string
}

// Plotter renders meteograms through an external command.
type Plotter struct {
	command  []string
	imageDir string
	climT2M  string
	climT850 string
	logger   *slog.Logger
}

// NewPlotter creates a Plotter. The command must name at least an executable.
func NewPlotter(opts Options, logger *slog.Logger) (*Plotter, error) {
	if len(opts.Command) == 0 || opts.Command[0] == "" {
		return nil, errors.New("plot command is empty")
	}
	return &Plotter{
		command:  opts.Command,
		imageDir: opts.ImageDir,
		climT2M:  opts.ClimatologyT2M,
		climT850: opts.ClimatologyT850,
		logger:   logger,
	}, nil
}

// OutputPath is where the meteogram of city is written.
func (p *Plotter) OutputPath(city string) string {
	return filepath.Join(p.imageDir, "meteogram_"+domain.FileSafeName(city)+".png")
}

// Plot runs the command for job and returns the image path.
func (p *Plotter) Plot(ctx context.Context, job domain.MeteogramJob) (string, error) {
	if err := os.MkdirAll(p.imageDir, 0o755); err != nil {
		return "", fmt.Errorf("create image dir: %w", err)
	}
	out := p.OutputPath(job.City)

	args := append([]string{}, p.command[1:]...)
	args = append(args,
		"--dataset", job.Dataset,
		"--city", job.City,
		"--run", job.Run.DateString()+job.Run.Hour.String(),
		"--lon", strconv.FormatFloat(job.Coordinates.Lon, 'f', -1, 64),
		"--lat", strconv.FormatFloat(job.Coordinates.Lat, 'f', -1, 64),
		"--output", out,
	)
	if p.climT2M != "" {
		args = append(args, "--clim-t2m", p.climT2M)
	}
	if p.climT850 != "" {
		args = append(args, "--clim-t850", p.climT850)
	}

	cmd := exec.CommandContext(ctx, p.command[0], args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > maxStderr {
			msg = msg[len(msg)-maxStderr:]
		}
		return "", fmt.Errorf("plot %s: %w: %s", job.City, err, msg)
	}
	if _, err := os.Stat(out); err != nil {
		return "", fmt.Errorf("plot %s: no image written: %w", job.City, err)
	}
	p.logger.Debug("meteogram plotted", "city", job.City, "run", job.Run.String(), "path", out)
	return out, nil
}
