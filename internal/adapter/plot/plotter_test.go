package plot

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/couchcryptid/ens-meteogram/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeScript records its arguments and, unless told otherwise, writes the
// file that follows --output.
func fakeScript(t *testing.T, body string) (path, argsFile string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake requires a POSIX shell")
	}
	dir := t.TempDir()
	argsFile = filepath.Join(dir, "args")
	path = filepath.Join(dir, "plot.sh")
	script := "#!/bin/sh\nprintf '%s\\n' \"$@\" > '" + argsFile + "'\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path, argsFile
}

const writeOutput = `while [ $# -gt 0 ]; do
  if [ "$1" = "--output" ]; then : > "$2"; fi
  shift
done`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testJob(t *testing.T) domain.MeteogramJob {
	t.Helper()
	run, err := domain.ParseRun("20240301", "12")
	require.NoError(t, err)
	return domain.MeteogramJob{
		City:        "Paris",
		Run:         run,
		Coordinates: domain.Coordinates{Lon: 2.35, Lat: 48.85},
		Dataset:     "/data/point_Paris.grib2",
	}
}

func readArgs(t *testing.T, path string) []string {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(raw)), "\n")
}

func TestPlot_PassesJob(t *testing.T) {
	script, argsFile := fakeScript(t, writeOutput)
	images := filepath.Join(t.TempDir(), "images")

	p, err := NewPlotter(Options{Command: []string{script, "--dpi", "100"}, ImageDir: images}, discardLogger())
	require.NoError(t, err)

	out, err := p.Plot(context.Background(), testJob(t))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(images, "meteogram_Paris.png"), out)
	assert.FileExists(t, out)

	assert.Equal(t, []string{
		"--dpi", "100",
		"--dataset", "/data/point_Paris.grib2",
		"--city", "Paris",
		"--run", "2024030112",
		"--lon", "2.35",
		"--lat", "48.85",
		"--output", out,
	}, readArgs(t, argsFile))
}

func TestPlot_Climatologies(t *testing.T) {
	script, argsFile := fakeScript(t, writeOutput)

	p, err := NewPlotter(Options{
		Command:         []string{script},
		ImageDir:        t.TempDir(),
		ClimatologyT2M:  "/clim/t2m.nc",
		ClimatologyT850: "/clim/t850.nc",
	}, discardLogger())
	require.NoError(t, err)

	_, err = p.Plot(context.Background(), testJob(t))
	require.NoError(t, err)

	args := readArgs(t, argsFile)
	assert.Equal(t, []string{"--clim-t2m", "/clim/t2m.nc", "--clim-t850", "/clim/t850.nc"}, args[len(args)-4:])
}

func TestPlot_ScriptFails(t *testing.T) {
	script, _ := fakeScript(t, `echo "KeyError: 't_clim'" >&2; exit 2`)

	p, err := NewPlotter(Options{Command: []string{script}, ImageDir: t.TempDir()}, discardLogger())
	require.NoError(t, err)

	_, err = p.Plot(context.Background(), testJob(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "KeyError")
	assert.Contains(t, err.Error(), "Paris")
}

func TestPlot_NoImageWritten(t *testing.T) {
	script, _ := fakeScript(t, "exit 0")

	p, err := NewPlotter(Options{Command: []string{script}, ImageDir: t.TempDir()}, discardLogger())
	require.NoError(t, err)

	_, err = p.Plot(context.Background(), testJob(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no image written")
}

func TestPlot_CancelledContext(t *testing.T) {
	script, _ := fakeScript(t, writeOutput)

	p, err := NewPlotter(Options{Command: []string{script}, ImageDir: t.TempDir()}, discardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.Plot(ctx, testJob(t))
	require.Error(t, err)
}

func TestNewPlotter_EmptyCommand(t *testing.T) {
	_, err := NewPlotter(Options{}, discardLogger())
	require.Error(t, err)

	_, err = NewPlotter(Options{Command: []string{""}}, discardLogger())
	require.Error(t, err)
}

func TestOutputPath(t *testing.T) {
	p, err := NewPlotter(Options{Command: []string{"true"}, ImageDir: "/srv/images"}, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, "/srv/images/meteogram_Frankfurt_Oder.png", p.OutputPath("Frankfurt/Oder"))
}
