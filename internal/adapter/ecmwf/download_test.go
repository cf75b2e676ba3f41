package ecmwf

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/ens-meteogram/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRetriever struct {
	requests []Request
	failOn   string
}

func (r *recordingRetriever) Retrieve(_ context.Context, req Request) error {
	r.requests = append(r.requests, req)
	if req.Param == r.failOn {
		return errors.New("portal unavailable")
	}
	return nil
}

func TestDownloadRun_AllVariables(t *testing.T) {
	rec := &recordingRetriever{}
	run, err := domain.ParseRun("20240301", "06")
	require.NoError(t, err)

	paths, err := NewDownloader(rec).DownloadRun(context.Background(), run, "/data")
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join("/data", "2t.grib2"),
		filepath.Join("/data", "tp.grib2"),
		filepath.Join("/data", "t_850.grib2"),
	}, paths)

	require.Len(t, rec.requests, 3)
	for _, req := range rec.requests {
		assert.Equal(t, "enfo", req.Stream)
		assert.Equal(t, "pf", req.Type)
		assert.Len(t, req.Steps, 48, "06 UTC runs stop at 144 h")
		assert.Equal(t, run, req.Run)
	}
	assert.Empty(t, rec.requests[0].Levelist)
	assert.Equal(t, "850", rec.requests[2].Levelist)
	assert.Equal(t, "t", rec.requests[2].Param)
}

func TestDownloadRun_StopsOnFailure(t *testing.T) {
	rec := &recordingRetriever{failOn: "tp"}
	run, err := domain.ParseRun("20240301", "00")
	require.NoError(t, err)

	paths, err := NewDownloader(rec).DownloadRun(context.Background(), run, "/data")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tp.grib2")
	assert.Equal(t, []string{filepath.Join("/data", "2t.grib2")}, paths)
	assert.Len(t, rec.requests, 2)
	assert.Len(t, rec.requests[0].Steps, 84)
}

func TestDownloadRun_UnsupportedHour(t *testing.T) {
	rec := &recordingRetriever{}
	run := domain.ForecastRun{Hour: domain.RunHour(3)}

	_, err := NewDownloader(rec).DownloadRun(context.Background(), run, "/data")
	require.ErrorIs(t, err, domain.ErrUnsupportedRunHour)
	assert.Empty(t, rec.requests)
}
