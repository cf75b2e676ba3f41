package ecmwf

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/couchcryptid/ens-meteogram/internal/domain"
)

// Retriever is the subset of Client used by Downloader.
type Retriever interface {
	Retrieve(ctx context.Context, req Request) error
}

// Downloader fetches every domain.DownloadVariables field of a run.
type Downloader struct {
	client Retriever
}

// NewDownloader creates a Downloader backed by client.
func NewDownloader(client Retriever) *Downloader {
	return &Downloader{client: client}
}

// DownloadRun retrieves the perturbed ensemble members of each download
// variable for all steps of run into dir, one GRIB file per variable. It
// returns the written paths in variable order.
func (d *Downloader) DownloadRun(ctx context.Context, run domain.ForecastRun, dir string) ([]string, error) {
	steps, err := run.Steps()
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(domain.DownloadVariables))
	for _, v := range domain.DownloadVariables {
		target := filepath.Join(dir, v.File)
		err := d.client.Retrieve(ctx, Request{
			Run:      run,
			Stream:   domain.StreamEnsemble,
			Type:     domain.TypePerturbed,
			Param:    v.Param,
			Levelist: v.Levelist,
			Steps:    steps,
			Target:   target,
		})
		if err != nil {
			return paths, fmt.Errorf("download %s for run %s: %w", v.File, run, err)
		}
		paths = append(paths, target)
	}
	return paths, nil
}
