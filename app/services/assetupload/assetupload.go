// Package assetupload forwards input files to the remote service. The number
// of uploads in flight at once is bounded.
package assetupload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"hubrunner/internal/remotejob"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

const DefaultMaxBytes = 50 << 20

var (
	ErrMissingAPIKey = errors.New("API key is required")
	ErrMissingName   = errors.New("file name is required")
	ErrFileTooLarge  = errors.New("file exceeds upload size limit")
)

type Service struct {
	client   remotejob.AssetOperations
	sem      *semaphore.Weighted
	maxBytes int64
}

func New(client remotejob.AssetOperations, concurrency int, maxBytes int64) *Service {
	if concurrency < 1 {
		concurrency = 1
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Service{
		client:   client,
		sem:      semaphore.NewWeighted(int64(concurrency)),
		maxBytes: maxBytes,
	}
}

// Upload sends one file and returns the remote file name to reference in
// task parameters. It waits for a free upload slot or for ctx to end.
func (s *Service) Upload(ctx context.Context, apiKey, fileName string, r io.Reader) (*remotejob.UploadResult, error) {
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	fileName = filepath.Base(fileName)
	if fileName == "." || fileName == string(filepath.Separator) {
		return nil, ErrMissingName
	}

	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", fileName, err)
	}
	if int64(len(data)) > s.maxBytes {
		return nil, ErrFileTooLarge
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)

	result, err := s.client.Upload(ctx, apiKey, fileName, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	log.WithField("file_name", result.FileName).WithField("bytes", len(data)).Info("file uploaded")
	return result, nil
}
