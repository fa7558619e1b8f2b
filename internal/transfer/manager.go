package transfer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ochronus/storageportal/internal/config"
	"github.com/ochronus/storageportal/internal/services/portal"
	"github.com/ochronus/storageportal/internal/services/retry"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrDestinationExists is returned for downloads whose target is already
// present when overwriting is disabled.
var ErrDestinationExists = errors.New("destination already exists")

// Manager runs batches of uploads and downloads with a bounded number of
// concurrent transfers.
type Manager struct {
	client    portal.ClientAPI
	logger    *logrus.Logger
	workers   int
	retry     retry.Config
	overwrite bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithOverwrite allows downloads to replace existing files.
func WithOverwrite(overwrite bool) Option {
	return func(m *Manager) {
		m.overwrite = overwrite
	}
}

// WithRetry overrides the retry policy applied to downloads.
func WithRetry(cfg retry.Config) Option {
	return func(m *Manager) {
		m.retry = cfg
	}
}

// NewManager creates a new transfer manager
func NewManager(cfg *config.Config, logger *logrus.Logger, client portal.ClientAPI, opts ...Option) *Manager {
	m := &Manager{
		client:  client,
		logger:  logger,
		workers: cfg.Transfers,
		retry:   retry.Config{Attempts: cfg.Retries},
	}
	if m.workers < 1 {
		m.workers = 1
	}

	for _, opt := range opts {
		opt(m)
	}

	onRetry := m.retry.OnRetry
	m.retry.OnRetry = func(attempt int, err error, delay time.Duration) {
		logger.Warnf("attempt %d failed: %v; retrying in %s", attempt+1, err, delay)
		if onRetry != nil {
			onRetry(attempt, err, delay)
		}
	}
	return m
}

// Run executes jobs and returns one result per job, in the order given.
// A failing job does not stop the others; canceling ctx does.
func (m *Manager) Run(ctx context.Context, jobs []Job) []Result {
	results := make([]Result, len(jobs))

	var g errgroup.Group
	g.SetLimit(m.workers)

	for i, job := range jobs {
		g.Go(func() error {
			results[i] = m.run(ctx, job)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (m *Manager) run(ctx context.Context, job Job) Result {
	if err := ctx.Err(); err != nil {
		return Result{Job: job, Status: StatusFailed, Err: err}
	}

	var result Result
	switch job.Direction {
	case DirectionUpload:
		result = m.upload(ctx, job)
	case DirectionDownload:
		result = m.download(ctx, job)
	default:
		result = Result{Job: job, Status: StatusFailed, Err: fmt.Errorf("unknown direction %d", job.Direction)}
	}

	switch result.Status {
	case StatusDone:
		m.logger.Infof("%s: succeeded (%d bytes)", result.Job, result.Bytes)
	case StatusSkipped:
		m.logger.Infof("%s: skipped: %v", result.Job, result.Err)
	default:
		m.logger.Errorf("%s: failed: %v", result.Job, result.Err)
	}
	return result
}

// upload sends job.Path once. Uploads are never retried since the portal
// rejects a second copy of a filename.
func (m *Manager) upload(ctx context.Context, job Job) Result {
	result := Result{Job: job, Status: StatusFailed, Attempts: 1}
	if job.Name == "" {
		job.Name = filepath.Base(job.Path)
		result.Job = job
	}

	f, err := os.Open(job.Path)
	if err != nil {
		result.Err = err
		return result
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		result.Err = err
		return result
	}
	if info.IsDir() {
		result.Err = fmt.Errorf("%s is a directory", job.Path)
		return result
	}

	m.logger.Infof("%s: upload started", job)
	_, err = m.client.Upload(ctx, portal.UploadTask{
		Name:       job.Name,
		File:       f,
		Size:       info.Size(),
		OnProgress: job.OnProgress,
	})
	if err != nil {
		result.Err = err
		return result
	}

	result.Status = StatusDone
	result.Bytes = info.Size()
	return result
}

// download fetches job.Name into a temporary file next to job.Path and
// renames it into place once complete.
func (m *Manager) download(ctx context.Context, job Job) Result {
	result := Result{Job: job, Status: StatusFailed}
	if job.Path == "" {
		job.Path = filepath.Base(job.Name)
		result.Job = job
	}

	if _, err := os.Stat(job.Path); err == nil && !m.overwrite {
		result.Status = StatusSkipped
		result.Err = ErrDestinationExists
		return result
	}

	if err := os.MkdirAll(filepath.Dir(job.Path), 0755); err != nil {
		result.Err = err
		return result
	}

	m.logger.Infof("%s: download started", job)
	tmpPath := job.Path + ".downloading"
	n, err := retry.Value(ctx, m.retry, func(attempt int) (int64, error) {
		result.Attempts = attempt + 1
		return m.fetchFile(ctx, job.Name, tmpPath)
	})
	if err != nil {
		os.Remove(tmpPath)
		result.Err = err
		return result
	}

	if err := os.Rename(tmpPath, job.Path); err != nil {
		os.Remove(tmpPath)
		result.Err = err
		return result
	}

	result.Status = StatusDone
	result.Bytes = n
	return result
}

func (m *Manager) fetchFile(ctx context.Context, name, tmpPath string) (int64, error) {
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return 0, err
	}
	defer tmpFile.Close()

	n, err := m.client.DownloadTo(ctx, name, tmpFile)
	if err != nil {
		return n, err
	}
	return n, tmpFile.Close()
}
