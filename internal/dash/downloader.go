package dash

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"driftwatch/internal/logger"
	"driftwatch/internal/models"
)

// DownloadTask pairs a segment with the channel its result is delivered on.
type DownloadTask struct {
	Segment models.Segment
	Result  chan<- DownloadResult
}

// DownloadResult carries the downloaded bytes or the final error for a task.
type DownloadResult struct {
	Task  DownloadTask
	Data  []byte
	Error error
}

// Downloader fetches media segments through a fixed-size worker pool with
// per-request timeouts and retry logic.
type Downloader struct {
	httpClient *http.Client
	logger     logger.Logger
	userAgent  string
	tasks      chan DownloadTask
	wg         sync.WaitGroup
	stopOnce   sync.Once

	// RequestTimeout bounds each individual download attempt.
	RequestTimeout time.Duration
}

// NewDownloader creates a downloader with the given number of workers.
func NewDownloader(client *http.Client, log logger.Logger, userAgent string, workers int) *Downloader {
	d := &Downloader{
		httpClient:     client,
		logger:         log,
		userAgent:      userAgent,
		tasks:          make(chan DownloadTask, 100),
		RequestTimeout: 5 * time.Second,
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// QueueDownload enqueues a segment for download. The result is delivered on
// the task's Result channel.
func (d *Downloader) QueueDownload(task DownloadTask) {
	d.tasks <- task
}

// Stop closes the queue and waits for in-flight downloads to finish.
func (d *Downloader) Stop() {
	d.stopOnce.Do(func() {
		close(d.tasks)
	})
	d.wg.Wait()
}

func (d *Downloader) worker() {
	defer d.wg.Done()
	for task := range d.tasks {
		data, err := d.DownloadSegment(task.Segment)
		task.Result <- DownloadResult{Task: task, Data: data, Error: err}
	}
}

// DownloadSegment fetches a single media segment with context-based timeout
// and retries.
func (d *Downloader) DownloadSegment(segment models.Segment) ([]byte, error) {
	const maxRetries = 3
	const retryDelay = 100 * time.Millisecond
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		data, err := d.downloadOnce(segment)
		if err == nil {
			d.logger.Debugf("Successfully downloaded segment %s", segment.ID)
			return data, nil
		}
		lastErr = fmt.Errorf("download attempt %d failed for segment %s: %w", attempt, segment.ID, err)
		d.logger.Warnf(lastErr.Error())
		time.Sleep(retryDelay)
	}

	return nil, fmt.Errorf("failed to download segment %s after %d attempts: %w", segment.ID, maxRetries, lastErr)
}

func (d *Downloader) downloadOnce(segment models.Segment) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", segment.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received non-200 status: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed while reading body: %w", err)
	}
	return data, nil
}
