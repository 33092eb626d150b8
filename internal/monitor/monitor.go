// Package monitor runs the per-stream drift watch: it keeps a live DASH
// manifest current, probes segments at the live edge, and feeds their bytes
// to the timing corrector.
package monitor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"driftwatch/internal/cache"
	"driftwatch/internal/config"
	"driftwatch/internal/dash"
	"driftwatch/internal/logger"
	"driftwatch/internal/models"
	"driftwatch/internal/timing"
)

// repInfo carries the per-representation facts needed to place a timeline
// segment on the presentation timeline.
type repInfo struct {
	category           models.Category
	periodStartSeconds float64
	presentationOffset uint64
	timescale          uint64
}

// CategoryStatus is a snapshot of one content category's correction state.
type CategoryStatus struct {
	Category           string  `json:"category"`
	TablesLoaded       bool    `json:"tablesLoaded"`
	Corrected          bool    `json:"corrected"`
	CorrectedOffset    float64 `json:"correctedOffset"`
	LastDiscrepancy    float64 `json:"lastDiscrepancy"`
	ChecksPerformed    int     `json:"checksPerformed"`
	CorrectionsApplied int     `json:"correctionsApplied"`
}

// StreamStatus is a snapshot of one monitored stream.
type StreamStatus struct {
	Id          string           `json:"id"`
	Name        string           `json:"name"`
	ManifestURL string           `json:"manifestUrl"`
	Categories  []CategoryStatus `json:"categories"`
}

// StreamMonitor holds all context for a single monitored live stream.
//
// The mutex guards the MPD, the bookkeeping maps, and every call into the
// Corrector: the corrector itself is single-threaded by contract, and the
// monitor is the one logical pipeline serializing access to it.
type StreamMonitor struct {
	StreamID    string
	Name        string
	ManifestURL string
	Logger      logger.Logger
	Downloader  *dash.Downloader
	SegCache    *cache.SegmentCache
	Corrector   *timing.Corrector

	mutex        sync.RWMutex
	mpd          *dash.MPD
	baseURL      string             // the final URL after any redirects
	reps         map[string]repInfo // keyed by Representation ID
	probed       map[string]struct{}
	tablesLoaded map[models.Category]bool
	checks       map[models.Category]int
	replays      map[models.Category]int
	resultsChan  chan dash.DownloadResult

	ctx        context.Context
	cancel     context.CancelFunc
	group      *errgroup.Group
	resultDone chan struct{}
	dashClient *dash.Client
	userAgent  string
}

// Manager owns a StreamMonitor per configured stream.
type Manager struct {
	mutex      sync.RWMutex
	monitors   map[string]*StreamMonitor
	logger     logger.Logger
	cfg        *config.Config
	dashClient *dash.Client
	segCache   *cache.SegmentCache
}

// NewManager creates a new monitor manager.
func NewManager(log logger.Logger, cfg *config.Config, dashClient *dash.Client) *Manager {
	m := &Manager{
		monitors:   make(map[string]*StreamMonitor),
		logger:     log,
		cfg:        cfg,
		dashClient: dashClient,
	}
	m.segCache = cache.New(log, m.GetAllActiveSegmentKeys)
	return m
}

// Start launches the cache worker and a monitor for every configured stream.
// A stream whose manifest cannot be fetched is logged and skipped; the rest
// keep running.
func (m *Manager) Start() {
	m.segCache.Start()
	for _, stream := range m.cfg.Streams {
		if _, err := m.startMonitor(stream); err != nil {
			m.logger.Errorf("Failed to start monitor for stream '%s': %v", stream.Id, err)
		}
	}
}

// Stop gracefully shuts down all monitors and background workers.
func (m *Manager) Stop() {
	m.logger.Infof("Stopping monitor manager and all active stream monitors...")
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for _, mon := range m.monitors {
		mon.Stop()
	}
	m.segCache.Stop()
	m.logger.Infof("Monitor manager stopped.")
}

// GetMonitor returns the monitor for a stream id.
func (m *Manager) GetMonitor(streamId string) (*StreamMonitor, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	mon, found := m.monitors[streamId]
	return mon, found
}

// Statuses returns a snapshot of every monitored stream, in config order.
func (m *Manager) Statuses() []StreamStatus {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	statuses := make([]StreamStatus, 0, len(m.monitors))
	for _, stream := range m.cfg.Streams {
		if mon, found := m.monitors[stream.Id]; found {
			statuses = append(statuses, mon.Status())
		}
	}
	return statuses
}

func (m *Manager) startMonitor(stream config.Stream) (*StreamMonitor, error) {
	m.logger.Infof("Starting monitor for stream: %s (%s)", stream.Name, stream.Id)

	mpd, finalUrl, err := m.dashClient.FetchAndParseMPD(stream.ManifestURL, m.cfg.UserAgent)
	if err != nil {
		return nil, fmt.Errorf("initial MPD fetch for stream '%s': %w", stream.Id, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)

	corrector := timing.NewCorrector(m.logger)
	corrector.Configure(timing.Options{
		CorrectTimestampOffset:  m.cfg.CorrectTimestampOffset,
		MaxTimestampDiscrepancy: m.cfg.MaxTimestampDiscrepancy,
	})

	mon := &StreamMonitor{
		StreamID:     stream.Id,
		Name:         stream.Name,
		ManifestURL:  stream.ManifestURL,
		Logger:       m.logger,
		Downloader:   dash.NewDownloader(m.dashClient.HttpClient(), m.logger, m.cfg.UserAgent, 4),
		SegCache:     m.segCache,
		Corrector:    corrector,
		mpd:          mpd,
		baseURL:      finalUrl,
		dashClient:   m.dashClient,
		userAgent:    m.cfg.UserAgent,
		reps:         make(map[string]repInfo),
		probed:       make(map[string]struct{}),
		tablesLoaded: make(map[models.Category]bool),
		checks:       make(map[models.Category]int),
		replays:      make(map[models.Category]int),
		resultsChan:  make(chan dash.DownloadResult, 100),
		resultDone:   make(chan struct{}),
		ctx:          ctx,
		cancel:       cancel,
		group:        group,
	}

	if err := mon.rebuildRepInfo(); err != nil {
		cancel()
		return nil, fmt.Errorf("initialize stream '%s': %w", stream.Id, err)
	}

	m.mutex.Lock()
	m.monitors[stream.Id] = mon
	m.mutex.Unlock()

	mon.Start()
	return mon, nil
}

// GetAllActiveSegmentKeys collects the cache keys of every segment still in
// some stream's timeline window, so eviction does not drop them.
func (m *Manager) GetAllActiveSegmentKeys() map[string]struct{} {
	activeKeys := make(map[string]struct{})
	m.mutex.RLock()
	monitors := make([]*StreamMonitor, 0, len(m.monitors))
	for _, mon := range m.monitors {
		monitors = append(monitors, mon)
	}
	m.mutex.RUnlock()

	for _, mon := range monitors {
		mon.mutex.RLock()
		for i := range mon.mpd.Periods {
			period := &mon.mpd.Periods[i]
			for j := range period.Sets {
				as := &period.Sets[j]
				for k := range as.Representations {
					rep := &as.Representations[k]
					activeKeys[initCacheKey(mon.StreamID, rep.ID)] = struct{}{}
					for _, seg := range dash.ExpandTimeline(as.SegmentTemplate.Timeline) {
						activeKeys[mediaCacheKey(mon.StreamID, rep.ID, seg.Time)] = struct{}{}
					}
				}
			}
		}
		mon.mutex.RUnlock()
	}
	return activeKeys
}

func initCacheKey(streamId, repId string) string {
	return fmt.Sprintf("%s/%s/init", streamId, repId)
}

func mediaCacheKey(streamId, repId string, time uint64) string {
	return fmt.Sprintf("%s/%s/%d", streamId, repId, time)
}

// Start kicks off the background loops for the monitor.
func (s *StreamMonitor) Start() {
	s.Logger.Infof("Starting background loops for stream %s", s.StreamID)
	s.queueInitSegments()
	s.group.Go(s.probeLoop)
	s.group.Go(s.mpdRefreshLoop)
	go func() {
		s.resultLoop()
		close(s.resultDone)
	}()
}

// Stop terminates the background loops for the monitor. Producers are
// stopped before the downloader so nothing enqueues into a closed pool, and
// the results channel is closed only after in-flight downloads drain.
func (s *StreamMonitor) Stop() {
	s.Logger.Infof("Stopping background loops for stream %s", s.StreamID)
	s.cancel()
	if err := s.group.Wait(); err != nil {
		s.Logger.Warnf("Monitor loops for %s exited with error: %v", s.StreamID, err)
	}
	s.Downloader.Stop()
	close(s.resultsChan)
	<-s.resultDone
}

// Status returns a snapshot of the monitor's per-category correction state.
func (s *StreamMonitor) Status() StreamStatus {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	status := StreamStatus{
		Id:          s.StreamID,
		Name:        s.Name,
		ManifestURL: s.ManifestURL,
	}
	for _, cat := range models.Categories() {
		if !s.tablesLoaded[cat] && s.checks[cat] == 0 {
			continue
		}
		offset, corrected := s.Corrector.CachedOffset(cat)
		discrepancy, _ := s.Corrector.LastDiscrepancy(cat)
		status.Categories = append(status.Categories, CategoryStatus{
			Category:           cat.String(),
			TablesLoaded:       s.tablesLoaded[cat],
			Corrected:          corrected,
			CorrectedOffset:    offset,
			LastDiscrepancy:    discrepancy,
			ChecksPerformed:    s.checks[cat],
			CorrectionsApplied: s.replays[cat],
		})
	}
	return status
}

// rebuildRepInfo recomputes the per-representation timeline facts from the
// current MPD.
func (s *StreamMonitor) rebuildRepInfo() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	found := false
	for i := range s.mpd.Periods {
		period := &s.mpd.Periods[i]
		periodStart, err := period.GetStart()
		if err != nil {
			return fmt.Errorf("invalid period start time for period '%s': %w", period.ID, err)
		}

		for j := range period.Sets {
			as := &period.Sets[j]
			category, ok := models.ParseCategory(as.ContentType)
			if !ok {
				s.Logger.Debugf("Skipping AdaptationSet %s with unmonitored content type '%s'", as.ID, as.ContentType)
				continue
			}
			timescale := uint64(as.SegmentTemplate.Timescale)
			if timescale == 0 {
				s.Logger.Warnf("Skipping AdaptationSet %s because its timescale is 0", as.ID)
				continue
			}

			for _, rep := range selectRepresentations(as) {
				s.reps[rep.ID] = repInfo{
					category:           category,
					periodStartSeconds: periodStart.Seconds(),
					presentationOffset: rep.PresentationTimeOffset,
					timescale:          timescale,
				}
				found = true
			}
		}
	}

	if !found {
		return fmt.Errorf("no monitorable representations found in MPD")
	}
	return nil
}

// queueInitSegments queues the initialization segment of every selected
// representation; their timescale tables must land before media probes.
func (s *StreamMonitor) queueInitSegments() {
	var tasks []dash.DownloadTask

	s.mutex.Lock()
	for i := range s.mpd.Periods {
		period := &s.mpd.Periods[i]
		for j := range period.Sets {
			as := &period.Sets[j]
			category, ok := models.ParseCategory(as.ContentType)
			if !ok {
				continue
			}

			for _, rep := range selectRepresentations(as) {
				initURL, err := dash.BuildInitSegmentURL(s.baseURL, period, as, rep)
				if err != nil {
					s.Logger.Warnf("Failed to build init segment URL for rep %s: %v", rep.ID, err)
					continue
				}

				key := initCacheKey(s.StreamID, rep.ID)
				if data, found := s.SegCache.Get(key); found {
					if err := s.Corrector.ParseTimescalesFromInitSegment(category, data); err != nil {
						s.Logger.Warnf("Failed to reparse cached init segment for rep %s: %v", rep.ID, err)
						continue
					}
					s.tablesLoaded[category] = true
					continue
				}

				s.Logger.Debugf("Queueing init segment for rep %s from %s", rep.ID, initURL)
				tasks = append(tasks, dash.DownloadTask{
					Segment: models.Segment{
						URL:      initURL,
						ID:       key,
						RepID:    rep.ID,
						Category: category,
						IsInit:   true,
					},
					Result: s.resultsChan,
				})
			}
		}
	}
	s.mutex.Unlock()

	for _, task := range tasks {
		s.Downloader.QueueDownload(task)
	}
}

// probeLoop periodically queues the live-edge media segment of every
// representation for a drift check.
func (s *StreamMonitor) probeLoop() error {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.Logger.Infof("Probe loop for %s stopped.", s.StreamID)
			return nil
		case <-ticker.C:
			s.probeLiveEdge()
		}
	}
}

func (s *StreamMonitor) probeLiveEdge() {
	var tasks []dash.DownloadTask

	s.mutex.Lock()
	for i := range s.mpd.Periods {
		period := &s.mpd.Periods[i]
		for j := range period.Sets {
			as := &period.Sets[j]
			category, ok := models.ParseCategory(as.ContentType)
			if !ok {
				continue
			}

			for _, rep := range selectRepresentations(as) {
				seg, ok := dash.LiveEdgeSegment(as.SegmentTemplate.Timeline)
				if !ok {
					continue
				}

				key := mediaCacheKey(s.StreamID, rep.ID, seg.Time)
				if _, done := s.probed[key]; done {
					continue
				}

				segmentURL, err := dash.BuildSegmentURL(s.baseURL, period, as, rep, seg.Time)
				if err != nil {
					s.Logger.Warnf("Failed to build segment URL for time %d: %v", seg.Time, err)
					continue
				}
				s.probed[key] = struct{}{}

				seg.URL = segmentURL
				seg.ID = key
				seg.RepID = rep.ID
				seg.Category = category

				s.Logger.Debugf("Queueing live-edge segment for rep %s, time %d", rep.ID, seg.Time)
				tasks = append(tasks, dash.DownloadTask{Segment: seg, Result: s.resultsChan})
			}
		}
	}
	s.mutex.Unlock()

	for _, task := range tasks {
		s.Downloader.QueueDownload(task)
	}
}

// resultLoop consumes download results, feeding init segments to the
// timescale parser and media segments to the drift check.
func (s *StreamMonitor) resultLoop() {
	s.Logger.Infof("Starting result processing loop for stream %s", s.StreamID)
	for result := range s.resultsChan {
		if result.Error != nil {
			s.Logger.Warnf("Failed to download segment %s: %v", result.Task.Segment.ID, result.Error)
			s.forgetProbe(result.Task.Segment.ID)
			continue
		}

		seg := result.Task.Segment
		s.SegCache.Set(seg.ID, result.Data)

		if seg.IsInit {
			s.handleInitSegment(seg, result.Data)
		} else {
			s.handleMediaSegment(seg, result.Data)
		}
	}
	s.Logger.Infof("Result processing loop for %s stopped.", s.StreamID)
}

func (s *StreamMonitor) handleInitSegment(seg models.Segment, data []byte) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := s.Corrector.ParseTimescalesFromInitSegment(seg.Category, data); err != nil {
		s.Logger.Warnf("Failed to parse init segment for rep %s: %v", seg.RepID, err)
		return
	}
	s.tablesLoaded[seg.Category] = true
	s.Logger.Infof("Loaded timescale tables for %s from rep %s", seg.Category, seg.RepID)
}

func (s *StreamMonitor) handleMediaSegment(seg models.Segment, data []byte) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	info, known := s.reps[seg.RepID]
	if !known {
		s.Logger.Warnf("Dropping result for unknown representation %s", seg.RepID)
		return
	}

	ref := dash.BuildReference(seg, info.periodStartSeconds, info.presentationOffset, info.timescale)
	checked, err := s.Corrector.CheckTimestampOffset(seg.Category, ref, data)
	if err != nil {
		s.Logger.Warnf("Timestamp check failed for segment %s: %v", seg.ID, err)
		delete(s.probed, seg.ID)
		return
	}
	if checked {
		s.checks[seg.Category]++
	}
}

// forgetProbe allows a failed segment to be retried on a later tick.
func (s *StreamMonitor) forgetProbe(key string) {
	s.mutex.Lock()
	delete(s.probed, key)
	s.mutex.Unlock()
}

// mpdRefreshLoop periodically re-fetches the MPD and merges timelines, then
// replays the cached correction onto references for segments that were never
// individually probed.
func (s *StreamMonitor) mpdRefreshLoop() error {
	refreshInterval := 5 * time.Second
	if s.mpd.MinimumUpdatePeriod != "" {
		if d, err := s.mpd.GetMinimumUpdatePeriod(); err == nil {
			refreshInterval = d
			// Don't hammer the origin on aggressive update periods.
			if refreshInterval < 2*time.Second {
				refreshInterval = 2 * time.Second
			}
		} else {
			s.Logger.Warnf("Could not parse MinimumUpdatePeriod '%s', using default %v", s.mpd.MinimumUpdatePeriod, refreshInterval)
		}
	}
	s.Logger.Infof("Starting MPD refresh loop for stream %s with interval %v", s.StreamID, refreshInterval)
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.Logger.Infof("MPD refresh loop for %s stopped.", s.StreamID)
			return nil
		case <-ticker.C:
			s.refreshMPD()
		}
	}
}

func (s *StreamMonitor) refreshMPD() {
	s.Logger.Debugf("Refreshing MPD for stream %s from %s", s.StreamID, s.ManifestURL)
	newMpd, newBaseURL, err := s.dashClient.FetchAndParseMPD(s.ManifestURL, s.userAgent)
	if err != nil {
		s.Logger.Warnf("Failed to refresh MPD for stream %s: %v", s.StreamID, err)
		return
	}

	s.mutex.Lock()
	for i := range newMpd.Periods {
		newPeriod := &newMpd.Periods[i]
		for j := range newPeriod.Sets {
			newAS := &newPeriod.Sets[j]

			var oldAS *dash.AdaptationSet
			for k := range s.mpd.Periods {
				if s.mpd.Periods[k].ID != newPeriod.ID {
					continue
				}
				for l := range s.mpd.Periods[k].Sets {
					if s.mpd.Periods[k].Sets[l].ID == newAS.ID {
						oldAS = &s.mpd.Periods[k].Sets[l]
						break
					}
				}
				if oldAS != nil {
					break
				}
			}

			if oldAS != nil {
				oldAS.SegmentTemplate.Timeline = dash.MergeTimelines(oldAS.SegmentTemplate.Timeline, newAS.SegmentTemplate.Timeline)
			} else {
				s.Logger.Infof("Found new AdaptationSet with ID %s in refreshed MPD.", newAS.ID)
			}
		}
	}
	s.mpd.MinimumUpdatePeriod = newMpd.MinimumUpdatePeriod
	s.baseURL = newBaseURL
	s.mutex.Unlock()

	if err := s.rebuildRepInfo(); err != nil {
		s.Logger.Warnf("Failed to rebuild representation info for %s: %v", s.StreamID, err)
	}

	s.replayCorrections()
	s.Logger.Debugf("Successfully refreshed and merged MPD for stream %s", s.StreamID)
}

// replayCorrections forwards the cached per-category correction to the
// references of timeline segments that were never probed, so the whole
// timeline carries the category's best-known offset.
func (s *StreamMonitor) replayCorrections() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for i := range s.mpd.Periods {
		period := &s.mpd.Periods[i]
		for j := range period.Sets {
			as := &period.Sets[j]
			category, ok := models.ParseCategory(as.ContentType)
			if !ok {
				continue
			}
			if _, cached := s.Corrector.CachedOffset(category); !cached {
				continue
			}

			for _, rep := range selectRepresentations(as) {
				info, known := s.reps[rep.ID]
				if !known {
					continue
				}

				for _, seg := range dash.ExpandTimeline(as.SegmentTemplate.Timeline) {
					key := mediaCacheKey(s.StreamID, rep.ID, seg.Time)
					if _, wasProbed := s.probed[key]; wasProbed {
						continue
					}

					ref := dash.BuildReference(seg, info.periodStartSeconds, info.presentationOffset, info.timescale)
					if err := s.Corrector.CorrectTimestampOffset(category, ref); err != nil {
						s.Logger.Warnf("Failed to apply cached correction for %s: %v", category, err)
						continue
					}
					if ref.TimestampOffsetCorrected() {
						s.replays[category]++
					}
				}
			}
		}
	}
}

// selectRepresentations picks which representations to probe: the highest
// bandwidth video representation (trick mode tracks excluded) and every
// audio and text representation.
func selectRepresentations(as *dash.AdaptationSet) []*dash.Representation {
	var selected []*dash.Representation

	switch as.ContentType {
	case "video":
		var bestRep *dash.Representation
		maxBandwidth := 0
		for i := range as.Representations {
			rep := &as.Representations[i]
			// Trick mode tracks carry their own sparse timeline and would
			// skew the drift picture for the category.
			if strings.Contains(rep.ID, "TrickMode") {
				continue
			}
			if rep.Bandwidth > maxBandwidth {
				maxBandwidth = rep.Bandwidth
				bestRep = rep
			}
		}
		if bestRep != nil {
			selected = append(selected, bestRep)
		}
	case "audio", "text":
		for i := range as.Representations {
			selected = append(selected, &as.Representations[i])
		}
	}
	return selected
}
