package drift

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/afspm-go/afspm/heartbeat"
	"github.com/afspm-go/afspm/internal/transport"
	"github.com/afspm-go/afspm/internal/wire"
	"github.com/afspm-go/afspm/scheduler"
)

// Default tuning values, mirroring the reference implementation's constants.
const (
	DefaultUpdateWeight            = 1.0
	DefaultMinIntersectionRatio    = 0.5
	DefaultMinSpatialResRatio      = 0.25
	DefaultRescanIntersectionRatio = 0.75
	DefaultGrabOldestMatch         = true
	DefaultMaxHistory              = 32
)

// Config tunes a Scheduler's drift-correction behavior (spec §4.10, §6).
type Config struct {
	// ChannelID restricts drift tracking to Scan2D messages whose Channel
	// contains this substring (case-insensitive); empty matches every scan.
	ChannelID string

	// Oracle estimates drift between two candidate scans. When nil, no
	// snapshot is ever computed and the correction is only extrapolated
	// from its current rate.
	Oracle Oracle

	MinIntersectionRatio float64
	MinSpatialResRatio   float64
	// MaxFittingScore bounds how poor a fit Oracle may still accept; it has
	// no universal default since its scale is defined by whatever fitting
	// routine Oracle wraps, so callers must set it explicitly.
	MaxFittingScore         float64
	UpdateWeight            float64
	RescanIntersectionRatio float64
	GrabOldestMatch         bool
	MaxHistory              int

	CSVPath    string
	SQLitePath string
}

func (c Config) withDefaults() Config {
	if c.MinIntersectionRatio == 0 {
		c.MinIntersectionRatio = DefaultMinIntersectionRatio
	}
	if c.MinSpatialResRatio == 0 {
		c.MinSpatialResRatio = DefaultMinSpatialResRatio
	}
	if c.UpdateWeight == 0 {
		c.UpdateWeight = DefaultUpdateWeight
	}
	if c.RescanIntersectionRatio == 0 {
		c.RescanIntersectionRatio = DefaultRescanIntersectionRatio
	}
	if c.MaxHistory <= 0 {
		c.MaxHistory = DefaultMaxHistory
	}
	return c
}

// Scheduler wraps a Microscope Scheduler (spec §4.10 C10): it installs a
// request transform on the Router (sample-frame -> tip-frame, applied
// before a write reaches the instrument) and a publish transform plus a
// message observer on the Cache (tip-frame -> sample-frame, applied before
// a publication reaches any Subscriber). It tracks a cumulative
// CorrectionInfo, updates it from matched-scan drift snapshots, persists
// every update to a Ledger, and republishes the last requested scan
// parameters when the instrument has drifted out of the expected ROI.
type Scheduler struct {
	inner  *scheduler.Scheduler
	pub    *transport.Publisher
	cfg    Config
	log    *logrus.Entry
	ledger *Ledger

	mu      sync.Mutex
	total   *CorrectionInfo
	history []*wire.Scan2DMsg
}

// NewScheduler composes inner (an already-built C9 Scheduler) with drift
// correction, publishing rescan requests on pub. A nil cfg.Oracle disables
// snapshot matching (see Config.Oracle).
func NewScheduler(inner *scheduler.Scheduler, pub *transport.Publisher, cfg Config) (*Scheduler, error) {
	cfg = cfg.withDefaults()

	ledger, err := NewLedger(cfg.CSVPath, cfg.SQLitePath)
	if err != nil {
		return nil, err
	}

	total, err := ledger.LatestCorrection()
	if err != nil {
		ledger.Close()
		return nil, err
	}

	s := &Scheduler{
		inner:  inner,
		pub:    pub,
		cfg:    cfg,
		log:    logrus.WithField("component", "drift_scheduler"),
		ledger: ledger,
		total:  total,
	}

	inner.Router.SetRequestTransform(s.requestTransform)
	inner.Cache.SetPublishTransform(s.publishTransform)
	inner.Cache.SetOnMessage(s.onMessage)

	return s, nil
}

func (s *Scheduler) currentTotal() *CorrectionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// requestTransform is installed on the Router: it rewrites a forwarded
// write request's spatial fields sample-frame -> tip-frame, using the
// CorrectionInfo in force at the moment the request is forwarded.
func (s *Scheduler) requestTransform(code wire.RequestCode, payload []byte) []byte {
	total := s.currentTotal()
	if total == nil {
		return payload
	}
	return transformRequestPayload(code, payload, *total, time.Now().UTC(), s.log)
}

// publishTransform is installed on the Cache: it rewrites an outgoing
// publication's spatial fields tip-frame -> sample-frame before it is
// cached or forwarded to any Subscriber.
func (s *Scheduler) publishTransform(topic string, payload []byte) []byte {
	total := s.currentTotal()
	if total == nil {
		return payload
	}
	return transformPublishedPayload(topic, payload, *total, s.log)
}

// onMessage is installed on the Cache as the "subscribe to our own
// downstream" hook (spec §4.10). It observes every payload after the
// publish transform has already run, so a Scan2D here is already in the
// sample frame the rest of the experiment reasons in.
func (s *Scheduler) onMessage(topic string, payload []byte) {
	if !strings.HasPrefix(topic, wire.TypeTopic(&wire.Scan2DMsg{})) {
		return
	}
	scan := new(wire.Scan2DMsg)
	if err := wire.Unmarshal(payload, scan); err != nil {
		s.log.WithError(err).Warn("drift: decode scan for tracking failed")
		return
	}
	if s.cfg.ChannelID != "" && !strings.Contains(strings.ToUpper(scan.Channel), strings.ToUpper(s.cfg.ChannelID)) {
		return
	}
	s.processScan(scan)
}

// processScan implements the per-scan drift update (spec §4.10, §6): match
// a candidate from history, ask the Oracle for a drift snapshot, blend it
// into the cumulative CorrectionInfo, persist the result, then check
// whether the instrument has drifted far enough out of the expected ROI to
// warrant a rescan.
func (s *Scheduler) processScan(corrected *wire.Scan2DMsg) {
	s.mu.Lock()
	priorTotal := s.total
	candidateHistory := append([]*wire.Scan2DMsg(nil), s.history...)
	s.mu.Unlock()

	candidate, err := FindCandidate(candidateHistory, corrected, s.cfg.MinIntersectionRatio, s.cfg.MinSpatialResRatio, s.cfg.GrabOldestMatch)
	if err != nil {
		s.log.WithError(err).Warn("drift: candidate matching failed")
	}

	var snapshot *DriftSnapshot
	if candidate != nil && s.cfg.Oracle != nil {
		snapshot, err = s.cfg.Oracle(candidate, corrected, s.cfg.MaxFittingScore)
		if err != nil {
			s.log.WithError(err).Warn("drift: oracle failed, treating snapshot as absent")
			snapshot = nil
		}
	}

	scanTime := scanTimestamp(corrected)

	var latest CorrectionInfo
	if snapshot != nil {
		latest = EstimateCorrectionFromSnapshot(*snapshot, priorTotal)
	} else {
		latest = EstimateCorrectionNoSnapshot(priorTotal, scanTime)
	}
	newTotal := UpdateTotalCorrection(priorTotal, latest, s.cfg.UpdateWeight)

	s.mu.Lock()
	s.total = &newTotal
	s.history = append(s.history, corrected)
	if len(s.history) > s.cfg.MaxHistory {
		s.history = s.history[len(s.history)-s.cfg.MaxHistory:]
	}
	s.mu.Unlock()

	if err := s.ledger.Record(corrected.Filename, &newTotal, snapshot != nil); err != nil {
		s.log.WithError(err).Warn("drift: recording correction failed")
	}

	s.determineRedoScan(corrected, priorTotal, newTotal, scanTime)
}

func scanTimestamp(scan *wire.Scan2DMsg) time.Time {
	if scan.TimestampUnixNanos == 0 {
		return time.Now().UTC()
	}
	return time.Unix(0, scan.TimestampUnixNanos).UTC()
}

// determineRedoScan implements spec §4.10's rescan trigger. corrected's ROI
// is already in the sample frame under priorTotal (the correction in force
// when the scan was published); it plays the role of the "expected" region.
// The "true" region is obtained by converting corrected's ROI back to the
// tip frame under priorTotal, then forward to the sample frame again under
// the freshly updated newTotal -- i.e. re-expressing the same physical tip
// position using the best current correction estimate. If the two regions
// no longer sufficiently overlap, the last requested scan parameters are
// republished so a downstream rescan handler can repeat the measurement.
func (s *Scheduler) determineRedoScan(corrected *wire.Scan2DMsg, priorTotal *CorrectionInfo, newTotal CorrectionInfo, scanTime time.Time) {
	if s.pub == nil {
		s.log.Warn("drift: rescan triggered without a publisher configured, skipping")
		return
	}
	if corrected.Roi == nil {
		return
	}

	expected := *corrected.Roi

	trueParams := *corrected.Roi
	if priorTotal != nil {
		if err := applyToScanParams(&trueParams, *priorTotal, scanTime, +1); err != nil {
			s.log.WithError(err).Warn("drift: reconstructing tip-frame scan for rescan check failed")
			return
		}
	}
	if err := applyToScanParams(&trueParams, newTotal, scanTime, -1); err != nil {
		s.log.WithError(err).Warn("drift: re-expressing true scan region for rescan check failed")
		return
	}

	trueROI, _, err := roiAndShapeFromScan(&wire.Scan2DMsg{Roi: &trueParams})
	if err != nil {
		s.log.WithError(err).Warn("drift: true scan ROI invalid for rescan check")
		return
	}
	expectedROI, _, err := roiAndShapeFromScan(&wire.Scan2DMsg{Roi: &expected})
	if err != nil {
		s.log.WithError(err).Warn("drift: expected scan ROI invalid for rescan check")
		return
	}

	ratio, err := symmetricIntersectionRatio(trueROI, expectedROI)
	if err != nil {
		s.log.WithError(err).Warn("drift: rescan intersection ratio failed")
		return
	}
	if ratio >= s.cfg.RescanIntersectionRatio {
		return
	}

	last := s.inner.Router.LastScanParams()
	if last == nil {
		s.log.Error("drift: rescan triggered but no prior scan params are known")
		return
	}
	buf, err := wire.Marshal(last)
	if err != nil {
		s.log.WithError(err).Warn("drift: marshal rescan request failed")
		return
	}
	s.log.WithField("intersection_ratio", ratio).Info("drift: rescan triggered")
	s.pub.Publish(wire.TypeTopic(last), buf)
}

// Run delegates to the wrapped Scheduler's main loop, additionally sending
// a KILL on this Scheduler's own publisher once a shutdown is requested
// (spec §4.10's publisher-owning variant of step 4).
func (s *Scheduler) Run(ctx context.Context, hb *heartbeat.Heartbeater, loopSleep, routerPollTimeout time.Duration) {
	s.inner.Run(ctx, hb, loopSleep, routerPollTimeout)
	if s.inner.Router.WasShutdownRequested() && s.pub != nil {
		s.pub.PublishKill()
	}
}

// Close releases the Ledger and the owned publisher.
func (s *Scheduler) Close() error {
	if s.pub != nil {
		s.pub.Close()
	}
	return s.ledger.Close()
}
