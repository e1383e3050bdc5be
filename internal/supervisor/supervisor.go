// Package supervisor owns the fixed set of up to four camera slots,
// wiring each enabled slot's Pipeline to the shared Alert Log event bus
// and persisting ROI/tripwire edits back to disk. See spec §4.6.
package supervisor

import (
	"context"
	"fmt"
	"sync"

	"github.com/sentineld/videosentry/internal/capture"
	"github.com/sentineld/videosentry/internal/config"
	"github.com/sentineld/videosentry/internal/logger"
	"github.com/sentineld/videosentry/internal/metrics"
	"github.com/sentineld/videosentry/pkg/types"
)

var log = logger.Module("supervisor")

// Slot pairs a camera's persisted configuration with its pipeline. Every
// slot gets a pipeline; only enabled slots are started.
type Slot struct {
	Config   types.CameraConfig
	Pipeline *capture.Pipeline
}

// Supervisor manages up to config.MaxCameras slots, one per camera in
// cameras.json, constructed in persisted order (a file with fewer cameras
// yields fewer slots), and is the only component permitted to start, stop,
// or reconfigure a Pipeline. Every per-camera accessor below is 1-based,
// matching spec §4.6's camera_name(i)/available(i)/... surface.
type Supervisor struct {
	mu         sync.RWMutex
	configPath string
	slots      []Slot
	events     chan types.Event
	stats      *metrics.Metrics
}

// New loads cameras.json at configPath and constructs one Slot per
// persisted camera, in file order. Pipelines are not started; call Start.
func New(configPath string, stats *metrics.Metrics) (*Supervisor, error) {
	cfgs, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("supervisor: load config: %w", err)
	}

	s := &Supervisor{
		configPath: configPath,
		events:     make(chan types.Event, 256),
		stats:      stats,
	}
	for _, cfg := range cfgs {
		s.slots = append(s.slots, Slot{Config: cfg, Pipeline: capture.New(cfg, s.events, stats)})
	}
	return s, nil
}

// Events returns the channel every slot's pipeline posts analytic events
// onto. The caller (main's composition root) is expected to hand this to
// the Alert Log's writer goroutine exactly once.
func (s *Supervisor) Events() <-chan types.Event {
	return s.events
}

// Start starts every enabled slot's pipeline. A slot that fails to open
// stays in its pipeline's own error state; Start logs and continues with
// the remaining slots rather than aborting the whole camera set.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.slots {
		slot := s.slots[i]
		if !slot.Config.Enabled {
			continue
		}
		if err := slot.Pipeline.Start(ctx); err != nil {
			log.Error("camera %s failed to start: %v", slot.Config.Name, err)
		}
	}
}

// Stop stops every slot's pipeline and closes the shared event channel.
// Safe to call once, after Start.
func (s *Supervisor) Stop() {
	s.mu.RLock()
	slots := make([]Slot, len(s.slots))
	copy(slots, s.slots)
	s.mu.RUnlock()

	var wg sync.WaitGroup
	for _, slot := range slots {
		if slot.Pipeline == nil {
			continue
		}
		wg.Add(1)
		go func(p *capture.Pipeline) {
			defer wg.Done()
			p.Stop()
		}(slot.Pipeline)
	}
	wg.Wait()
	close(s.events)
}

// Slots returns a defensive copy of the current slot configuration, in
// the 1-based order slot index i occupies position i-1.
func (s *Supervisor) Slots() []Slot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Slot, len(s.slots))
	copy(out, s.slots)
	return out
}

// CameraNames returns the configured names of every slot, in order.
func (s *Supervisor) CameraNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, len(s.slots))
	for i, slot := range s.slots {
		names[i] = slot.Config.Name
	}
	return names
}

// index0 converts spec's 1-based slot index i to the 0-based position in
// s.slots, reporting false if i is out of range.
func (s *Supervisor) index0(i int) (int, bool) {
	idx := i - 1
	if idx < 0 || idx >= len(s.slots) {
		return 0, false
	}
	return idx, true
}

// CameraName returns slot i's configured name.
func (s *Supervisor) CameraName(i int) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.index0(i)
	if !ok {
		return "", false
	}
	return s.slots[idx].Config.Name, true
}

// Available reports whether slot i exists and is enabled.
func (s *Supervisor) Available(i int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.index0(i)
	return ok && s.slots[idx].Config.Enabled
}

// Type returns slot i's configured wire-format type ("usb", "rtsp", "ip").
func (s *Supervisor) Type(i int) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.index0(i)
	if !ok {
		return "", false
	}
	return s.slots[idx].Config.Type, true
}

// Source returns slot i's configured source string.
func (s *Supervisor) Source(i int) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.index0(i)
	if !ok {
		return "", false
	}
	return s.slots[idx].Config.Source, true
}

// ROIPoints returns a copy of slot i's configured ROI polygon.
func (s *Supervisor) ROIPoints(i int) ([]types.Point, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.index0(i)
	if !ok {
		return nil, false
	}
	out := make([]types.Point, len(s.slots[idx].Config.ROIPoints))
	copy(out, s.slots[idx].Config.ROIPoints)
	return out, true
}

// SetROI updates slot i's ROI polygon and persists the change to
// cameras.json. Returns false if no such slot exists.
func (s *Supervisor) SetROI(i int, points []types.Point) (bool, error) {
	s.mu.Lock()
	idx, ok := s.index0(i)
	if !ok {
		s.mu.Unlock()
		return false, nil
	}
	s.slots[idx].Config.ROIPoints = points
	if s.slots[idx].Pipeline != nil {
		s.slots[idx].Pipeline.SetROI(points)
	}
	s.mu.Unlock()

	if err := s.persist(); err != nil {
		return true, err
	}
	log.Info("camera %d ROI changed", i)
	return true, nil
}

// ClearROI removes slot i's ROI polygon and persists the change.
func (s *Supervisor) ClearROI(i int) (bool, error) {
	return s.SetROI(i, nil)
}

// Tripwire returns slot i's configured tripwire, if any: has reports
// whether one is set, a/b are its endpoints.
func (s *Supervisor) Tripwire(i int) (has bool, a, b types.Point, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, exists := s.index0(i)
	if !exists {
		return false, types.Point{}, types.Point{}, false
	}
	tw := s.slots[idx].Config.Tripwire
	if tw == nil {
		return false, types.Point{}, types.Point{}, true
	}
	return true, tw.Start, tw.End, true
}

// SetTripwire sets slot i's tripwire to the line segment a-b and persists
// the change.
func (s *Supervisor) SetTripwire(i int, a, b types.Point) (bool, error) {
	return s.setTripwire(i, &types.Tripwire{Start: a, End: b})
}

// ClearTripwire removes slot i's tripwire and persists the change.
func (s *Supervisor) ClearTripwire(i int) (bool, error) {
	return s.setTripwire(i, nil)
}

func (s *Supervisor) setTripwire(i int, tw *types.Tripwire) (bool, error) {
	s.mu.Lock()
	idx, ok := s.index0(i)
	if !ok {
		s.mu.Unlock()
		return false, nil
	}
	s.slots[idx].Config.Tripwire = tw
	if s.slots[idx].Pipeline != nil {
		s.slots[idx].Pipeline.SetTripwire(tw)
	}
	s.mu.Unlock()

	if err := s.persist(); err != nil {
		return true, err
	}
	log.Info("camera %d tripwire changed", i)
	return true, nil
}

// Frame returns the most recent decoded frame for slot i.
func (s *Supervisor) Frame(i int) (*types.Frame, bool) {
	s.mu.RLock()
	idx, ok := s.index0(i)
	if !ok {
		s.mu.RUnlock()
		return nil, false
	}
	pipeline := s.slots[idx].Pipeline
	s.mu.RUnlock()

	if pipeline == nil {
		return nil, false
	}
	frame := pipeline.CurrentFrame()
	return frame, frame != nil
}

func (s *Supervisor) persist() error {
	s.mu.RLock()
	cfgs := make([]types.CameraConfig, len(s.slots))
	for i, slot := range s.slots {
		cfgs[i] = slot.Config
	}
	s.mu.RUnlock()

	if err := config.Save(s.configPath, cfgs); err != nil {
		return fmt.Errorf("supervisor: persist config: %w", err)
	}
	return nil
}
