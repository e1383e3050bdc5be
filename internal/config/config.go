// Package config loads and persists cameras.json, the up-to-4-slot camera
// configuration file described in spec §6. Writes are whole-file rewrites:
// marshal to a temp file, then rename into place, so a crash mid-write
// never corrupts the previous, still-valid config.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sentineld/videosentry/pkg/types"
)

// File is the top-level cameras.json shape.
type File struct {
	Cameras []cameraJSON `json:"cameras"`
}

type pointJSON struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type roiJSON struct {
	Points []pointJSON `json:"points"`
}

type tripwireJSON struct {
	Start pointJSON `json:"start"`
	End   pointJSON `json:"end"`
}

type cameraJSON struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Type     string        `json:"type"`
	Source   string        `json:"source"`
	Enabled  bool          `json:"enabled"`
	ROI      roiJSON       `json:"roi"`
	Tripwire *tripwireJSON `json:"tripwire,omitempty"`
}

// MaxCameras is the fixed number of camera slots the supervisor manages.
const MaxCameras = 4

// Load reads cameras.json at path. A missing file is not an error: it
// yields an empty, all-disabled configuration so a first run can start
// clean.
func Load(path string) ([]types.CameraConfig, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var file File
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if len(file.Cameras) > MaxCameras {
		file.Cameras = file.Cameras[:MaxCameras]
	}

	cfgs := make([]types.CameraConfig, 0, len(file.Cameras))
	for _, c := range file.Cameras {
		cfgs = append(cfgs, fromJSON(c))
	}
	return cfgs, nil
}

// Save writes cameras.json atomically: marshal indented JSON to a temp
// file in the same directory, fsync, then rename over the destination.
func Save(path string, cfgs []types.CameraConfig) error {
	if len(cfgs) > MaxCameras {
		cfgs = cfgs[:MaxCameras]
	}

	file := File{Cameras: make([]cameraJSON, 0, len(cfgs))}
	for _, c := range cfgs {
		file.Cameras = append(file.Cameras, toJSON(c))
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".cameras-*.json.tmp")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename config into place: %w", err)
	}
	return nil
}

func fromJSON(c cameraJSON) types.CameraConfig {
	cfg := types.CameraConfig{
		ID:      c.ID,
		Name:    c.Name,
		Type:    c.Type,
		Source:  c.Source,
		Enabled: c.Enabled,
	}
	for _, p := range c.ROI.Points {
		cfg.ROIPoints = append(cfg.ROIPoints, types.Point{X: p.X, Y: p.Y})
	}
	if c.Tripwire != nil && !(isOrigin(c.Tripwire.Start) && isOrigin(c.Tripwire.End)) {
		cfg.Tripwire = &types.Tripwire{
			Start: types.Point{X: c.Tripwire.Start.X, Y: c.Tripwire.Start.Y},
			End:   types.Point{X: c.Tripwire.End.X, Y: c.Tripwire.End.Y},
		}
	}
	return cfg
}

func isOrigin(p pointJSON) bool {
	return p.X == 0 && p.Y == 0
}

func toJSON(c types.CameraConfig) cameraJSON {
	out := cameraJSON{
		ID:      c.ID,
		Name:    c.Name,
		Type:    c.Type,
		Source:  c.Source,
		Enabled: c.Enabled,
		ROI:     roiJSON{Points: make([]pointJSON, 0, len(c.ROIPoints))},
	}
	for _, p := range c.ROIPoints {
		out.ROI.Points = append(out.ROI.Points, pointJSON{X: p.X, Y: p.Y})
	}
	if c.Tripwire != nil {
		out.Tripwire = &tripwireJSON{
			Start: pointJSON{X: c.Tripwire.Start.X, Y: c.Tripwire.Start.Y},
			End:   pointJSON{X: c.Tripwire.End.X, Y: c.Tripwire.End.Y},
		}
	}
	return out
}
