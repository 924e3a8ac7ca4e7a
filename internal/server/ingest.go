package server

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"
)

// FrameSink receives ingested camera payloads. The gateway's contract ends
// at handing the payload downstream; storage is an external concern.
type FrameSink interface {
	// Store consumes one payload for the camera. The reader is only valid
	// for the duration of the call.
	Store(ctx context.Context, cameraID string, payload io.Reader) error
}

// DiscardFrameSink drains payloads without storing them. Used when no
// downstream sink is wired.
type DiscardFrameSink struct{}

// Store drains the payload.
func (DiscardFrameSink) Store(_ context.Context, _ string, payload io.Reader) error {
	_, err := io.Copy(io.Discard, payload)
	return err
}

// CameraStatus is the externally visible state of one known camera.
type CameraStatus struct {
	ID         string    `json:"id"`
	LastSeen   time.Time `json:"last_seen"`
	FrameCount int64     `json:"frame_count"`
}

// cameraInventory tracks the cameras observed through the ingest endpoint.
type cameraInventory struct {
	mu      sync.RWMutex
	cameras map[string]*CameraStatus
	now     func() time.Time
}

func newCameraInventory() *cameraInventory {
	return &cameraInventory{
		cameras: make(map[string]*CameraStatus),
		now:     time.Now,
	}
}

// observe records one successful ingest for the camera.
func (inv *cameraInventory) observe(cameraID string) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	status, ok := inv.cameras[cameraID]
	if !ok {
		status = &CameraStatus{ID: cameraID}
		inv.cameras[cameraID] = status
	}
	status.LastSeen = inv.now().UTC()
	status.FrameCount++
}

// list returns all known cameras ordered by id.
func (inv *cameraInventory) list() []CameraStatus {
	inv.mu.RLock()
	defer inv.mu.RUnlock()

	out := make([]CameraStatus, 0, len(inv.cameras))
	for _, status := range inv.cameras {
		out = append(out, *status)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Ensure the default sink satisfies the interface.
var _ FrameSink = DiscardFrameSink{}
