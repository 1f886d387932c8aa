// Package invalidation defines the source-invalidation event contract carried
// over Kafka when upstream data or source definitions change.
package invalidation

import (
	"fmt"
	"strings"
	"time"

	"github.com/sentinel-hub/classification-app-backend/internal/model"
)

const (
	OpUpdate = "update"
	OpDelete = "delete"
	OpReload = "reload"
)

// Event announces that cached rasters have gone stale. Update and delete
// carry the affected mercator region; reload asks the service to re-read the
// source definition file and carries no region.
type Event struct {
	Version  int         `json:"version"`
	Op       string      `json:"op"`
	SourceID string      `json:"sourceId,omitempty"`
	BBox     *model.BBox `json:"bbox,omitempty"`
	TS       time.Time   `json:"ts"`
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	switch e.Op {
	case OpUpdate, OpDelete:
		if strings.TrimSpace(e.SourceID) == "" {
			return fmt.Errorf("sourceId is required for op %q", e.Op)
		}
		if e.BBox == nil {
			return fmt.Errorf("bbox is required for op %q", e.Op)
		}
		if !e.BBox.Valid() {
			return fmt.Errorf("bbox must satisfy maxX>minX and maxY>minY")
		}
		return nil
	case OpReload:
		if e.BBox != nil {
			return fmt.Errorf("reload events carry no bbox")
		}
		return nil
	default:
		return fmt.Errorf("op must be update|delete|reload")
	}
}
