// Package control implements the message protocol the UI layer uses to
// drive the resource cache. Messages are a tagged union; unknown types are
// ignored so older service builds tolerate newer UI messages.
package control

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bassista/fitsync/internal/cachemgr"
	"github.com/bassista/fitsync/internal/logger"
	"github.com/bassista/fitsync/internal/queue"
)

// MessageType tags a control message.
type MessageType string

const (
	// MsgCacheURLs pre-populates the static partition.
	MsgCacheURLs MessageType = "CACHE_URLS"
	// MsgCacheExerciseVideos pre-populates the exercise-media partition.
	MsgCacheExerciseVideos MessageType = "CACHE_EXERCISE_VIDEOS"
	// MsgClearExerciseCache purges the exercise-media partition.
	MsgClearExerciseCache MessageType = "CLEAR_EXERCISE_CACHE"
	// MsgNotificationAction is a notification click delivered back from
	// the OS notification surface.
	MsgNotificationAction MessageType = "NOTIFICATION_ACTION"
)

// Message is the wire shape of one control message.
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type cacheURLsPayload struct {
	StaticURLs []string `json:"staticUrls"`
}

type cacheVideosPayload struct {
	VideoURLs []string `json:"videoUrls"`
}

type notificationActionPayload struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Dispatcher routes control messages onto cache-manager and queue
// operations.
type Dispatcher struct {
	cache  *cachemgr.Manager
	events *queue.Queue
}

func NewDispatcher(cache *cachemgr.Manager, events *queue.Queue) *Dispatcher {
	return &Dispatcher{cache: cache, events: events}
}

// Dispatch handles one message. handled is false for unknown types, which
// are ignored by contract, not errored.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) (handled bool, err error) {
	switch msg.Type {
	case MsgCacheURLs:
		var p cacheURLsPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return true, fmt.Errorf("decode %s payload: %w", msg.Type, err)
		}
		return true, d.cache.PrePopulate(ctx, cachemgr.PartitionStatic, p.StaticURLs)

	case MsgCacheExerciseVideos:
		var p cacheVideosPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return true, fmt.Errorf("decode %s payload: %w", msg.Type, err)
		}
		return true, d.cache.PrePopulate(ctx, cachemgr.PartitionExerciseMedia, p.VideoURLs)

	case MsgClearExerciseCache:
		if err := d.cache.PurgePartition(cachemgr.PartitionExerciseMedia); err != nil {
			return true, err
		}
		d.emit(queue.KindCachePurged, map[string]any{"partition": cachemgr.PartitionExerciseMedia})
		return true, nil

	case MsgNotificationAction:
		var p notificationActionPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return true, fmt.Errorf("decode %s payload: %w", msg.Type, err)
		}
		d.emit(queue.KindSessionStart, map[string]any{"action": p.Action})
		return true, nil

	default:
		logger.WithComponent("control").Debugf("ignoring unknown control message type %q", msg.Type)
		return false, nil
	}
}

// emit is best-effort: a control message never fails because telemetry
// could not be queued.
func (d *Dispatcher) emit(kind queue.Kind, payload map[string]any) {
	if d.events == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		logger.WithComponent("control").Errorf("encode %s payload: %v", kind, err)
		return
	}
	if _, err := d.events.Enqueue(kind, data, ""); err != nil {
		logger.WithComponent("control").Warnf("enqueue %s: %v", kind, err)
	}
}
