// Package notify fans out commit/rollback events to a configurable sink,
// grounded on notifications/bridge.go and docker/go-events. This is an
// ambient addition the original Python server lacked; the teacher always
// carries an eventing hook for registry mutations.
package notify

import (
	"fmt"
	"time"

	events "github.com/docker/go-events"
)

// EventAction names the kind of repository mutation being reported.
type EventAction string

const (
	ActionCommit   EventAction = "commit"
	ActionRollback EventAction = "rollback"
)

// Event is one commit/rollback notification.
type Event struct {
	Action     EventAction
	Repository string
	RevisionID string
	Author     string
	Timestamp  time.Time
}

// Bridge publishes Events onto an events.Sink, adapting the typed Event
// into the events.Event interface the way notifications.Bridge adapts
// distribution events onto a Broadcaster.
type Bridge struct {
	sink events.Sink
}

// NewBridge returns a Bridge that publishes onto sink.
func NewBridge(sink events.Sink) *Bridge {
	return &Bridge{sink: sink}
}

// Publish writes ev to the sink. Errors are returned to the caller, who
// decides whether a notification failure should fail the mutating request
// it accompanies (by default it should not).
func (b *Bridge) Publish(ev Event) error {
	if err := b.sink.Write(ev); err != nil {
		return fmt.Errorf("publish %s event for %s: %w", ev.Action, ev.Repository, err)
	}
	return nil
}

// Close closes the underlying sink.
func (b *Bridge) Close() error {
	return b.sink.Close()
}

// NewBroadcaster returns an in-process events.Broadcaster new listeners can
// Add themselves to, mirroring notifications.NewBroadcaster.
func NewBroadcaster() *events.Broadcaster {
	return events.NewBroadcaster()
}
