package model

import "time"

// EventType defines the type of change a storage driver broadcasts.
type EventType string

const (
	EventTypeCreated EventType = "created"
	EventTypeUpdated EventType = "updated"
	EventTypeDeleted EventType = "deleted"
)

// RealtimeEvent is a document change travelling through a change feed. Listeners use it
// as a trigger to refresh; it never replaces reading the document.
type RealtimeEvent struct {
	Type EventType `json:"type"`

	// DocumentPath is the relative document path, e.g. "users/1/posts/2".
	DocumentPath string `json:"documentPath"`

	// CollectionPath is the parent collection of DocumentPath.
	CollectionPath string `json:"collectionPath"`

	Timestamp time.Time `json:"timestamp"`

	// Origin identifies the process that published the event so feeds can drop echoes.
	Origin string `json:"origin,omitempty"`
}
