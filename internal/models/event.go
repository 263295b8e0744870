package models

import "time"

// LinkEventType names what happened to a cluster.
type LinkEventType string

const (
	EventContactCreated LinkEventType = "contact.created"
	EventContactLinked  LinkEventType = "contact.linked"
	EventClustersMerged LinkEventType = "contact.merged"
)

// LinkEvent is emitted after a write to a cluster has been committed.
// ContactIDs lists the contacts the event is about: the new contact for
// created/linked, the demoted primaries for merged.
type LinkEvent struct {
	Type       LinkEventType `json:"type"`
	PrimaryID  int64         `json:"primaryId"`
	ContactIDs []int64       `json:"contactIds"`
	OccurredAt time.Time     `json:"occurredAt"`
}
