package entity

import "time"

const (
	EventReconcile    = "reconcile"
	EventModeChanged  = "mode_changed"
	EventIdentify     = "identify"
	EventDownload     = "download"
	EventUpload       = "upload"
	EventSweep        = "sweep"
	EventSessionReset = "session_reset"
)

// Event is pushed to admin subscribers of the live feed.
type Event struct {
	Kind    string    `json:"kind"`
	Time    time.Time `json:"time"`
	Payload any       `json:"payload,omitempty"`
}
