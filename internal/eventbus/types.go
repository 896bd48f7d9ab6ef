package eventbus

import "time"

// Topic identifies a logical channel on the bus.
type Topic string

const (
	// TopicDapsStatus carries DapStatusEvent payloads for lifecycle changes.
	TopicDapsStatus Topic = "daps.status"
	// TopicDapsDiscovery carries DapDiscoveryEvent payloads emitted during scans.
	TopicDapsDiscovery Topic = "daps.discovery"
)

// Source describes which component produced an event.
type Source string

const (
	SourceDapsManager Source = "daps_manager"
	SourceDapsService Source = "daps_service"
	SourceHTTPServer  Source = "http_server"
	SourceUnknown     Source = "unknown"
)

// Envelope wraps every message published on the bus.
type Envelope struct {
	Topic     Topic
	Timestamp time.Time
	Source    Source
	Payload   any
}

// DapStatus is the lifecycle state reported in a status event.
type DapStatus string

const (
	DapStatusLoaded   DapStatus = "loaded"
	DapStatusUnloaded DapStatus = "unloaded"
	DapStatusEnabled  DapStatus = "enabled"
	DapStatusDisabled DapStatus = "disabled"
	DapStatusError    DapStatus = "error"
)

// DapStatusEvent reports a lifecycle transition for a single dap.
type DapStatusEvent struct {
	Name       string    `json:"name"`
	Status     DapStatus `json:"status"`
	InstanceID string    `json:"instance_id,omitempty"`
	Message    string    `json:"message,omitempty"`
}

// DapDiscoveryEvent reports the outcome of a registry scan for one dap.
type DapDiscoveryEvent struct {
	Name    string `json:"name"`
	Skipped bool   `json:"skipped"`
	Reason  string `json:"reason,omitempty"`
}
