package github

import "go.uber.org/zap"

// Event is a validated github webhook event, ready for consumption by the
// updater's event loop.
type Event struct {
	// DeliveryID is the unique delivery ID that github assigned to the
	// webhook request
	DeliveryID string
	// Type is the webhook event type, e.g. "push" or "pull_request"
	Type string
	// JSON is the raw event payload
	JSON []byte
	// Event is the payload parsed into the matching go-github event
	// struct, e.g. *github.PushEvent
	Event any
	// LogFields identify the event in log messages
	LogFields []zap.Field
}
