// Package webmention implements both directions of the webmention
// protocol: discovering endpoints and notifying linked pages when an entry
// publishes, and ingesting inbound mentions into a moderation queue.
package webmention

import "errors"

var (
	// ErrAlreadySentWebmention guards against re-notifying a target a
	// syndication pass already covered.
	ErrAlreadySentWebmention = errors.New("webmention already sent for target")

	// ErrNoEndpoint means the target page declares no webmention endpoint.
	// Not an error worth recording: most of the web does not speak webmention.
	ErrNoEndpoint = errors.New("no webmention endpoint")

	// ErrTargetNotLocal is returned when an inbound webmention targets a URL
	// this site does not serve.
	ErrTargetNotLocal = errors.New("target is not served by this site")
)

// TaskTypeSend is the queue task type for asynchronous delivery.
const TaskTypeSend = "webmention:send"

// sendTask is the queue payload for one (entry, target) delivery.
type sendTask struct {
	EntryID string `json:"entry_id"`
	Source  string `json:"source"`
	Target  string `json:"target"`
}
