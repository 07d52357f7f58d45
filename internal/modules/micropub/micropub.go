// Package micropub implements the Micropub endpoint: request-body
// normalization into canonical microformat property bags, media handling,
// and the dispatcher that turns an authenticated request into an entry.
//
// Files in this package:
//   - types.go: the canonical Object shape and sentinel errors
//   - normalize.go: wire formats (form/multipart/JSON) to property bags
//   - media.go: upload persistence and inline base64 image extraction
//   - service.go: dispatcher orchestrating auth, build, and webmentions
//   - handler.go: route registration and HTTP handlers
package micropub
