// Package services contains the heartbeat core shared by the foreground agent
// and the background worker: settings persistence, the beat pipeline, the
// notification gate, push subscription management and the activity log.
//
// Services depend on small interfaces rather than on the store directly so
// that each can be tested with in-memory fakes or a temporary database.
package services
