// Package event defines the capture lifecycle events.
//
// Once the persistence layer has written a frame or a burst it announces the
// outcome through a Publisher:
//
//	pub.Publish(ctx, event.TypeCaptureSaved,
//	    event.Subject(sessionID, "zsl", name),
//	    event.CaptureSaved{Name: name, Path: path, SizeBytes: n})
//
// # Event Types
//
//	event.TypeCaptureSaved   // one ZSL frame stored
//	event.TypeCaptureFailed  // a frame could not be validated, encoded or written
//	event.TypeBurstSaved     // a burst stored as one file
//
// Implementations wrap the payload in a CloudEvents 1.0 envelope with
// Source set to event.Source and a JSON data content type. Nop discards
// every event and is used when publishing is disabled.
package event
