/*
Package capture implements zero-shutter-lag capture on top of the
concurrent frame ring buffer.

A Manager receives images and capture-result metadata from the frame
source, merges them per timestamp, and resolves capture requests:

	m := capture.NewManager(capture.Config{Capacity: 8}, pool, logger, metrics)
	sim := source.NewSimulator(cfg, source.NewDispatcher(m, burstSession), logger, metrics)

	// Deliver the newest frame already in the buffer, if one qualifies.
	tracker := capture.NewDeliveryTracker()
	ok := m.TryCaptureExistingImage(tracker.Track(save),
		capture.ZSLConstraints(tracker, capture.FlashOff)...)

	// Or wait for the next frame that qualifies.
	m.CaptureNextImage(save, capture.RequestTag("explicit"))

Callbacks run on the executor while their frame is pinned. They must copy
what they need; the image is closed by the buffer after the pin is released.

Only one deferred request is held at a time. A new CaptureNextImage call
replaces an unresolved one without notice. If the executor rejects a
delivery the frame is dropped and not retried.

# Constraints

Constraints are evaluated in order and stop at the first failure:

  - DeliveryTracker.Newer: newer than the last delivered frame
  - LensStationary, AEStable, AFStable, AWBStable
  - FlashSatisfied: the OFF, ON and AUTO flash rules
  - RequestTag: frames from an explicitly tagged request

AutoFlashFilter replaces the AE and flash checks in AUTO mode. It remembers
whether AE last converged without needing flash, so frames captured while
AE searches again can still be used.
*/
package capture
