/*
Package burst provides burst capture: an evicting ring buffer whose victim
selection is delegated to an injected policy, and a Session that fills one
buffer per burst and hands the survivors to a Sink.

# Ring Buffer

RingBuffer keeps at most capacity frames. Once an insert overflows it, the
ring.EvictionHandler picks the frame to drop:

	policy := burst.NewLowestScorePolicy(frame.KeySharpness)
	buf := burst.NewRingBuffer(7, policy, logger, metrics)
	buf.Insert(frame.NewSlot(ts).WithImage(img))
	buf.NotifyMetadataAvailable(md)

Inserting a timestamp that is already resident releases the new image and
does not notify the handler. A handler that names a frame that is not
resident is a programming error and panics.

# Policies

  - OldestFirstPolicy: evicts the oldest frame.
  - LowestScorePolicy: evicts the frame with the lowest score under a
    metadata key. Frames whose score is unknown are kept.

# Sessions

	session := burst.NewSession(burst.SessionConfig{MaxImages: 8}, saver, logger, metrics)
	session.Start()
	// frames are routed through TryClaimImage and OnMetadataAvailable
	result, err := session.Stop(ctx)

Frames are named with MediaItemName, for example Burst_BURST_0_3_1234.
*/
package burst
