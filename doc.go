// Package codescan scans a live camera feed for barcodes and QR codes and
// reports the first decoded payload.
//
// Philosophy: "Drop frames, never queue. Latency > Completeness."
//
// A scanner that falls behind the camera shows the user a code they already
// moved away from. Codescan therefore keeps exactly one frame in flight and
// drops everything that arrives while it is busy: under load the effective
// frame rate goes down, latency does not go up.
//
// # Pipeline
//
//	capture → Submit → Geometry → Enhance → Variants → Decoder → Sink
//	(30fps)   gate      crop       mono +     8 probes   external   dispatcher
//	          (1 slot)  window     inverse    in order              goroutine
//
//   - Geometry: maps the fixed on-screen target window to a frame region,
//     correcting for the 90° sensor mounting and aspect-fill cropping.
//   - Enhance: contrast-boosted grayscale plus its photometric inverse.
//   - Variants: 4 orientations × 2 polarities, orientation-major, stop at the
//     first payload (see DefaultOrder).
//   - Decoder: external capability, see package decoder for adapters.
//
// # Basic Usage
//
//	dec, _ := decoder.New("zxing")
//	scanner, err := codescan.New(codescan.DefaultConfig(), dec, codescan.SinkFuncs{
//	    Result: func(r codescan.Result) {
//	        fmt.Println(r.Outcome.Payload, r.Outcome.VariantLabel)
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	scanner.SetViewport(codescan.NewViewport(393, 852))
//	if err := scanner.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer scanner.Stop()
//
//	// capture goroutine
//	for f := range frames {
//	    scanner.Submit(f) // processes or drops, never blocks on a queue
//	}
//
// # Drop Semantics
//
// Drops are EXPECTED and HEALTHY:
//
//   - DroppedBusy: frames arriving while a frame is in flight
//   - PreviewDrops: previews overwritten before the sink consumed them
//   - EventDrops: results/errors dropped because the sink is stalled
//
// Drops are NOT errors.
//
// # Thread Safety
//
// All Scanner methods are safe for concurrent use. Processing runs in the
// goroutine calling Submit; Sink callbacks run on a separate dispatcher
// goroutine, are serialized and may call Stop.
//
// # Stall Guard
//
// A decoder that does not return within Config.ProcessTimeout (default 2s) is
// abandoned: the gate returns to Idle, "Scanner stalled" is reported and the
// next frame is admitted.
//
// # Lifecycle
//
//  1. New(): stopped scanner
//  2. Start(ctx): new session (Idle, empty mailboxes)
//  3. Submit()/SetViewport(): normal operation
//  4. Stop(): in-flight frame abandoned, pending deliveries discarded
//  5. Start(ctx) again: fresh session
package codescan
