// Package pipeline commits composed frames to a display controller.
//
// A Pipeline accepts window tables from producers, validates and imports them
// on the caller's goroutine, then hands them to a single worker that programs
// the shadow register bank, triggers the latch and waits for vsync and the
// controller's update acknowledgement. Each submission returns a fence token
// that is signaled once the frame is on screen and the buffers it replaced
// have been handed back.
//
// Frame lifecycle:
//   - queued: validated, imported and waiting for the worker
//   - applying: units acquired, QoS raised, shadow registers written
//   - awaiting_vsync / awaiting_hardware_ack: latch triggered
//   - released: displayed; the previous frame's buffers are released
//   - aborted: never displayed; token signaled as aborted
//
// A vsync or ack timeout puts the pipeline into the degraded state. Submit
// then fails with PIPELINE_DEGRADED until Reset is called.
//
// Example usage:
//
//	m := pipeline.NewManager(arbiter, logger)
//	p, _ := m.Add(pipeline.Options{
//	    ID:       "internal",
//	    Panel:    panel,
//	    Hardware: controller,
//	    Importer: buffer.NewImporter(allocator),
//	})
//	controller.Attach(p)
//	_ = m.StartAll()
//	defer m.StopAll(ctx)
//
//	token, err := p.Submit(ctx, req)
//	status, err := p.Wait(ctx, token, time.Second)
package pipeline
