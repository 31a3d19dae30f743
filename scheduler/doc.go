// Package scheduler drives a loaded application: it creates the application
// exactly once, reconciles the two startup contracts and then advances the
// application at a fixed period until stopped.
//
// # Startup
//
// CreateApplication returns either a ready handle or a pending result.
// Start normalizes both: a ready handle arms the tick loop without
// suspending, a pending one is awaited first. The tick loop is never armed
// before the handle exists, and a rejected or canceled creation leaves no
// loop behind.
//
//	s := scheduler.New(ns, scheduler.WithPeriod(33*time.Millisecond))
//	if err := s.Start(ctx); err != nil {
//	    return err // errors.IsStartup(err)
//	}
//	defer s.Stop(context.Background())
//	<-s.Done()
//
// # Tick loop
//
// One goroutine calls Advance with the same handle every period, so
// activations never overlap. When an activation outlasts the period the
// OverlapPolicy applies: Coalesce runs one catch-up activation
// immediately, Skip waits for the next period boundary.
//
// An advance failure halts the loop under the default Halt policy; Err
// returns the advance error and Done is closed. Under Continue the failure
// is logged and counted, optionally escalating to a halt after
// WithMaxConsecutiveFailures failures in a row.
//
// # Time
//
// All timing goes through a Clock. SystemClock uses time.Ticker;
// ManualClock is advanced explicitly, which makes schedules reproducible
// in tests.
package scheduler
