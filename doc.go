// Package tickhost hosts a precompiled WebAssembly application module and
// drives it forward at a fixed real-time rate.
//
// # Architecture Overview
//
//	tickhost/            Root package with the Namespace, Handle and Creation contracts
//	├── engine/          wazero integration: compilation, host imports, WASI
//	├── loader/          Artifact sources and one-shot module loading
//	├── scheduler/       Startup handshake and the fixed-period tick loop
//	├── events/          Lifecycle events as CloudEvents
//	├── config/          TOML/YAML/env configuration
//	├── status/          HTTP status endpoint
//	├── bootstrap/       Composition of loader, scheduler and reporters
//	└── errors/          Structured error types
//
// # Quick Start
//
//	ld := loader.New(loader.FileSource{Path: "app.wasm"})
//	ns, err := ld.Load(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	s := scheduler.New(ns)
//	if err := s.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Stop(context.Background())
//
//	<-s.Done()
//
// # Startup Contracts
//
// A module's create entry point either returns a usable handle (Ready) or a
// pending result (Deferred). Creation.Resolve normalizes both; the scheduler
// arms its tick loop only after Resolve returns a handle.
//
// # Thread Safety
//
// Namespace implementations are not required to be safe for concurrent use.
// The scheduler never calls into a Namespace from two goroutines at once.
package tickhost
