// Package clrhost hosts the .NET runtime inside a Go process and calls
// managed components through native function pointers.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	clrhost/             Package documentation
//	├── runtime/         High-level API: start the runtime, load components
//	├── hostfxr/         hostfxr binding and initialization protocol
//	├── coreclr/         coreclr binding for direct embedding
//	├── nethost/         hostfxr discovery
//	├── assembly/        From-path and from-memory component loading
//	├── facade/          Create/Configure/Invoke interface tables
//	├── config/          YAML host profiles
//	├── dl/              Shared library loading and symbol lookup
//	├── native/          Typed function pointers and native strings
//	├── errors/          Structured error types for debugging
//	└── cmd/clrhost/     Command line host
//
// # Quick Start
//
// Start the runtime and call a component:
//
//	rt, err := runtime.New(ctx, runtime.Config{
//	    RuntimeConfig: "Sample.runtimeconfig.json",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close()
//
//	loader, err := rt.LoadFromPath("Sample.dll")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	table, err := rt.Interface(loader, facade.DefaultNames("Sample.Api, Sample"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	s, err := table.Create()
//	_ = s.Configure("Get-Date")
//	_ = s.Invoke()
//
// # Component Entry Points
//
// A component exposes static methods marked [UnmanagedCallersOnly]:
//
//	void* Create()
//	void  Configure(void* instance, const char* input)
//	void  Invoke(void* instance)
//
// Configure receives UTF-8 text on every platform.
//
// # Thread Safety
//
// Calls into hostfxr, coreclr and the runtime delegates are serialized by
// a process-wide lock. Calls through component entry points are not: a
// Table may be shared, but a Session belongs to one goroutine at a time.
//
// # Runtime Lifetime
//
// A process hosts at most one .NET runtime and it can never be unloaded.
// Closing a Runtime releases its host context; function pointers obtained
// earlier stay valid until the process exits.
package clrhost
