// Package errors provides structured error types for the CLR host.
//
// Errors are categorized by Phase (where in the bootstrap pipeline the error
// occurred) and Kind (error category). The Error type carries the path,
// symbol and raw hosting status needed to tell failures apart.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseBind, errors.KindSymbolMissing).
//		Path("/usr/share/dotnet/host/fxr/8.0.0/libhostfxr.so").
//		Symbol("hostfxr_close").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.RuntimeInit(configPath, 0x80008093, "initialize_for_runtime_config")
//	err := errors.MethodResolution("Sample.Api, Sample", "DoWork", 0x80131522)
//
// Kinds are matched with the standard library through sentinel targets:
//
//	if errors.Is(err, errors.ErrSymbolMissing) { ... }
//
// Status codes are diagnostic data. Callers should not branch on them.
package errors
