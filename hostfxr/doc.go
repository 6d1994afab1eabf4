// Package hostfxr binds the .NET host resolver library (hostfxr) and
// drives its initialization protocol.
//
// A Library is bound once from a loaded hostfxr. Initializing it from a
// runtime config or a command line yields a Context, which hands out
// runtime delegates. The delegates used for component loading are wrapped
// as typed capabilities:
//
//	fxr, err := hostfxr.Open(path)
//	ctx, err := fxr.InitializeForRuntimeConfig("app.runtimeconfig.json")
//	load, err := ctx.LoadAssemblyAndGetFunctionPointer()
//	_ = ctx.Close() // load stays usable
//	fn, err := load.Call("App.dll", "App.Entry, App", "Create", hostfxr.UnmanagedCallersOnly)
//
// Every call into hostfxr or a capability holds a process-wide lock. The
// runtime cannot be unloaded; once a Context was created the Library
// refuses to close.
package hostfxr
