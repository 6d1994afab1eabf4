// Package runtime brings up a .NET runtime inside the current process and
// exposes what is needed to call managed components from Go.
//
// # Quick Start
//
//	rt, err := runtime.New(ctx, runtime.Config{
//	    RuntimeConfig: "Sample.runtimeconfig.json",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close()
//
//	// Load a component from disk
//	loader, err := rt.LoadFromPath("Sample.dll")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Resolve its Create/Configure/Invoke table
//	table, err := rt.Interface(loader, facade.DefaultNames("Sample.Api, Sample"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	s, err := table.Create()
//	_ = s.Configure("Get-Date")
//	_ = s.Invoke()
//
// # Locating hostfxr
//
// Config.HostfxrPath wins when set. Otherwise nethost is asked
// (Config.NethostPath), and without nethost the newest hostfxr under
// Config.DotnetRoot, DOTNET_ROOT or the platform install is used.
//
// # Loading Components
//
// Two strategies produce the same assembly.Resolver:
//
//	LoadFromPath(path)                 - the runtime loads the file itself
//	LoadHelper(helper, type, method)   - a component helper loads images from memory
//	RuntimeBytesLoader()               - load_assembly_bytes loads images from memory (.NET 8+)
//
// # Lifetime
//
// A process hosts at most one runtime and it cannot be unloaded. Close
// releases the host context only; loaders and tables obtained before it
// stay valid.
package runtime
