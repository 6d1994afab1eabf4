// Package coreclr binds the CoreCLR embedding API exported by the
// coreclr shared library.
//
// Unlike hostfxr, coreclr does no framework resolution: the caller
// supplies every runtime property, most importantly the trusted platform
// assemblies list, and gets back a started runtime in one call.
//
//	lib, err := coreclr.Open("/usr/share/dotnet/shared/Microsoft.NETCore.App/8.0.0/libcoreclr.so")
//	tpa, err := coreclr.TrustedPlatformAssemblies(frameworkDir, appDir)
//	host, err := lib.Start(exe, "app", map[string]string{coreclr.PropTrustedPlatformAssemblies: tpa})
//	exit, err := host.ExecuteAssembly("/srv/app/App.dll", nil)
//
// All strings crossing this API are UTF-8 on every platform.
package coreclr
