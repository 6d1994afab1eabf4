package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/clr-host/coreclr"
	"github.com/wippyai/clr-host/nethost"
)

func newExecCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec [flags] <app.dll> [args...]",
		Short: "Run a managed application directly on coreclr",
		Long: `Start coreclr without hostfxr: the trusted platform assemblies are built
from the shared framework and the application directory, then the
application's entry point is executed.

  clrhost exec App.dll arg1 arg2
  clrhost exec --framework-dir /usr/share/dotnet/shared/Microsoft.NETCore.App/8.0.11 App.dll`,
		Args: cobra.MinimumNArgs(1),
		RunE: runExec,
	}
	cmd.Flags().SetInterspersed(false)
	cmd.Flags().String("coreclr", "", "Path of the coreclr library (default: from the framework directory)")
	cmd.Flags().String("framework-dir", "", "Shared framework directory (default: newest Microsoft.NETCore.App)")
	cmd.Flags().String("dotnet-root", "", ".NET install root (default: DOTNET_ROOT or the platform install)")
	cmd.Flags().StringSlice("tpa-dir", nil, "Extra directory of trusted assemblies (repeatable)")
	cmd.Flags().StringToString("property", nil, "Runtime property name=value (repeatable)")
	cmd.Flags().String("domain", coreclr.DefaultAppDomainName, "App domain name")
	return cmd
}

func runExec(cmd *cobra.Command, args []string) error {
	clrPath, _ := cmd.Flags().GetString("coreclr")
	fwDir, _ := cmd.Flags().GetString("framework-dir")
	root, _ := cmd.Flags().GetString("dotnet-root")
	extra, _ := cmd.Flags().GetStringSlice("tpa-dir")
	userProps, _ := cmd.Flags().GetStringToString("property")
	domain, _ := cmd.Flags().GetString("domain")

	coreclr.SetLogger(logger.Named("coreclr"))

	app, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	appDir := filepath.Dir(app)

	if fwDir == "" {
		if root == "" {
			root = nethost.DefaultDotnetRoot()
		}
		if fwDir, err = coreclr.FindFramework(root, ""); err != nil {
			return err
		}
	}
	if clrPath == "" {
		clrPath = filepath.Join(fwDir, coreclr.LibraryName())
	}

	tpa, err := coreclr.TrustedPlatformAssemblies(append([]string{fwDir, appDir}, extra...)...)
	if err != nil {
		return err
	}
	props := map[string]string{
		coreclr.PropTrustedPlatformAssemblies:  tpa,
		coreclr.PropAppPaths:                   appDir,
		coreclr.PropAppContextBaseDirectory:    appDir + string(filepath.Separator),
		coreclr.PropNativeDllSearchDirectories: appDir + string(os.PathListSeparator) + fwDir,
	}
	for k, v := range userProps {
		props[k] = v
	}

	lib, err := coreclr.Open(clrPath)
	if err != nil {
		return err
	}
	host, err := lib.Start(app, domain, props)
	if err != nil {
		_ = lib.Close()
		return err
	}

	exit, execErr := host.ExecuteAssembly(app, args[1:])
	latched, err := host.Shutdown()
	if execErr != nil {
		return execErr
	}
	if err != nil {
		logger.Warn("coreclr shutdown failed", zap.Error(err))
	}
	logger.Debug("application finished",
		zap.Uint32("exit_code", exit),
		zap.Int32("latched_exit_code", latched))

	if code := int(int32(exit)); code != 0 {
		return &exitError{code: code}
	}
	return nil
}
