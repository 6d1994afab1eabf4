package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/clr-host/config"
	"github.com/wippyai/clr-host/runtime"
)

// exitError carries a managed exit code out of a command.
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func Execute() {
	err := newRootCmd().Execute()
	var ee *exitError
	switch {
	case stderrors.As(err, &ee):
		os.Exit(ee.code)
	case err != nil:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "clrhost",
		Short: "Host the .NET runtime and call managed components",
		Long: `clrhost - Start the .NET runtime inside a native process.

Components are loaded from disk or from memory and driven through their
Create/Configure/Invoke entry points. Applications can be run through
hostfxr or directly on coreclr.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, _ := cmd.Flags().GetString("log-level")
			l, err := newLogger(level)
			if err != nil {
				return err
			}
			logger = l
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
	}

	root.PersistentFlags().String("log-level", "warn", "Log level: debug, info, warn, error")
	root.PersistentFlags().StringP("profile", "p", "", "Host profile (YAML)")

	root.AddCommand(
		newCallCmd(),
		newRunAppCmd(),
		newExecCmd(),
		newPropsCmd(),
		newSchemaCmd(),
		newInteractiveCmd(),
	)
	return root
}

var logger = zap.NewNop()

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = true
	return cfg.Build()
}

// addLocateFlags registers the flags that pick the hosting library.
func addLocateFlags(cmd *cobra.Command) {
	cmd.Flags().String("hostfxr", "", "Path of the hostfxr library")
	cmd.Flags().String("nethost", "", "Path of the nethost library used to find hostfxr")
	cmd.Flags().String("dotnet-root", "", ".NET install root (default: DOTNET_ROOT or the platform install)")
	cmd.Flags().StringToString("property", nil, "Runtime property name=value (repeatable)")
}

// addHostFlags registers the flags that pick and start the runtime.
func addHostFlags(cmd *cobra.Command) {
	addLocateFlags(cmd)
	cmd.Flags().String("runtime-config", "", "runtimeconfig.json to initialize from")
}

// addComponentFlags registers the flags that describe a component.
func addComponentFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("assembly", "a", "", "Component assembly")
	cmd.Flags().StringP("type", "t", "", "Assembly-qualified component type")
	cmd.Flags().String("strategy", "", "Load strategy: path, memory, runtime_bytes (default: path)")
	cmd.Flags().String("helper-assembly", "", "Assembly of the in-memory loader (memory strategy)")
	cmd.Flags().String("helper-type", "", "Type of the in-memory loader (memory strategy)")
	cmd.Flags().String("helper-method", "", "Method of the in-memory loader (default: LoadAssemblyFromMemory)")
	cmd.Flags().String("create", "", "Create entry point (default: Create)")
	cmd.Flags().String("configure", "", "Configure entry point (default: Configure)")
	cmd.Flags().String("invoke", "", "Invoke entry point (default: Invoke)")
}

// loadProfile reads --profile, if given, and applies the command's flags
// and then adjust on top of it. Paths given as flags are relative to the
// working directory.
func loadProfile(cmd *cobra.Command, adjust ...func(*config.Profile)) (*config.Profile, error) {
	f := cmd.Flags()
	path, _ := f.GetString("profile")

	p := &config.Profile{}
	if path != "" {
		var err error
		if p, err = config.Load(path); err != nil {
			return nil, err
		}
	}

	if err := pathFlag(cmd, "hostfxr", &p.Hostfxr); err != nil {
		return nil, err
	}
	if err := pathFlag(cmd, "nethost", &p.Nethost); err != nil {
		return nil, err
	}
	if err := pathFlag(cmd, "dotnet-root", &p.DotnetRoot); err != nil {
		return nil, err
	}
	if err := pathFlag(cmd, "runtime-config", &p.RuntimeConfig); err != nil {
		return nil, err
	}
	if f.Changed("runtime-config") {
		p.CommandLine = nil
	}
	if f.Lookup("property") != nil && f.Changed("property") {
		props, _ := f.GetStringToString("property")
		if p.Properties == nil {
			p.Properties = make(map[string]string, len(props))
		}
		for k, v := range props {
			p.Properties[k] = v
		}
	}

	if err := componentFlags(cmd, p); err != nil {
		return nil, err
	}
	for _, fn := range adjust {
		fn(p)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func componentFlags(cmd *cobra.Command, p *config.Profile) error {
	f := cmd.Flags()
	if f.Lookup("assembly") == nil {
		return nil
	}
	names := []string{"assembly", "type", "strategy", "helper-assembly", "helper-type", "helper-method", "create", "configure", "invoke"}
	changed := false
	for _, n := range names {
		changed = changed || f.Changed(n)
	}
	if !changed {
		return nil
	}

	if p.Component == nil {
		p.Component = &config.Component{}
	}
	c := p.Component
	if err := pathFlag(cmd, "assembly", &c.Assembly); err != nil {
		return err
	}
	stringFlag(cmd, "type", &c.Type)
	if f.Changed("strategy") {
		s, _ := f.GetString("strategy")
		c.Strategy = config.Strategy(s)
	}
	if f.Changed("helper-assembly") || f.Changed("helper-type") || f.Changed("helper-method") {
		if c.Helper == nil {
			c.Helper = &config.Helper{}
		}
		if err := pathFlag(cmd, "helper-assembly", &c.Helper.Assembly); err != nil {
			return err
		}
		stringFlag(cmd, "helper-type", &c.Helper.Type)
		stringFlag(cmd, "helper-method", &c.Helper.Method)
	}
	stringFlag(cmd, "create", &c.Create)
	stringFlag(cmd, "configure", &c.Configure)
	stringFlag(cmd, "invoke", &c.Invoke)
	return nil
}

func stringFlag(cmd *cobra.Command, name string, dst *string) {
	if cmd.Flags().Changed(name) {
		*dst, _ = cmd.Flags().GetString(name)
	}
}

func pathFlag(cmd *cobra.Command, name string, dst *string) error {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetString(name)
	if v == "" {
		*dst = ""
		return nil
	}
	abs, err := filepath.Abs(v)
	if err != nil {
		return fmt.Errorf("--%s: %w", name, err)
	}
	*dst = abs
	return nil
}

// startRuntime starts the runtime described by p with the command's
// logger receiving hostfxr diagnostics.
func startRuntime(ctx context.Context, p *config.Profile) (*runtime.Runtime, error) {
	cfg := p.HostConfig()
	cfg.Logger = logger
	cfg.ErrorWriter = func(msg string) {
		logger.Warn("hostfxr", zap.String("message", strings.TrimSpace(msg)))
	}
	return runtime.New(ctx, cfg)
}
