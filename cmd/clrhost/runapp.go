package main

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/wippyai/clr-host/config"
)

func newRunAppCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run-app [flags] <app.dll> [args...]",
		Short: "Run a managed application through hostfxr",
		Long: `Initialize the runtime from a command line and run the application's
Main. The process exits with the application's exit code.

Arguments after the assembly are passed to the application:
  clrhost run-app App.dll --port 8080`,
		Args: cobra.MinimumNArgs(1),
		RunE: runRunApp,
	}
	cmd.Flags().SetInterspersed(false)
	addLocateFlags(cmd)
	return cmd
}

func runRunApp(cmd *cobra.Command, args []string) error {
	app, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	p, err := loadProfile(cmd, func(p *config.Profile) {
		p.RuntimeConfig = ""
		p.Component = nil
		p.CommandLine = append([]string{app}, args[1:]...)
	})
	if err != nil {
		return err
	}

	rt, err := startRuntime(cmd.Context(), p)
	if err != nil {
		return err
	}
	defer rt.Close()

	code, err := rt.RunApp()
	if err != nil {
		return err
	}
	if code != 0 {
		return &exitError{code: int(code)}
	}
	return nil
}
