package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/wippyai/clr-host/hostfxr"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	nameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98")).
			Padding(0, 1)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB")).
			Padding(0, 1)

	borderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

const maxValueWidth = 72

func newPropsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "props",
		Short: "Show runtime properties",
		Long: `Start the runtime and list the properties it resolved, or with --static
only read the configProperties of the runtime config without starting
anything.`,
		Args: cobra.NoArgs,
		RunE: runProps,
	}
	addHostFlags(cmd)
	cmd.Flags().Bool("static", false, "Read the runtime config only")
	cmd.Flags().Bool("full", false, "Do not shorten long values")
	return cmd
}

func runProps(cmd *cobra.Command, args []string) error {
	static, _ := cmd.Flags().GetBool("static")
	full, _ := cmd.Flags().GetBool("full")

	p, err := loadProfile(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if static {
		path := p.HostConfig().RuntimeConfig
		if path == "" {
			return fmt.Errorf("--static needs a runtime config")
		}
		rc, err := hostfxr.ReadRuntimeConfig(path)
		if err != nil {
			return err
		}
		if rc.RuntimeOptions.TFM != "" {
			fmt.Fprintf(out, "tfm: %s\n", rc.RuntimeOptions.TFM)
		}
		for _, fw := range rc.FrameworkReferences() {
			fmt.Fprintf(out, "framework: %s %s\n", fw.Name, fw.Version)
		}
		renderProperties(out, rc.Properties(), full)
		return nil
	}

	rt, err := startRuntime(cmd.Context(), p)
	if err != nil {
		return err
	}
	defer rt.Close()
	renderProperties(out, rt.Properties(), full)
	return nil
}

func renderProperties(w io.Writer, props []hostfxr.Property, full bool) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers("PROPERTY", "VALUE").
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 0:
				return nameStyle
			default:
				return valueStyle
			}
		})
	for _, p := range props {
		v := p.Value
		if !full {
			v = shorten(v, maxValueWidth)
		}
		t.Row(p.Name, v)
	}
	fmt.Fprintln(w, t.Render())
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
