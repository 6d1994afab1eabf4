package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func executeCommand(args ...string) (string, error) {
	root := newRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func writeRuntimeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "App.runtimeconfig.json")
	doc := `{
  "runtimeOptions": {
    "tfm": "net8.0",
    "framework": { "name": "Microsoft.NETCore.App", "version": "8.0.0" },
    "configProperties": {
      "System.GC.Server": false,
      "System.Globalization.Invariant": true
    }
  }
}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCLIHelp(t *testing.T) {
	output, err := executeCommand("--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expectedPhrases := []string{
		"clrhost",
		".NET runtime",
		"call",
		"run-app",
		"exec",
		"props",
		"schema",
		"interactive",
		"--log-level",
		"--profile",
	}
	for _, phrase := range expectedPhrases {
		if !strings.Contains(output, phrase) {
			t.Errorf("help output should contain %q", phrase)
		}
	}
}

func TestCLICallHelp(t *testing.T) {
	output, err := executeCommand("call", "--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expectedPhrases := []string{
		"--hostfxr",
		"--nethost",
		"--runtime-config",
		"--assembly",
		"--type",
		"--strategy",
		"--helper-assembly",
		"--input",
		"--no-invoke",
	}
	for _, phrase := range expectedPhrases {
		if !strings.Contains(output, phrase) {
			t.Errorf("call help output should contain %q", phrase)
		}
	}
}

func TestCLISchema(t *testing.T) {
	output, err := executeCommand("schema")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(output), &doc); err != nil {
		t.Fatalf("schema is not JSON: %v", err)
	}
	if !strings.Contains(output, "runtime_config") {
		t.Error("schema should describe runtime_config")
	}
}

func TestCLIPropsStatic(t *testing.T) {
	rc := writeRuntimeConfig(t)
	output, err := executeCommand("props", "--static", "--runtime-config", rc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expectedPhrases := []string{
		"tfm: net8.0",
		"framework: Microsoft.NETCore.App 8.0.0",
		"PROPERTY",
		"System.GC.Server",
		"System.Globalization.Invariant",
		"true",
	}
	for _, phrase := range expectedPhrases {
		if !strings.Contains(output, phrase) {
			t.Errorf("props output should contain %q, got:\n%s", phrase, output)
		}
	}
}

func TestCLIPropsStaticFromProfile(t *testing.T) {
	rc := writeRuntimeConfig(t)
	profile := filepath.Join(filepath.Dir(rc), "host.yaml")
	if err := os.WriteFile(profile, []byte("runtime_config: App.runtimeconfig.json\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	output, err := executeCommand("props", "-p", profile, "--static")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(output, "System.GC.Server") {
		t.Errorf("props output should list the profile's runtime config, got:\n%s", output)
	}
}

func TestCLIErrors(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing")
	rc := writeRuntimeConfig(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no target", []string{"call", "--hostfxr", missing}, "invalid_config"},
		{"no component", []string{"call", "--runtime-config", rc, "--hostfxr", missing}, "no component"},
		{"bad strategy", []string{"call", "--runtime-config", rc, "-a", "App.dll", "-t", "App.Api, App", "--strategy", "stream"}, "invalid_config"},
		{"hostfxr missing", []string{"run-app", "--hostfxr", missing, "App.dll"}, "library_load"},
		{"profile missing", []string{"call", "-p", missing}, "invalid_config"},
		{"log level", []string{"--log-level", "loud", "schema"}, "invalid log level"},
		{"props without target", []string{"props", "--static"}, "invalid_config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeCommand(tt.args...)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should contain %q", err, tt.want)
			}
		})
	}
}

func TestCLIExecMissingCoreclr(t *testing.T) {
	fw := t.TempDir()
	app := filepath.Join(t.TempDir(), "App.dll")
	if err := os.WriteFile(app, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := executeCommand("exec", "--framework-dir", fw, app)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "library_load") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCLIInteractiveNeedsTerminal(t *testing.T) {
	prev := isTerminal
	isTerminal = func(int) bool { return false }
	defer func() { isTerminal = prev }()

	_, err := executeCommand("interactive", "-a", "App.dll", "-t", "App.Api, App")
	if err == nil || !strings.Contains(err.Error(), "terminal") {
		t.Fatalf("expected a terminal error, got %v", err)
	}
}

func TestShorten(t *testing.T) {
	if got := shorten("short", 10); got != "short" {
		t.Errorf("shorten changed a short value: %q", got)
	}
	got := shorten(strings.Repeat("x", 20), 10)
	if len([]rune(got)) != 10 || !strings.HasSuffix(got, "…") {
		t.Errorf("unexpected shortened value %q", got)
	}
}
