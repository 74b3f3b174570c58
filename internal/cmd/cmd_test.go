package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mikeyhodl/quote-bot/internal/config"
)

// executeCommand runs a cobra command with args and returns captured output
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err = root.Execute()
	return buf.String(), err
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	expected := []string{"run", "worker", "config", "version"}

	cmdMap := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		cmdMap[cmd.Name()] = true
	}

	for _, name := range expected {
		if !cmdMap[name] {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

func TestConfigSubcommands(t *testing.T) {
	expected := []string{"show", "init", "path"}

	cmdMap := make(map[string]bool)
	for _, cmd := range configCmd.Commands() {
		cmdMap[cmd.Name()] = true
	}

	for _, name := range expected {
		if !cmdMap[name] {
			t.Errorf("missing config subcommand %q", name)
		}
	}
}

func TestWorkerCommandHidden(t *testing.T) {
	if !workerCmd.Hidden {
		t.Error("worker command should be hidden; the master spawns it")
	}
}

func TestVersionOutput(t *testing.T) {
	out, err := executeCommand(rootCmd, "version")
	if err != nil {
		t.Fatalf("version error: %v", err)
	}
	if !strings.HasPrefix(out, "quote-bot ") {
		t.Errorf("version output = %q, want quote-bot prefix", out)
	}
}

func TestRenderConfigRoundTrips(t *testing.T) {
	cfg := config.Default()
	cfg.Dispatch.Capacity = 5

	out, err := renderConfig(cfg)
	if err != nil {
		t.Fatalf("renderConfig() error: %v", err)
	}

	var decoded struct {
		Dispatch struct {
			Capacity     int `yaml:"capacity"`
			QueueMaxSize int `yaml:"queue_max_size"`
		} `yaml:"dispatch"`
		Pool struct {
			MaxWorkers int `yaml:"max_workers"`
		} `yaml:"pool"`
	}
	if err := yaml.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("rendered config not valid YAML: %v", err)
	}

	if decoded.Dispatch.Capacity != 5 {
		t.Errorf("capacity = %d, want 5", decoded.Dispatch.Capacity)
	}
	if decoded.Dispatch.QueueMaxSize != 1000 {
		t.Errorf("queue_max_size = %d, want 1000", decoded.Dispatch.QueueMaxSize)
	}
	if decoded.Pool.MaxWorkers != 16 {
		t.Errorf("max_workers = %d, want 16", decoded.Pool.MaxWorkers)
	}
}

func TestInitTemplateParses(t *testing.T) {
	var doc map[string]any
	if err := yaml.Unmarshal([]byte(defaultConfigTemplate), &doc); err != nil {
		t.Fatalf("init template not valid YAML: %v", err)
	}

	for _, section := range []string{"dispatch", "pool", "health", "bridge", "logging", "telemetry"} {
		if _, ok := doc[section]; !ok {
			t.Errorf("init template missing section %q", section)
		}
	}
}
