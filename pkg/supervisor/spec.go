package supervisor

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ServiceSpec describes one service process to supervise.
type ServiceSpec struct {
	// Name identifies the service in logs and results.
	Name string `yaml:"name"`

	// Command is the argv to run, binary first.
	Command []string `yaml:"command"`

	// BuildCommand, when set, is run to completion before the first Start.
	BuildCommand []string `yaml:"build_command,omitempty"`

	// Dir is the working directory for both build and run.
	Dir string `yaml:"dir,omitempty"`

	// Env entries in KEY=VALUE form, appended to the inherited environment.
	Env []string `yaml:"env,omitempty"`

	// Port is the TCP port the service listens on. Used for stale-process
	// eviction before start.
	Port int `yaml:"port,omitempty"`

	// KillPattern is a command-line substring for evicting stale instances,
	// matched the way pkill -f matches.
	KillPattern string `yaml:"kill_pattern,omitempty"`

	// HealthPath is the path probed on localhost:Port after start. Empty
	// means the service is not health-gated.
	HealthPath string `yaml:"health_path,omitempty"`

	// Ready selects which statuses count as ready: "auth" (401/403/405,
	// the default) or "ok" (200).
	Ready string `yaml:"ready,omitempty"`

	// GateAttempts overrides the probe budget for this service.
	GateAttempts int `yaml:"gate_attempts,omitempty"`
}

// Validate reports the first problem with the spec.
func (s ServiceSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("service spec missing name")
	}
	if len(s.Command) == 0 {
		return fmt.Errorf("service %q has no command", s.Name)
	}
	switch s.Ready {
	case "", "auth", "ok":
	default:
		return fmt.Errorf("service %q has unknown ready mode %q", s.Name, s.Ready)
	}
	if s.HealthPath != "" && s.Port == 0 {
		return fmt.Errorf("service %q has a health path but no port", s.Name)
	}
	return nil
}

// specFile is the on-disk shape of a service inventory.
type specFile struct {
	Services []ServiceSpec `yaml:"services"`
}

// LoadSpecs reads a YAML service inventory.
func LoadSpecs(path string) ([]ServiceSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading service file: %w", err)
	}
	var f specFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing service file %s: %w", path, err)
	}
	if len(f.Services) == 0 {
		return nil, fmt.Errorf("service file %s declares no services", path)
	}
	for _, s := range f.Services {
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}
	return f.Services, nil
}
