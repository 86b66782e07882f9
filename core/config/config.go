// Package config loads and validates the kernel configuration.
package config

import (
	_ "embed"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"sigs.k8s.io/yaml"
)

//go:embed default/config.yaml
var defaultConfigData []byte

// ConfigurationName is the config file name inside a session directory.
const ConfigurationName = "config.yaml"

// Configuration is the full kernel configuration.
type Configuration struct {
	// Session names the state database under the data dir.
	Session string `json:"session" validate:"required"`

	Limits  Limits  `json:"limits"`
	Serve   Serve   `json:"serve"`
	Logging Logging `json:"logging"`

	// Mounts configured at startup in addition to the root filesystem.
	Mounts []MountConfig `json:"mounts" validate:"unique=Path,dive"`

	// Servers are tool servers to register at startup.
	Servers []ServerConfig `json:"servers" validate:"unique=Name,dive"`
}

// Limits bound resource use during execution.
type Limits struct {
	// ScatterWorkers caps concurrent scatter workers.
	ScatterWorkers int `json:"scatter_workers" validate:"gte=1,lte=256"`
	// StreamBytes caps buffered bytes per pipeline stream.
	StreamBytes int `json:"stream_bytes" validate:"gte=4096"`
	// CaptureBytes caps retained output per command.
	CaptureBytes int `json:"capture_bytes" validate:"gte=4096"`
	// HistoryEntries caps retained history lines.
	HistoryEntries int `json:"history_entries" validate:"gte=0"`
	// RemoteCallsPerSecond rate-limits calls to each tool server.
	RemoteCallsPerSecond float64 `json:"remote_calls_per_second" validate:"gt=0"`
}

// Serve configures serve mode.
type Serve struct {
	// Address is the TCP listen address; empty means stdio.
	Address string `json:"address"`
}

// Logging configures the event log.
type Logging struct {
	// Path receives JSON-lines events; empty disables logging.
	Path string `json:"path"`
}

// MountConfig is one configured mount.
type MountConfig struct {
	Path     string `json:"path" validate:"required,startswith=/"`
	Type     string `json:"type" validate:"required,oneof=memory local remote"`
	Spec     string `json:"spec" validate:"required_unless=Type memory"`
	ReadOnly bool   `json:"read_only"`
}

// ServerConfig is one configured tool server.
type ServerConfig struct {
	Name    string `json:"name" validate:"required,alphanum"`
	Address string `json:"address" validate:"required"`
}

// Validate checks the configuration for semantic errors.
func (c *Configuration) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		return name
	})

	return validate.Struct(c)
}

// Default returns the embedded default configuration.
func Default() *Configuration {
	var out Configuration
	if err := yaml.UnmarshalStrict(defaultConfigData, &out); err != nil {
		panic(err)
	}
	return &out
}

// DefaultYAML returns the embedded default config file contents, used by
// the init command to seed new session directories.
func DefaultYAML() []byte {
	out := make([]byte, len(defaultConfigData))
	copy(out, defaultConfigData)
	return out
}
