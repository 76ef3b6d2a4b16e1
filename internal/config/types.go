package config

import (
	"fmt"
	"time"
)

// Duration wraps time.Duration for YAML unmarshalling.
type Duration struct {
	time.Duration
	explicit bool
}

// UnmarshalText parses a textual duration, accepting empty strings.
func (d *Duration) UnmarshalText(text []byte) error {
	d.explicit = true
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = dur
	return nil
}

// MarshalText renders the duration using time.Duration formatting.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// IsSet reports whether the duration was explicitly provided or non-zero.
func (d Duration) IsSet() bool {
	return d.explicit || d.Duration != 0
}

// File mirrors the warden.yaml document structure.
type File struct {
	Version    string         `yaml:"version"`
	Server     ServerSpec     `yaml:"server"`
	Auxiliary  []*AuxSpec     `yaml:"auxiliary"`
	Supervisor SupervisorSpec `yaml:"supervisor"`
	Watch      *WatchSpec     `yaml:"watch"`
	API        *APISpec       `yaml:"api"`
	Logging    *LoggingSpec   `yaml:"logging"`
}

// ServerSpec describes the replicated service worker.
type ServerSpec struct {
	Name        string            `yaml:"name"`
	Command     []string          `yaml:"command"`
	Env         map[string]string `yaml:"env"`
	EnvFromFile string            `yaml:"envFromFile"`
	Workdir     string            `yaml:"workdir"`
	Count       int               `yaml:"count"`
	Probe       *ProbeSpec        `yaml:"probe"`
}

// AuxSpec describes a durable auxiliary process that is started with the
// server workers but never dispatched restarts.
type AuxSpec struct {
	Name    string            `yaml:"name"`
	Command []string          `yaml:"command"`
	Env     map[string]string `yaml:"env"`
	Workdir string            `yaml:"workdir"`
}

// SupervisorSpec tunes the startup barrier.
type SupervisorSpec struct {
	AckTick      Duration `yaml:"ackTick"`
	AckThreshold int      `yaml:"ackThreshold"`
}

// WatchSpec configures the file-change watcher.
type WatchSpec struct {
	Paths    []string `yaml:"paths"`
	Debounce Duration `yaml:"debounce"`
}

// APISpec configures the inspection HTTP API.
type APISpec struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LoggingSpec selects the event log output format.
type LoggingSpec struct {
	// Format is one of "json", "pretty" or "auto" (pretty on a TTY).
	Format string `yaml:"format"`
}

// ProbeSpec describes how worker readiness is established. A worker
// acks as soon as any configured probe succeeds; with no probe the
// worker acks immediately after a successful spawn.
type ProbeSpec struct {
	HTTP             *HTTPProbeSpec    `yaml:"http"`
	TCP              *TCPProbeSpec     `yaml:"tcp"`
	Command          *CommandProbeSpec `yaml:"cmd"`
	Interval         Duration          `yaml:"interval"`
	Timeout          Duration          `yaml:"timeout"`
	GracePeriod      Duration          `yaml:"gracePeriod"`
	SuccessThreshold int               `yaml:"successThreshold"`
	FailureThreshold int               `yaml:"failureThreshold"`
}

// HTTPProbeSpec probes an HTTP endpoint.
type HTTPProbeSpec struct {
	URL          string `yaml:"url"`
	ExpectStatus []int  `yaml:"expectStatus"`
}

// TCPProbeSpec probes a TCP listen address.
type TCPProbeSpec struct {
	Address string `yaml:"address"`
}

// CommandProbeSpec probes by running a command until it exits zero.
type CommandProbeSpec struct {
	Command []string `yaml:"command"`
	Timeout Duration `yaml:"timeout"`
}

// Clone creates a deep copy of the probe configuration.
func (p *ProbeSpec) Clone() *ProbeSpec {
	if p == nil {
		return nil
	}
	cp := *p
	if p.HTTP != nil {
		h := *p.HTTP
		h.ExpectStatus = append([]int(nil), p.HTTP.ExpectStatus...)
		cp.HTTP = &h
	}
	if p.TCP != nil {
		t := *p.TCP
		cp.TCP = &t
	}
	if p.Command != nil {
		c := *p.Command
		c.Command = append([]string(nil), p.Command.Command...)
		cp.Command = &c
	}
	return &cp
}
