package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Validate checks that the manifest can actually be served. The worker
// count constraint is enforced here in addition to manager construction
// so operators see the error with field-path context before anything is
// wired up.
func (f *File) Validate() error {
	if f.Server.Count < 1 {
		return fmt.Errorf("server.count: cannot serve with no workers (got %d)", f.Server.Count)
	}
	if len(f.Server.Command) == 0 {
		return fmt.Errorf("server.command: at least one argument is required")
	}
	if err := validateProbe("server.probe", f.Server.Probe); err != nil {
		return err
	}

	seen := map[string]struct{}{f.Server.Name: {}}
	for i, aux := range f.Auxiliary {
		field := fmt.Sprintf("auxiliary[%d]", i)
		if aux == nil {
			return fmt.Errorf("%s: empty entry", field)
		}
		if strings.TrimSpace(aux.Name) == "" {
			return fmt.Errorf("%s.name: required", field)
		}
		if _, dup := seen[aux.Name]; dup {
			return fmt.Errorf("%s.name: duplicate worker identity %q", field, aux.Name)
		}
		seen[aux.Name] = struct{}{}
		if len(aux.Command) == 0 {
			return fmt.Errorf("%s.command: at least one argument is required", field)
		}
	}

	if f.Supervisor.AckThreshold < 0 {
		return fmt.Errorf("supervisor.ackThreshold: must not be negative")
	}
	if f.Supervisor.AckTick.Duration < 0 {
		return fmt.Errorf("supervisor.ackTick: must not be negative")
	}

	if f.Watch != nil && len(f.Watch.Paths) == 0 {
		return fmt.Errorf("watch.paths: at least one path is required")
	}

	if f.API != nil && f.API.Enabled {
		if _, _, err := net.SplitHostPort(f.API.Addr); err != nil {
			return fmt.Errorf("api.addr: invalid listen address %q: %w", f.API.Addr, err)
		}
	}

	if f.Logging != nil {
		switch f.Logging.Format {
		case "", "auto", "json", "pretty":
		default:
			return fmt.Errorf("logging.format: unknown format %q", f.Logging.Format)
		}
	}

	return nil
}

func validateProbe(field string, p *ProbeSpec) error {
	if p == nil {
		return nil
	}
	configured := 0
	if p.HTTP != nil {
		configured++
		if _, err := url.ParseRequestURI(p.HTTP.URL); err != nil {
			return fmt.Errorf("%s.http.url: %w", field, err)
		}
	}
	if p.TCP != nil {
		configured++
		if _, _, err := net.SplitHostPort(p.TCP.Address); err != nil {
			return fmt.Errorf("%s.tcp.address: %w", field, err)
		}
	}
	if p.Command != nil {
		configured++
		if len(p.Command.Command) == 0 {
			return fmt.Errorf("%s.cmd.command: at least one argument is required", field)
		}
	}
	if configured == 0 {
		return fmt.Errorf("%s: missing probe configuration", field)
	}
	if p.SuccessThreshold < 0 || p.FailureThreshold < 0 {
		return fmt.Errorf("%s: thresholds must not be negative", field)
	}
	return nil
}
