package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads a warden manifest from the provided path, expands
// environment references in the server and auxiliary blocks and applies
// defaults. Validation is a separate step so callers can report every
// problem with field-path context.
func Load(path string) (*File, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve manifest path: %w", err)
	}

	f, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	var doc File
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", absPath, err)
	}

	baseDir := filepath.Dir(absPath)
	doc.Server.Workdir = resolveWorkdir(baseDir, os.ExpandEnv(doc.Server.Workdir))

	env, err := mergeEnv(baseDir, doc.Server.Workdir, doc.Server.Env, doc.Server.EnvFromFile)
	if err != nil {
		return nil, fmt.Errorf("server.envFromFile: %w", err)
	}
	doc.Server.Env = env

	for i, aux := range doc.Auxiliary {
		if aux == nil {
			continue
		}
		aux.Workdir = resolveWorkdir(baseDir, os.ExpandEnv(aux.Workdir))
		if len(aux.Env) > 0 {
			expanded := make(map[string]string, len(aux.Env))
			for k, v := range aux.Env {
				expanded[k] = os.ExpandEnv(v)
			}
			doc.Auxiliary[i].Env = expanded
		}
	}

	doc.applyDefaults()
	return &doc, nil
}

func (f *File) applyDefaults() {
	if f.Server.Count == 0 {
		f.Server.Count = 1
	}
	if f.Server.Name == "" {
		f.Server.Name = "Server"
	}
	if f.Watch != nil && !f.Watch.Debounce.IsSet() {
		f.Watch.Debounce = Duration{Duration: 300 * time.Millisecond}
	}
	if f.API != nil && f.API.Addr == "" {
		f.API.Addr = "127.0.0.1:7663"
	}
	if f.Logging == nil {
		f.Logging = &LoggingSpec{Format: "auto"}
	} else if f.Logging.Format == "" {
		f.Logging.Format = "auto"
	}
}

func resolveWorkdir(baseDir, workdir string) string {
	if workdir == "" {
		return baseDir
	}
	if filepath.IsAbs(workdir) {
		return filepath.Clean(workdir)
	}
	return filepath.Clean(filepath.Join(baseDir, workdir))
}

func mergeEnv(baseDir, workdir string, inline map[string]string, fromFile string) (map[string]string, error) {
	var merged map[string]string

	if fromFile != "" {
		expanded := os.ExpandEnv(fromFile)
		if !filepath.IsAbs(expanded) {
			expanded = filepath.Clean(filepath.Join(workdir, expanded))
		}
		fileEnv, err := loadEnvFile(expanded)
		if err != nil {
			return nil, err
		}
		if len(fileEnv) > 0 {
			merged = fileEnv
		}
	}

	if len(inline) > 0 {
		if merged == nil {
			merged = make(map[string]string, len(inline))
		}
		for k, v := range inline {
			merged[k] = os.ExpandEnv(v)
		}
	}

	return merged, nil
}

func loadEnvFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load env file %q: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	values := make(map[string]string)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		key, value, found := strings.Cut(raw, "=")
		if !found {
			return nil, fmt.Errorf("env file %q line %d: expected KEY=VALUE", path, lineNo)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("env file %q line %d: empty key", path, lineNo)
		}
		values[key] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read env file %q: %w", path, err)
	}
	return values, nil
}
