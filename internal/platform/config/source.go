package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// source answers lookups with precedence: explicit map, then process env, then .env file.
type source struct {
	explicit map[string]string
	system   bool
	dotenv   map[string]string
}

func newSource(o loaderOptions) (source, error) {
	dotenv, err := readDotEnv(o.envFile)
	if err != nil {
		return source{}, err
	}
	return source{explicit: o.envMap, system: o.useSystemEnv, dotenv: dotenv}, nil
}

func (s source) lookup(key string) (string, bool) {
	if v, ok := s.explicit[key]; ok {
		return v, true
	}
	if s.system {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
	}
	v, ok := s.dotenv[key]
	return v, ok
}

// values flattens every layer into one map, highest precedence last.
func (s source) values() map[string]string {
	out := make(map[string]string, len(s.dotenv))
	for k, v := range s.dotenv {
		out[k] = v
	}
	if s.system {
		for _, entry := range os.Environ() {
			if k, v, ok := strings.Cut(entry, "="); ok && strings.TrimSpace(k) != "" {
				out[strings.TrimSpace(k)] = v
			}
		}
	}
	for k, v := range s.explicit {
		out[k] = v
	}
	return out
}

// raw returns the trimmed value, or "" when the key is unset or blank.
func (s source) raw(key string) string {
	v, _ := s.lookup(key)
	return strings.TrimSpace(v)
}

func (s source) str(key, def string) string {
	if v := s.raw(key); v != "" {
		return v
	}
	return def
}

func (s source) lower(key, def string) string {
	return strings.ToLower(s.str(key, def))
}

func (s source) duration(key string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(s.raw(key)); err == nil {
		return d
	}
	return def
}

func (s source) integer(key string, def int) int {
	if n, err := strconv.Atoi(s.raw(key)); err == nil {
		return n
	}
	return def
}

func (s source) paise(key string, def int64) int64 {
	if n, err := strconv.ParseInt(s.raw(key), 10, 64); err == nil {
		return n
	}
	return def
}

func (s source) percent(key string, def float64) float64 {
	if f, err := strconv.ParseFloat(s.raw(key), 64); err == nil {
		return f
	}
	return def
}

func (s source) flag(key string, def bool) bool {
	switch strings.ToLower(s.raw(key)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	return def
}

// list splits a comma separated value, dropping blanks.
func (s source) list(key string) []string {
	out := []string{}
	for _, part := range strings.Split(s.raw(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// pairs parses "env=value,env=value" with lowercased keys.
func (s source) pairs(key string) map[string]string {
	out := map[string]string{}
	for _, entry := range s.list(key) {
		k, v, ok := strings.Cut(entry, "=")
		k, v = strings.ToLower(strings.TrimSpace(k)), strings.TrimSpace(v)
		if ok && k != "" && v != "" {
			out[k] = v
		}
	}
	return out
}

// readDotEnv parses KEY=VALUE lines, accepting an "export " prefix and quoted values.
// A missing file is not an error.
func readDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	values := map[string]string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		k, v, ok := strings.Cut(line, "=")
		if k = strings.TrimSpace(k); !ok || k == "" {
			continue
		}
		values[k] = strings.Trim(strings.TrimSpace(v), `"'`)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return values, nil
}
