package loader

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// EnvLoader loads configuration from environment variables.
//
// A variable PREFIX_SECTION_KEY maps to section.key, e.g.
// STYLESYNC_CLIENT_BASE_URL to client.base_url. Only keys present in the
// schema are read, and each value is parsed as the type of its schema
// value: string, bool, int64, float64 or a comma-separated list.
type EnvLoader struct {
	prefix  string            // Environment variable prefix (e.g., "STYLESYNC_")
	schema  map[string]any    // Nested map of known keys to example values
	mapping map[string]string // Env var -> config path aliases
	environ func() []string
}

// NewEnvLoader creates a loader for prefix over the keys of schema.
// The prefix should include the trailing underscore (e.g., "STYLESYNC_").
func NewEnvLoader(prefix string, schema map[string]any) *EnvLoader {
	return &EnvLoader{
		prefix:  prefix,
		schema:  schema,
		mapping: make(map[string]string),
		environ: os.Environ,
	}
}

// AddMapping adds an alias from envVar to configPath.
func (l *EnvLoader) AddMapping(envVar, configPath string) {
	l.mapping[envVar] = configPath
}

// Load reads environment variables and returns a configuration map.
// Prefixed variables that match no schema key are ignored. Empty values
// are treated as set.
func (l *EnvLoader) Load() (map[string]any, error) {
	config := make(map[string]any)
	vars := make(map[string]string)
	for _, env := range l.environ() {
		name, value, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(name, l.prefix) {
			continue
		}
		vars[name] = value
	}

	// Sorted so aliases resolve after the variables they shadow.
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)

	var aliased []string
	for _, name := range names {
		if _, ok := l.mapping[name]; ok {
			aliased = append(aliased, name)
			continue
		}
		path, ok := l.envToPath(name)
		if !ok {
			continue
		}
		if err := l.set(config, name, path, vars[name]); err != nil {
			return nil, err
		}
	}
	for _, name := range aliased {
		if err := l.set(config, name, l.mapping[name], vars[name]); err != nil {
			return nil, err
		}
	}

	return config, nil
}

func (l *EnvLoader) set(config map[string]any, name, path, raw string) error {
	example, ok := lookup(l.schema, path)
	if !ok {
		return nil
	}
	value, err := parseAs(example, raw)
	if err != nil {
		return fmt.Errorf("environment variable %s: %w", name, err)
	}
	setByPath(config, path, value)
	return nil
}

// envToPath converts STYLESYNC_CLIENT_BASE_URL to client.base_url by
// matching the longest schema section.
func (l *EnvLoader) envToPath(env string) (string, bool) {
	name := strings.ToLower(strings.TrimPrefix(env, l.prefix))

	best := ""
	for section, v := range l.schema {
		if _, ok := v.(map[string]any); !ok {
			continue
		}
		if strings.HasPrefix(name, section+"_") && len(section) > len(best) {
			best = section
		}
	}
	if best == "" {
		return "", false
	}
	return best + "." + strings.TrimPrefix(name, best+"_"), true
}

// parseAs parses s as the type of example.
func parseAs(example any, s string) (any, error) {
	switch example.(type) {
	case bool:
		switch strings.ToLower(s) {
		case "true", "yes", "on", "1":
			return true, nil
		case "false", "no", "off", "0", "":
			return false, nil
		}
		return nil, fmt.Errorf("invalid boolean %q", s)
	case int64:
		return strconv.ParseInt(s, 10, 64)
	case float64:
		return strconv.ParseFloat(s, 64)
	case []any:
		list := []any{}
		for _, item := range strings.Split(s, ",") {
			if item = strings.TrimSpace(item); item != "" {
				list = append(list, item)
			}
		}
		return list, nil
	default:
		return s, nil
	}
}

// lookup retrieves a value from a nested map using a dot-separated path.
func lookup(data map[string]any, path string) (any, bool) {
	current := any(data)
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		if current, ok = m[part]; !ok {
			return nil, false
		}
	}
	return current, true
}

// setByPath sets a value in a nested map using a dot-separated path.
func setByPath(data map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	current := data

	// Navigate/create intermediate maps
	for i := 0; i < len(parts)-1; i++ {
		part := parts[i]
		if next, ok := current[part].(map[string]any); ok {
			current = next
		} else {
			next := make(map[string]any)
			current[part] = next
			current = next
		}
	}

	current[parts[len(parts)-1]] = value
}
