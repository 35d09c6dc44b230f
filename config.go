package rsbus

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/ini.v1"
)

// Ordering is the event ordering a participant asks its transports for.
type Ordering int

const (
	Unordered Ordering = iota
	Ordered
)

// Reliability is the delivery guarantee a participant asks its
// transports for.
type Reliability int

const (
	Unreliable Reliability = iota
	Reliable
)

// QoS is the quality-of-service specification of a participant.
type QoS struct {
	Ordering    Ordering
	Reliability Reliability
}

// TransportConfig configures one transport of a participant.
type TransportConfig struct {
	Name    string
	Enabled bool
	// Options holds the transport-specific settings, e.g. "port".
	Options map[string]string
	// ConverterRules picks the payload type for a wire schema when the
	// global converter registry has several, keyed by wire schema.
	ConverterRules map[string]string
}

// ParticipantConfig is the complete configuration of one participant.
type ParticipantConfig struct {
	transports    map[string]*TransportConfig
	qos           QoS
	introspection bool
}

// NewParticipantConfig returns a configuration with defaults applied:
// socket transport enabled, introspection on, unordered reliable QoS.
func NewParticipantConfig() *ParticipantConfig {
	cfg := &ParticipantConfig{transports: make(map[string]*TransportConfig)}
	cfg.defaults()
	return cfg
}

func (c *ParticipantConfig) defaults() {
	c.introspection = true
	c.qos = QoS{Ordering: Unordered, Reliability: Reliable}
	if _, ok := c.transports["socket"]; !ok {
		c.transports["socket"] = newTransportConfig("socket")
		c.transports["socket"].Enabled = true
	}
}

func newTransportConfig(name string) *TransportConfig {
	return &TransportConfig{
		Name:           name,
		Options:        make(map[string]string),
		ConverterRules: make(map[string]string),
	}
}

// Transport returns the configuration block for the named transport,
// creating a disabled one on first access.
func (c *ParticipantConfig) Transport(name string) *TransportConfig {
	tc, ok := c.transports[name]
	if !ok {
		tc = newTransportConfig(name)
		c.transports[name] = tc
	}
	return tc
}

// EnabledTransports returns the enabled transport blocks, sorted by
// name.
func (c *ParticipantConfig) EnabledTransports() []*TransportConfig {
	var out []*TransportConfig
	for _, tc := range c.transports {
		if tc.Enabled {
			out = append(out, tc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// QoS returns the quality-of-service specification.
func (c *ParticipantConfig) QoS() QoS { return c.qos }

// SetQoS replaces the quality-of-service specification.
func (c *ParticipantConfig) SetQoS(qos QoS) { c.qos = qos }

// Introspection reports whether participants built from this
// configuration announce themselves.
func (c *ParticipantConfig) Introspection() bool { return c.introspection }

// SetIntrospection toggles introspection announcements.
func (c *ParticipantConfig) SetIntrospection(on bool) { c.introspection = on }

// Clone returns a deep copy, so per-participant tweaks do not leak into
// the shared default configuration.
func (c *ParticipantConfig) Clone() *ParticipantConfig {
	out := &ParticipantConfig{
		transports:    make(map[string]*TransportConfig, len(c.transports)),
		qos:           c.qos,
		introspection: c.introspection,
	}
	for name, tc := range c.transports {
		cp := newTransportConfig(name)
		cp.Enabled = tc.Enabled
		for k, v := range tc.Options {
			cp.Options[k] = v
		}
		for k, v := range tc.ConverterRules {
			cp.ConverterRules[k] = v
		}
		out.transports[name] = cp
	}
	return out
}

func (c *ParticipantConfig) validate() error {
	if len(c.EnabledTransports()) == 0 {
		return fmt.Errorf("config: no transport enabled")
	}
	return nil
}

func truthy(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// applyOption merges one dotted option into the configuration.
func (c *ParticipantConfig) applyOption(key, value string) error {
	parts := strings.Split(key, ".")
	switch {
	case len(parts) >= 3 && parts[0] == "transport":
		tc := c.Transport(parts[1])
		rest := strings.Join(parts[2:], ".")
		switch {
		case rest == "enabled":
			tc.Enabled = truthy(value)
		case strings.HasPrefix(rest, "converter.go."):
			tc.ConverterRules[strings.TrimPrefix(rest, "converter.go.")] = value
		default:
			tc.Options[rest] = value
		}
	case key == "introspection.enabled":
		c.introspection = truthy(value)
	case key == "qualityofservice.ordering":
		switch strings.ToUpper(value) {
		case "UNORDERED":
			c.qos.Ordering = Unordered
		case "ORDERED":
			c.qos.Ordering = Ordered
		default:
			return fmt.Errorf("config: bad ordering %q", value)
		}
	case key == "qualityofservice.reliability":
		switch strings.ToUpper(value) {
		case "UNRELIABLE":
			c.qos.Reliability = Unreliable
		case "RELIABLE":
			c.qos.Reliability = Reliable
		default:
			return fmt.Errorf("config: bad reliability %q", value)
		}
	default:
		// Unknown options are tolerated so configurations can be shared
		// with implementations in other languages.
	}
	return nil
}

// applyFile merges one rsb.conf file. A missing file is not an error.
func (c *ParticipantConfig) applyFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	f, err := ini.LoadSources(ini.LoadOptions{
		SpaceBeforeInlineComment: true,
	}, path)
	if err != nil {
		return fmt.Errorf("config: load %q: %w", path, err)
	}
	for _, section := range f.Sections() {
		prefix := ""
		if section.Name() != ini.DefaultSection {
			prefix = section.Name() + "."
		}
		for _, k := range section.Keys() {
			if err := c.applyOption(prefix+k.Name(), k.Value()); err != nil {
				return err
			}
		}
	}
	return nil
}

// applyEnvironment merges RSB_* environment variables,
// RSB_TRANSPORT_SOCKET_PORT becoming transport.socket.port. An
// empty-valued variable is an error, so typos fail loudly instead of
// silently configuring nothing.
func (c *ParticipantConfig) applyEnvironment() error {
	for _, kv := range os.Environ() {
		name, value, _ := strings.Cut(kv, "=")
		if !strings.HasPrefix(name, "RSB_") || name == "RSB_CONFIG_FILES" {
			continue
		}
		if value == "" {
			return fmt.Errorf("config: empty environment variable %s", name)
		}
		key := strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(name, "RSB_"), "_", "."))
		if err := c.applyOption(key, value); err != nil {
			return err
		}
	}
	return nil
}

// configFiles returns the cascade of rsb.conf locations, lowest
// priority first. RSB_CONFIG_FILES (colon-separated) overrides it.
func configFiles() []string {
	if v := os.Getenv("RSB_CONFIG_FILES"); v != "" {
		return strings.Split(v, ":")
	}
	files := []string{"/etc/rsb.conf"}
	if prefix := os.Getenv("RSB_PREFIX"); prefix != "" {
		files = append(files, filepath.Join(prefix, "etc", "rsb.conf"))
	}
	if home, err := os.UserHomeDir(); err == nil {
		files = append(files, filepath.Join(home, ".config", "rsb.conf"))
	}
	files = append(files, "rsb.conf")
	return files
}

// LoadConfig builds a participant configuration from the file cascade
// and the environment.
func LoadConfig() (*ParticipantConfig, error) {
	cfg := NewParticipantConfig()
	for _, path := range configFiles() {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnvironment(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var (
	defaultConfigMu sync.RWMutex
	defaultConfig   *ParticipantConfig
)

// DefaultConfig returns the process-wide configuration used by the
// Create functions when no explicit one is given. It is loaded on first
// use; a load error falls back to the built-in defaults.
func DefaultConfig() *ParticipantConfig {
	defaultConfigMu.RLock()
	cfg := defaultConfig
	defaultConfigMu.RUnlock()
	if cfg != nil {
		return cfg
	}

	defaultConfigMu.Lock()
	defer defaultConfigMu.Unlock()
	if defaultConfig == nil {
		cfg, err := LoadConfig()
		if err != nil {
			logger().Warn("falling back to built-in configuration", "error", err)
			cfg = NewParticipantConfig()
		}
		defaultConfig = cfg
	}
	return defaultConfig
}

// SetDefaultConfig replaces the process-wide configuration. Already
// created participants are unaffected.
func SetDefaultConfig(cfg *ParticipantConfig) {
	defaultConfigMu.Lock()
	defer defaultConfigMu.Unlock()
	defaultConfig = cfg
}
