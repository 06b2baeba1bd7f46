package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// Config models orderflow.yml.
type Config struct {
	OrderNumbers struct {
		Prefixes    map[string]string `yaml:"prefixes" json:"prefixes"`
		Width       int               `yaml:"width" json:"width"`
		MaxAttempts int               `yaml:"max_attempts" json:"max_attempts"`
	} `yaml:"order_numbers" json:"order_numbers"`
	Lifecycle struct {
		// AllowAnyTransition disables the transition table for status updates.
		AllowAnyTransition bool `yaml:"allow_any_transition" json:"allow_any_transition"`
	} `yaml:"lifecycle" json:"lifecycle"`
	Webhooks []WebhookConfig `yaml:"webhooks,omitempty" json:"webhooks,omitempty"`
}

// WebhookConfig describes one HTTP endpoint that receives committed events.
type WebhookConfig struct {
	URL            string   `yaml:"url" json:"url"`
	Secret         string   `yaml:"secret,omitempty" json:"secret,omitempty"`
	Events         []string `yaml:"events,omitempty" json:"events,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty" json:"enabled,omitempty"`
}

// Active reports whether the hook should receive deliveries.
func (w WebhookConfig) Active() bool {
	return (w.Enabled == nil || *w.Enabled) && strings.TrimSpace(w.URL) != ""
}

var prefixPattern = regexp.MustCompile(`^[A-Z][A-Z0-9]{0,7}$`)

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with orderflow config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate reports every problem in the config at once.
func (c *Config) Validate() error {
	var result *multierror.Error
	if len(c.OrderNumbers.Prefixes) == 0 {
		result = multierror.Append(result, fmt.Errorf("order_numbers.prefixes is required"))
	}
	if _, ok := c.OrderNumbers.Prefixes[KindExecutionOrder]; len(c.OrderNumbers.Prefixes) > 0 && !ok {
		result = multierror.Append(result, fmt.Errorf("order_numbers.prefixes.%s is required", KindExecutionOrder))
	}
	kinds := make([]string, 0, len(c.OrderNumbers.Prefixes))
	for kind := range c.OrderNumbers.Prefixes {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	seen := map[string]string{}
	for _, kind := range kinds {
		prefix := c.OrderNumbers.Prefixes[kind]
		if kind == "" {
			result = multierror.Append(result, fmt.Errorf("order_numbers.prefixes has empty kind"))
			continue
		}
		if !prefixPattern.MatchString(prefix) {
			result = multierror.Append(result, fmt.Errorf("prefix %q for kind %s must be 1-8 uppercase letters or digits", prefix, kind))
		}
		if other, dup := seen[prefix]; dup {
			result = multierror.Append(result, fmt.Errorf("prefix %s used by both %s and %s", prefix, other, kind))
		}
		seen[prefix] = kind
	}
	if c.OrderNumbers.Width < 3 || c.OrderNumbers.Width > 10 {
		result = multierror.Append(result, fmt.Errorf("order_numbers.width must be between 3 and 10"))
	}
	if c.OrderNumbers.MaxAttempts < 1 {
		result = multierror.Append(result, fmt.Errorf("order_numbers.max_attempts must be at least 1"))
	}
	for i, hook := range c.Webhooks {
		u, err := url.Parse(hook.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			result = multierror.Append(result, fmt.Errorf("webhooks[%d].url must be an http(s) URL", i))
		}
		if hook.TimeoutSeconds < 0 {
			result = multierror.Append(result, fmt.Errorf("webhooks[%d].timeout_seconds must not be negative", i))
		}
	}
	return result.ErrorOrNil()
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "orderflow.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Missing fields
// keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// KindExecutionOrder is the ID-generator kind used for execution order numbers.
const KindExecutionOrder = "execution_order"

const defaultTemplate = `order_numbers:
  prefixes:
    execution_order: EO
    quotation: QT
    contract: CT
    invoice: INV
    payment: PAY
  width: 4
  max_attempts: 5

lifecycle:
  allow_any_transition: false

# webhooks:
#   - url: https://crm.example.com/hooks/orderflow
#     secret: change-me
#     events: [order.released, registration.completed]
#     timeout_seconds: 5
`
