package tenant

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type fileFormat struct {
	Tenants []Config `yaml:"tenants" validate:"required,min=1,dive"`
}

// LoadFile reads tenants from a YAML document. ${VAR} references are
// expanded from the environment before parsing.
func LoadFile(path string) ([]Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("tenant: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a tenants document.
func Parse(data []byte) ([]Config, error) {
	var doc fileFormat
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &doc); err != nil {
		return nil, fmt.Errorf("tenant: parse yaml: %w", err)
	}

	for i := range doc.Tenants {
		applyDefaults(&doc.Tenants[i])
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(doc); err != nil {
		return nil, fmt.Errorf("tenant: validate: %w", err)
	}
	if err := checkUnique(doc.Tenants); err != nil {
		return nil, err
	}
	return doc.Tenants, nil
}

// Load returns the tenants from path, or the built-in set when path is empty.
func Load(path string) ([]Config, error) {
	if strings.TrimSpace(path) == "" {
		return Builtin(), nil
	}
	return LoadFile(path)
}

func applyDefaults(cfg *Config) {
	cfg.ID = strings.TrimSpace(cfg.ID)
	cfg.PhoneNumberID = strings.TrimSpace(cfg.PhoneNumberID)
	if cfg.Handoff.Enabled && strings.TrimSpace(cfg.Handoff.Message) == "" {
		cfg.Handoff.Message = defaultHandoffMessage
	}
	if cfg.Booking.Enabled && len(cfg.Booking.Require) == 0 {
		cfg.Booking.Require = []string{FieldService, FieldDate, FieldTime, FieldName}
	}
	if cfg.Booking.Enabled && strings.TrimSpace(cfg.Booking.ConfirmText) == "" {
		cfg.Booking.ConfirmText = defaultConfirmText
	}
}

func checkUnique(cfgs []Config) error {
	ids := make(map[string]struct{}, len(cfgs))
	keys := make(map[string]string, len(cfgs))
	for _, cfg := range cfgs {
		if _, dup := ids[cfg.ID]; dup {
			return fmt.Errorf("tenant: duplicate tenant id %q", cfg.ID)
		}
		ids[cfg.ID] = struct{}{}

		key := cfg.RoutingKey()
		if key == "" {
			continue
		}
		if other, dup := keys[key]; dup {
			return fmt.Errorf("tenant: routing key %s bound to both %q and %q", key, other, cfg.ID)
		}
		keys[key] = cfg.ID
	}
	return nil
}
