package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/marmos91/shardgate/pkg/registry"
)

// RequiredBackends is the number of storage nodes a front-end routes to.
const RequiredBackends = 3

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the front-end configuration using struct tags and
// custom rules.
//
// Log level normalization is handled in ApplyDefaults; validation accepts
// both upper and lower case levels.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

// ValidateNode validates a storage node configuration.
func ValidateNode(cfg *NodeConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	if registry.NormalizeExt(cfg.Node.Extension) == "" {
		return fmt.Errorf("node.extension: must name an extension")
	}
	if cfg.Node.Port < 1 {
		return fmt.Errorf("node.port: must be 1-65535, got %d", cfg.Node.Port)
	}
	return nil
}

// validateCustomRules performs validation that cannot be expressed in tags.
func validateCustomRules(cfg *Config) error {
	if len(cfg.Backends) != RequiredBackends {
		return fmt.Errorf("backends: exactly %d backends must be configured, got %d", RequiredBackends, len(cfg.Backends))
	}

	local := registry.NormalizeExt(cfg.Local.Extension)
	if local == "" {
		return fmt.Errorf("local.extension: must name an extension")
	}

	seen := map[string]bool{local: true}
	for i, b := range cfg.Backends {
		ext := registry.NormalizeExt(b.Extension)
		switch {
		case ext == "":
			return fmt.Errorf("backends[%d]: extension must name an extension", i)
		case ext == local:
			return fmt.Errorf("backends[%d]: extension %s is the local class", i, ext)
		case seen[ext]:
			return fmt.Errorf("backends[%d]: duplicate extension %s", i, ext)
		}
		seen[ext] = true
	}

	if cfg.Gateway.Port < 1 {
		return fmt.Errorf("gateway.port: must be 1-65535, got %d", cfg.Gateway.Port)
	}
	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
