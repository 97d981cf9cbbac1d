package config

import (
	"fmt"
	"strings"

	jgerrors "github.com/alexisbeaulieu97/jumpgate/pkg/errors"
)

// ValidateConfig performs schema and cross-field validation on the configuration.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return jgerrors.NewValidationError("config", "configuration is nil", nil)
	}

	if err := validatorInstance().Struct(cfg); err != nil {
		return convertValidationError(err)
	}

	if err := validateBastion(cfg.Bastion); err != nil {
		return err
	}

	if cfg.Limits.Capacity > 0 && cfg.Limits.RefillRate == 0 {
		return jgerrors.NewValidationError("limits.refill_rate", "refill_rate must be positive when capacity is set", nil)
	}

	return nil
}

// validateBastion rejects a half-configured bastion. Leaving every field
// empty disables key leasing.
func validateBastion(b BastionConfig) error {
	fields := map[string]string{
		"address":            b.Address,
		"user":               b.User,
		"jump_private_key":   b.JumpPrivateKey,
		"source_private_key": b.SourcePrivateKey,
	}

	var missing []string
	set := 0
	for _, name := range []string{"address", "user", "jump_private_key", "source_private_key"} {
		if fields[name] == "" {
			missing = append(missing, name)
		} else {
			set++
		}
	}
	if set == 0 || len(missing) == 0 {
		return nil
	}
	return jgerrors.NewValidationError("bastion."+missing[0], fmt.Sprintf("bastion is partially configured; missing %s", strings.Join(missing, ", ")), nil)
}
