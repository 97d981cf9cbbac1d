package ports

import (
	"context"

	"github.com/alexisbeaulieu97/jumpgate/internal/config"
)

// ConfigLoader produces the effective gateway configuration. Parse failures
// surface as *errors.ParseError (with line metadata), invalid values as
// *errors.ValidationError and bad overrides as *errors.EnvError from pkg/errors.
type ConfigLoader interface {
	// Load applies defaults, the file at path (optional) and the environment.
	Load(ctx context.Context, path string) (*config.Config, error)

	// Validate checks a configuration file without building anything from it.
	Validate(ctx context.Context, path string) error
}
