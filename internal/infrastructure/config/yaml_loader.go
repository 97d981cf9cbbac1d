package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	cfgpkg "github.com/alexisbeaulieu97/jumpgate/internal/config"
	"github.com/alexisbeaulieu97/jumpgate/internal/infrastructure/logging"
	"github.com/alexisbeaulieu97/jumpgate/internal/ports"
	apperrors "github.com/alexisbeaulieu97/jumpgate/pkg/errors"
)

// ErrUnsupportedExtension is returned by Validate for non-YAML paths.
var ErrUnsupportedExtension = errors.New("unsupported configuration file extension")

// YAMLLoader implements the ConfigLoader port by reading YAML files from disk
// and overlaying the process environment.
type YAMLLoader struct {
	logger ports.Logger
	lookup cfgpkg.LookupFunc
}

// NewYAMLLoader builds a loader that reads overrides through lookup; nil
// selects os.LookupEnv.
func NewYAMLLoader(logger ports.Logger, lookup cfgpkg.LookupFunc) *YAMLLoader {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &YAMLLoader{logger: logger.With("component", "config"), lookup: lookup}
}

func (l *YAMLLoader) Load(ctx context.Context, path string) (*cfgpkg.Config, error) {
	if err := contextCheck(ctx); err != nil {
		return nil, err
	}

	l.logDebug(ctx, "loading gateway configuration", map[string]interface{}{"path": path})

	cfg, err := cfgpkg.Load(path, l.lookup)
	if err != nil {
		l.logError(ctx, "failed to load configuration", err, errorFields(err, path))
		return nil, err
	}

	l.logInfo(ctx, "gateway configuration loaded", map[string]interface{}{
		"path":            path,
		"bastion_enabled": cfg.Bastion.Enabled(),
		"redis":           cfg.Redis.Addr != "",
		"history":         cfg.History.Enabled,
		"policy":          cfg.Policy.Expression != "",
	})
	return cfg, nil
}

func (l *YAMLLoader) Validate(ctx context.Context, path string) error {
	if err := contextCheck(ctx); err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		l.logError(ctx, "configuration path stat failed", err, map[string]interface{}{"path": path})
		return apperrors.NewParseError(path, 0, err)
	}
	if info.IsDir() {
		return apperrors.NewValidationError("config", fmt.Sprintf("%s is a directory", path), nil)
	}

	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		l.logDebug(ctx, "validating gateway configuration", map[string]interface{}{"path": path})
		_, err = cfgpkg.ParseConfig(path)
		return err
	default:
		return apperrors.NewValidationError("config", fmt.Sprintf("unsupported extension %q", ext), ErrUnsupportedExtension)
	}
}

var _ ports.ConfigLoader = (*YAMLLoader)(nil)

func errorFields(err error, path string) map[string]interface{} {
	fields := map[string]interface{}{"path": path}
	var parseErr *apperrors.ParseError
	if errors.As(err, &parseErr) && parseErr.Line > 0 {
		fields["line"] = parseErr.Line
	}
	var valErr *apperrors.ValidationError
	if errors.As(err, &valErr) && valErr.Field != "" {
		fields["field"] = valErr.Field
	}
	var envErr *apperrors.EnvError
	if errors.As(err, &envErr) {
		fields["env"] = envErr.Name
	}
	return fields
}

func contextCheck(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("configuration load cancelled: %w", err)
	}
	return nil
}

func (l *YAMLLoader) logDebug(ctx context.Context, msg string, fields map[string]interface{}) {
	l.logger.Debug(ctx, msg, flattenFields(fields)...)
}

func (l *YAMLLoader) logInfo(ctx context.Context, msg string, fields map[string]interface{}) {
	l.logger.Info(ctx, msg, flattenFields(fields)...)
}

func (l *YAMLLoader) logError(ctx context.Context, msg string, err error, fields map[string]interface{}) {
	payload := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		payload[k] = v
	}
	payload["error"] = err
	l.logger.Error(ctx, msg, flattenFields(payload)...)
}

func flattenFields(fields map[string]interface{}) []interface{} {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]interface{}, 0, len(fields)*2)
	for _, k := range keys {
		args = append(args, k, fields[k])
	}
	return args
}
