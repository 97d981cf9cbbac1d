package config

import (
	"path/filepath"
	"strconv"
	"strings"

	jgerrors "github.com/alexisbeaulieu97/jumpgate/pkg/errors"
)

// LookupFunc resolves an environment variable; os.LookupEnv in production.
type LookupFunc func(name string) (string, bool)

type envBinding struct {
	name  string
	apply func(cfg *Config, value string) error
}

func stringVar(target func(*Config) *string) func(*Config, string) error {
	return func(cfg *Config, value string) error {
		*target(cfg) = value
		return nil
	}
}

var envBindings = []envBinding{
	{"WORKING_DIR", stringVar(func(c *Config) *string { return &c.Backend.WorkingDir })},
	{"BASTION_IP", stringVar(func(c *Config) *string { return &c.Bastion.Address })},
	{"BASTION_PORT", func(c *Config, value string) error {
		port, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		c.Bastion.Port = port
		return nil
	}},
	{"BASTION_USER", stringVar(func(c *Config) *string { return &c.Bastion.User })},
	{"BASTION_PRIVATE_KEY", stringVar(func(c *Config) *string { return &c.Bastion.SourcePrivateKey })},
	// Legacy single-file path; leased keys get unique names in its directory.
	{"BASTION_TEMP_PRIVATE_KEY", func(c *Config, value string) error {
		c.Bastion.ScratchDir = filepath.Dir(value)
		return nil
	}},
	{"JUMP_PRIVATE_KEY", stringVar(func(c *Config) *string { return &c.Bastion.JumpPrivateKey })},
	{"BASTION_SCRATCH_DIR", stringVar(func(c *Config) *string { return &c.Bastion.ScratchDir })},
	{"BASTION_KNOWN_HOSTS", stringVar(func(c *Config) *string { return &c.Bastion.KnownHosts })},
	{"REDIS_ADDR", stringVar(func(c *Config) *string { return &c.Redis.Addr })},
	{"REDIS_PASSWORD", stringVar(func(c *Config) *string { return &c.Redis.Password })},
	{"JUMPGATE_LISTEN", stringVar(func(c *Config) *string { return &c.Server.Listen })},
	{"JUMPGATE_LOG_LEVEL", func(c *Config, value string) error {
		c.Log.Level = strings.ToLower(value)
		return nil
	}},
}

// ApplyEnv overlays environment variables onto cfg. Empty values are ignored.
// Later bindings win, so BASTION_SCRATCH_DIR overrides the legacy
// BASTION_TEMP_PRIVATE_KEY directory.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	if lookup == nil {
		return nil
	}
	for _, binding := range envBindings {
		value, ok := lookup(binding.name)
		value = strings.TrimSpace(value)
		if !ok || value == "" {
			continue
		}
		if err := binding.apply(cfg, value); err != nil {
			return jgerrors.NewEnvError(binding.name, value, err)
		}
	}
	return nil
}
