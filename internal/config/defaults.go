package config

import (
	"os"
	"path/filepath"
	"time"
)

// Default returns a configuration populated with stock values. Bastion
// access stays disabled until an address, user and both keys are set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:            "127.0.0.1:8080",
			RequestTimeout:    5 * time.Minute,
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   30 * time.Second,
			MaxBodyBytes:      1 << 20,
		},
		Log: LogConfig{Level: "info"},
		Backend: BackendConfig{
			Binary:     "ansible-runner",
			WorkingDir: ".",
		},
		Bastion: BastionConfig{
			Port:        22,
			DialTimeout: 10 * time.Second,
		},
		Limits: LimitsConfig{
			BucketKey:      "bucket:remote_call",
			Capacity:       5,
			RefillRate:     1,
			ConcurrencyKey: "semaphore:remote_call",
			MaxConcurrent:  5,
			WaitTimeout:    30 * time.Second,
			RetryInterval:  200 * time.Millisecond,
			BucketTTL:      60 * time.Second,
			CounterTTL:     60 * time.Second,
		},
		History: HistoryConfig{
			Path:          filepath.Join(os.TempDir(), "jumpgate-history.db"),
			BatchSize:     20,
			FlushInterval: 2 * time.Second,
			MaxRows:       10000,
		},
	}
}

// ScratchDir is where per-request inventories are written.
func (c *Config) ScratchDir() string {
	if c.Backend.ScratchDir != "" {
		return c.Backend.ScratchDir
	}
	return os.TempDir()
}

// KeyScratchDir is where leased keys are written.
func (c *Config) KeyScratchDir() string {
	if c.Bastion.ScratchDir != "" {
		return c.Bastion.ScratchDir
	}
	return c.ScratchDir()
}
