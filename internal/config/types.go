package config

import "time"

// Config is the full jumpgate configuration document.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Backend BackendConfig `yaml:"backend"`
	Bastion BastionConfig `yaml:"bastion"`
	Redis   RedisConfig   `yaml:"redis"`
	Limits  LimitsConfig  `yaml:"limits"`
	History HistoryConfig `yaml:"history"`
	Policy  PolicyConfig  `yaml:"policy"`
}

// ServerConfig controls the HTTP gateway.
type ServerConfig struct {
	Listen            string        `yaml:"listen" validate:"required,hostport"`
	RequestTimeout    time.Duration `yaml:"request_timeout" validate:"min=0"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" validate:"min=0"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" validate:"min=0"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes" validate:"min=1"`
}

// LogConfig selects verbosity and output format.
type LogConfig struct {
	Level string `yaml:"level" validate:"required,oneof=debug info warn error"`
	// Human forces console output; when nil it follows whether the log output is a terminal.
	Human *bool `yaml:"human,omitempty"`
}

// BackendConfig describes the ansible-runner invocation.
type BackendConfig struct {
	Binary          string        `yaml:"binary" validate:"required"`
	WorkingDir      string        `yaml:"working_dir" validate:"required"`
	ScratchDir      string        `yaml:"scratch_dir"`
	Timeout         time.Duration `yaml:"timeout" validate:"min=0"`
	RotateArtifacts int           `yaml:"rotate_artifacts" validate:"min=0"`
}

// BastionConfig describes the jump host and the key it holds.
type BastionConfig struct {
	Address          string        `yaml:"address" validate:"omitempty,hostname_rfc1123|ip"`
	Port             int           `yaml:"port" validate:"min=1,max=65535"`
	User             string        `yaml:"user"`
	JumpPrivateKey   string        `yaml:"jump_private_key"`
	SourcePrivateKey string        `yaml:"source_private_key"`
	ScratchDir       string        `yaml:"scratch_dir"`
	KnownHosts       string        `yaml:"known_hosts"`
	DialTimeout      time.Duration `yaml:"dial_timeout" validate:"min=0"`
}

// Enabled reports whether enough is configured to lease keys through the bastion.
func (b BastionConfig) Enabled() bool {
	return b.Address != "" && b.User != "" && b.JumpPrivateKey != "" && b.SourcePrivateKey != ""
}

// RedisConfig locates the shared counter store. An empty Addr selects the
// in-process store.
type RedisConfig struct {
	Addr     string `yaml:"addr" validate:"omitempty,hostport"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"min=0"`
}

// LimitsConfig tunes the admission controller.
type LimitsConfig struct {
	BucketKey      string        `yaml:"bucket_key" validate:"required"`
	Capacity       float64       `yaml:"capacity" validate:"min=0"`
	RefillRate     float64       `yaml:"refill_rate" validate:"min=0"`
	ConcurrencyKey string        `yaml:"concurrency_key" validate:"required"`
	MaxConcurrent  int64         `yaml:"max_concurrent" validate:"min=0"`
	WaitTimeout    time.Duration `yaml:"wait_timeout" validate:"min=0"`
	RetryInterval  time.Duration `yaml:"retry_interval" validate:"gt=0"`
	BucketTTL      time.Duration `yaml:"bucket_ttl" validate:"gt=0"`
	CounterTTL     time.Duration `yaml:"counter_ttl" validate:"gt=0"`
}

// HistoryConfig controls the execution audit trail.
type HistoryConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Path          string        `yaml:"path" validate:"required_if=Enabled true"`
	BatchSize     int           `yaml:"batch_size" validate:"min=1,max=1000"`
	FlushInterval time.Duration `yaml:"flush_interval" validate:"gt=0"`
	MaxRows       int           `yaml:"max_rows" validate:"min=0"`
}

// PolicyConfig holds the optional admission expression.
type PolicyConfig struct {
	Expression string `yaml:"expression"`
}
