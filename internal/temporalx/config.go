package temporalx

import (
	"strings"
	"time"
)

type Config struct {
	Address   string `yaml:"address"`
	Namespace string `yaml:"namespace"`
	TaskQueue string `yaml:"task_queue"`

	ClientCertPath string `yaml:"client_cert_path"`
	ClientKeyPath  string `yaml:"client_key_path"`
	ClientCAPath   string `yaml:"client_ca_path"`

	AutoRegisterNamespace bool          `yaml:"auto_register_namespace"`
	RetentionDays         int           `yaml:"retention_days"`
	DialTimeout           time.Duration `yaml:"dial_timeout"`
	DialMaxWait           time.Duration `yaml:"dial_max_wait"`
	WorkerConcurrency     int           `yaml:"worker_concurrency"`
}

func DefaultConfig() Config {
	return Config{
		Namespace:         "progression",
		TaskQueue:         "progression-remediation",
		RetentionDays:     7,
		DialTimeout:       5 * time.Second,
		DialMaxWait:       60 * time.Second,
		WorkerConcurrency: 4,
	}
}

// Enabled reports whether a Temporal address is configured.
func (c Config) Enabled() bool { return strings.TrimSpace(c.Address) != "" }

// WithDefaults fills unset fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	c.Address = strings.TrimSpace(c.Address)
	c.Namespace = stringsOr(strings.TrimSpace(c.Namespace), def.Namespace)
	c.TaskQueue = stringsOr(strings.TrimSpace(c.TaskQueue), def.TaskQueue)
	if c.RetentionDays < 1 {
		c.RetentionDays = def.RetentionDays
	}
	if c.RetentionDays > 365 {
		c.RetentionDays = 365
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = def.DialTimeout
	}
	if c.DialMaxWait < 0 {
		c.DialMaxWait = 0
	}
	if c.WorkerConcurrency < 1 {
		c.WorkerConcurrency = def.WorkerConcurrency
	}
	return c
}

func (c Config) tlsEnabled() bool {
	return c.ClientCertPath != "" || c.ClientKeyPath != "" || c.ClientCAPath != ""
}

func stringsOr(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
