package config

import (
	"time"

	"github.com/cloudcycle/cloudcycle/pkg/telemetry"
)

// Config is the complete input of a lifecycle run.
type Config struct {
	// Provider selects the adapter ("aws" or "memory").
	Provider string `yaml:"provider" validate:"required,oneof=aws memory"`

	// Region is the provider region.
	Region string `yaml:"region" validate:"required"`

	// Credentials are optional static provider credentials.
	// When empty the provider's default credential chain is used.
	Credentials Credentials `yaml:"credentials"`

	// Kinds lists the resource kinds to provision. Defaults to all three.
	Kinds []string `yaml:"kinds" validate:"min=1,unique,dive,oneof=compute storage queue"`

	Compute ComputeConfig `yaml:"compute"`
	Storage StorageConfig `yaml:"storage"`
	Queue   QueueConfig   `yaml:"queue"`
	Upload  UploadConfig  `yaml:"upload"`
	Message MessageConfig `yaml:"message"`
	Run     RunConfig     `yaml:"run"`

	// Telemetry configures logging, tracing, metrics and events.
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// Credentials are static access keys for the provider.
type Credentials struct {
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" validate:"required_with=AccessKeyID"`
	SessionToken    string `yaml:"session_token"`

	// Endpoint overrides the provider endpoint, e.g. for a local emulator.
	Endpoint string `yaml:"endpoint" validate:"omitempty,url"`
}

// ComputeConfig describes the instance to launch.
type ComputeConfig struct {
	ImageID      string            `yaml:"image_id"`
	InstanceType string            `yaml:"instance_type"`
	KeyName      string            `yaml:"key_name"`
	Tags         map[string]string `yaml:"tags"`
}

// StorageConfig describes the bucket to create.
type StorageConfig struct {
	// Name is an explicit bucket name. Empty means generate one from Prefix.
	Name string `yaml:"name" validate:"omitempty,min=3,max=63"`

	// Prefix is the leading part of generated bucket names.
	Prefix string `yaml:"prefix"`
}

// QueueConfig describes the queue to create.
type QueueConfig struct {
	Name              string `yaml:"name"`
	DelaySeconds      int    `yaml:"delay_seconds" validate:"gte=0,lte=900"`
	VisibilityTimeout int    `yaml:"visibility_timeout" validate:"gte=0,lte=43200"`
}

// UploadConfig names the local file uploaded to the bucket.
type UploadConfig struct {
	FilePath  string `yaml:"file_path"`
	ObjectKey string `yaml:"object_key"`
}

// MessageConfig is the test message sent through the queue.
type MessageConfig struct {
	Body  string `yaml:"body" validate:"required"`
	Title string `yaml:"title"`
}

// RunConfig tunes the orchestrator and the surrounding tooling.
type RunConfig struct {
	Parallelism         int           `yaml:"parallelism" validate:"gte=1,lte=16"`
	ReadyAttempts       int           `yaml:"ready_attempts" validate:"gte=1"`
	ReadyInterval       time.Duration `yaml:"ready_interval" validate:"gte=0"`
	TerminationAttempts int           `yaml:"termination_attempts" validate:"gte=1"`
	TerminationInterval time.Duration `yaml:"termination_interval" validate:"gte=0"`
	ReceiveWait         time.Duration `yaml:"receive_wait" validate:"gte=0,lte=20s"`
	TeardownTimeout     time.Duration `yaml:"teardown_timeout" validate:"gte=0"`

	// LedgerPath is the SQLite run ledger. Empty disables persistence.
	LedgerPath string `yaml:"ledger_path"`

	// PolicyDir holds extra .rego files evaluated before provisioning.
	PolicyDir string `yaml:"policy_dir"`

	// DisabledPolicies names loaded policies to skip, such as instance-type.
	DisabledPolicies []string `yaml:"disabled_policies"`
}

// Has reports whether kind is requested.
func (c *Config) Has(kind string) bool {
	for _, k := range c.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() Config {
	out := *c
	if out.Credentials.SecretAccessKey != "" {
		out.Credentials.SecretAccessKey = "********"
	}
	if out.Credentials.SessionToken != "" {
		out.Credentials.SessionToken = "********"
	}
	return out
}
