package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/cloudcycle/cloudcycle/pkg/engine"
	"github.com/cloudcycle/cloudcycle/pkg/telemetry"
)

// EnvPrefix prefixes environment variables that override file settings.
const EnvPrefix = "CLOUDCYCLE_"

// Default values.
const (
	DefaultProvider          = "aws"
	DefaultInstanceType      = "t2.micro"
	DefaultKeyName           = "my_key"
	DefaultInstanceName      = "App Tier Worker"
	DefaultBucketPrefix      = "cloudcycle-bucket"
	DefaultVisibilityTimeout = 30
	DefaultMessageBody       = "This is a test message"
	DefaultMessageTitle      = "test message"
)

// AllKinds lists every resource kind in provisioning order.
var AllKinds = []string{"compute", "storage", "queue"}

// Default returns a configuration with every optional setting filled in.
func Default() *Config {
	return &Config{
		Provider: DefaultProvider,
		Kinds:    append([]string(nil), AllKinds...),
		Compute: ComputeConfig{
			InstanceType: DefaultInstanceType,
			KeyName:      DefaultKeyName,
		},
		Storage: StorageConfig{Prefix: DefaultBucketPrefix},
		Queue:   QueueConfig{VisibilityTimeout: DefaultVisibilityTimeout},
		Message: MessageConfig{Body: DefaultMessageBody, Title: DefaultMessageTitle},
		Run: RunConfig{
			Parallelism:         3,
			ReadyAttempts:       12,
			ReadyInterval:       5 * time.Second,
			TerminationAttempts: 12,
			TerminationInterval: 5 * time.Second,
			ReceiveWait:         engine.DefaultReceiveWait,
			TeardownTimeout:     10 * time.Minute,
		},
		Telemetry: *telemetry.DefaultConfig(),
	}
}

// LookupFunc reads an environment variable.
type LookupFunc func(key string) (string, bool)

// Loader reads, overlays and validates configuration.
type Loader struct {
	lookup    LookupFunc
	validator *validator.Validate
}

// NewLoader creates a loader that consults the process environment.
func NewLoader() *Loader {
	return NewLoaderWithEnv(os.LookupEnv)
}

// NewLoaderWithEnv creates a loader with a custom environment lookup.
func NewLoaderWithEnv(lookup LookupFunc) *Loader {
	if lookup == nil {
		lookup = func(string) (string, bool) { return "", false }
	}
	return &Loader{
		lookup:    lookup,
		validator: validator.New(),
	}
}

// Load reads path with the process environment as overrides.
func Load(path string) (*Config, error) {
	return NewLoader().Load(path)
}

// Load reads the file at path, applies environment overrides and validates the result.
// Files ending in .yaml or .yml are YAML; anything else is parsed as a dotenv file.
// An empty path uses defaults and the environment only.
func (l *Loader) Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &ConfigError{Path: path, Err: err}
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			err = decodeYAML(data, cfg)
		default:
			err = decodeDotenv(data, cfg)
		}
		if err != nil {
			var ce *ConfigError
			if errors.As(err, &ce) {
				ce.Path = path
				return nil, ce
			}
			return nil, &ConfigError{Path: path, Err: err}
		}
	}

	if err := l.applyEnv(cfg); err != nil {
		return nil, withPath(err, path)
	}
	cfg.fillDefaults()

	if err := l.Validate(cfg); err != nil {
		return nil, withPath(err, path)
	}
	return cfg, nil
}

// Validate checks cfg and returns a *ConfigError naming the first bad field.
func (l *Loader) Validate(cfg *Config) error {
	if err := l.validator.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &ConfigError{
				Field: strings.TrimPrefix(fe.Namespace(), "Config."),
				Err:   fmt.Errorf("failed %q validation (value %v)", fe.Tag(), redactValue(fe)),
			}
		}
		return &ConfigError{Err: err}
	}

	if cfg.Has("compute") && cfg.Compute.ImageID == "" {
		return &ConfigError{Field: "Compute.ImageID", Err: errors.New("required when compute is provisioned (AMI_ID)")}
	}
	if cfg.Has("queue") && cfg.Queue.Name == "" {
		return &ConfigError{Field: "Queue.Name", Err: errors.New("required when a queue is provisioned (queue_name)")}
	}
	if cfg.Has("storage") {
		if cfg.Upload.FilePath == "" {
			return &ConfigError{Field: "Upload.FilePath", Err: errors.New("required when storage is provisioned (file_path)")}
		}
		if cfg.Upload.ObjectKey == "" {
			return &ConfigError{Field: "Upload.ObjectKey", Err: errors.New("required when storage is provisioned (object_name)")}
		}
	}

	if err := cfg.Telemetry.Validate(); err != nil {
		return &ConfigError{Field: "Telemetry", Err: err}
	}
	return nil
}

func redactValue(fe validator.FieldError) any {
	if strings.Contains(fe.Namespace(), "Credentials") {
		return "<redacted>"
	}
	return fe.Value()
}

func withPath(err error, path string) error {
	var ce *ConfigError
	if errors.As(err, &ce) && ce.Path == "" {
		ce.Path = path
	}
	return err
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

func decodeDotenv(data []byte, cfg *Config) error {
	values, err := godotenv.UnmarshalBytes(data)
	if err != nil {
		return err
	}
	upper := make(map[string]string, len(values))
	for k, v := range values {
		upper[strings.ToUpper(k)] = v
	}
	for _, s := range settings {
		v, ok := upper[s.key]
		if !ok {
			continue
		}
		if err := s.set(cfg, v); err != nil {
			return &ConfigError{Field: s.key, Err: err}
		}
	}
	return nil
}

func (l *Loader) applyEnv(cfg *Config) error {
	for _, s := range settings {
		v, ok := l.lookup(EnvPrefix + s.key)
		if !ok {
			continue
		}
		if err := s.set(cfg, v); err != nil {
			return &ConfigError{Field: EnvPrefix + s.key, Err: err}
		}
	}
	return nil
}

func (c *Config) fillDefaults() {
	if c.Provider == "" {
		c.Provider = DefaultProvider
	}
	if len(c.Kinds) == 0 {
		c.Kinds = append([]string(nil), AllKinds...)
	}
	if c.Compute.Tags == nil {
		c.Compute.Tags = map[string]string{"Name": DefaultInstanceName}
	}
	if c.Storage.Prefix == "" {
		c.Storage.Prefix = DefaultBucketPrefix
	}
	if c.Message.Body == "" {
		c.Message.Body = DefaultMessageBody
	}
}

// setting maps one flat key to a Config field. Keys are matched
// case-insensitively in dotenv files and with EnvPrefix in the environment.
type setting struct {
	key string
	set func(c *Config, v string) error
}

var settings = []setting{
	{"AWS_ACCESS_KEY_ID", str(func(c *Config) *string { return &c.Credentials.AccessKeyID })},
	{"AWS_SECRET_ACCESS_KEY", str(func(c *Config) *string { return &c.Credentials.SecretAccessKey })},
	{"AWS_SESSION_TOKEN", str(func(c *Config) *string { return &c.Credentials.SessionToken })},
	{"ENDPOINT", str(func(c *Config) *string { return &c.Credentials.Endpoint })},
	{"REGION", str(func(c *Config) *string { return &c.Region })},
	{"PROVIDER", str(func(c *Config) *string { return &c.Provider })},
	{"KINDS", func(c *Config, v string) error {
		c.Kinds = nil
		for _, k := range strings.Split(v, ",") {
			if k = strings.TrimSpace(k); k != "" {
				c.Kinds = append(c.Kinds, strings.ToLower(k))
			}
		}
		return nil
	}},
	{"AMI_ID", str(func(c *Config) *string { return &c.Compute.ImageID })},
	{"INSTANCE_TYPE", str(func(c *Config) *string { return &c.Compute.InstanceType })},
	{"KEY_NAME", str(func(c *Config) *string { return &c.Compute.KeyName })},
	{"BUCKET_NAME", str(func(c *Config) *string { return &c.Storage.Name })},
	{"BUCKET_PREFIX", str(func(c *Config) *string { return &c.Storage.Prefix })},
	{"QUEUE_NAME", str(func(c *Config) *string { return &c.Queue.Name })},
	{"QUEUE_DELAY_SECONDS", integer(func(c *Config) *int { return &c.Queue.DelaySeconds })},
	{"QUEUE_VISIBILITY_TIMEOUT", integer(func(c *Config) *int { return &c.Queue.VisibilityTimeout })},
	{"FILE_PATH", str(func(c *Config) *string { return &c.Upload.FilePath })},
	{"OBJECT_NAME", str(func(c *Config) *string { return &c.Upload.ObjectKey })},
	{"MESSAGE_BODY", str(func(c *Config) *string { return &c.Message.Body })},
	{"MESSAGE_TITLE", str(func(c *Config) *string { return &c.Message.Title })},
	{"PARALLELISM", integer(func(c *Config) *int { return &c.Run.Parallelism })},
	{"READY_ATTEMPTS", integer(func(c *Config) *int { return &c.Run.ReadyAttempts })},
	{"READY_INTERVAL", duration(func(c *Config) *time.Duration { return &c.Run.ReadyInterval })},
	{"TERMINATION_ATTEMPTS", integer(func(c *Config) *int { return &c.Run.TerminationAttempts })},
	{"TERMINATION_INTERVAL", duration(func(c *Config) *time.Duration { return &c.Run.TerminationInterval })},
	{"RECEIVE_WAIT", duration(func(c *Config) *time.Duration { return &c.Run.ReceiveWait })},
	{"TEARDOWN_TIMEOUT", duration(func(c *Config) *time.Duration { return &c.Run.TeardownTimeout })},
	{"LEDGER_PATH", str(func(c *Config) *string { return &c.Run.LedgerPath })},
	{"POLICY_DIR", str(func(c *Config) *string { return &c.Run.PolicyDir })},
	{"LOG_LEVEL", str(func(c *Config) *string { return &c.Telemetry.Logging.Level })},
	{"LOG_FORMAT", str(func(c *Config) *string { return &c.Telemetry.Logging.Format })},
	{"DISABLED_POLICIES", list(func(c *Config) *[]string { return &c.Run.DisabledPolicies })},
	{"KAFKA_BROKERS", list(func(c *Config) *[]string { return &c.Telemetry.Events.Kafka.Brokers })},
	{"KAFKA_TOPIC", str(func(c *Config) *string { return &c.Telemetry.Events.Kafka.Topic })},
}

// list splits a comma-separated value, dropping empty entries.
func list(field func(*Config) *[]string) func(*Config, string) error {
	return func(c *Config, v string) error {
		var out []string
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		*field(c) = out
		return nil
	}
}

func str(field func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*field(c) = strings.TrimSpace(v)
		return nil
	}
}

func integer(field func(*Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("not an integer: %q", v)
		}
		*field(c) = n
		return nil
	}
}

func duration(field func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("not a duration: %q", v)
		}
		*field(c) = d
		return nil
	}
}
