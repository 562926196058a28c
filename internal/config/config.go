// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	TransportSQS  = "sqs"
	TransportAMQP = "amqp"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Cloud struct {
		AWS AWSConfig `yaml:"aws"`
	} `yaml:"cloud"`

	Listener ListenerConfig `yaml:"listener"`

	RabbitMQ struct {
		URL string `yaml:"url"`
	} `yaml:"rabbitmq"`

	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`

	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
}

type AWSConfig struct {
	Credentials struct {
		AccessKey string `yaml:"access_key"`
		SecretKey string `yaml:"secret_key"`
	} `yaml:"credentials"`

	Region struct {
		Static string `yaml:"static"`
	} `yaml:"region"`

	SQS struct {
		// Endpoint overrides the service endpoint, e.g. a LocalStack URL.
		Endpoint string `yaml:"endpoint"`
	} `yaml:"sqs"`
}

type ListenerConfig struct {
	Transport   string `yaml:"transport"`
	MaxMessages int32  `yaml:"max_messages"`
	// WaitTimeSeconds is nil when unset; an explicit 0 is kept.
	WaitTimeSeconds   *int32        `yaml:"wait_time_seconds"`
	VisibilityTimeout int32         `yaml:"visibility_timeout"`
	BackOff           time.Duration `yaml:"back_off"`
	Queues            []QueueConfig `yaml:"queues"`
}

const defaultWaitTimeSeconds int32 = 20

// WaitTime returns the configured poll wait in seconds. Zero means the SQS
// queue's own wait time attribute applies; for AMQP it waits for the next delivery.
func (l ListenerConfig) WaitTime() int32 {
	if l.WaitTimeSeconds == nil {
		return defaultWaitTimeSeconds
	}
	return *l.WaitTimeSeconds
}

// QueueConfig binds one endpoint to the listener.
type QueueConfig struct {
	Endpoint       string `yaml:"endpoint"`
	DeletionPolicy string `yaml:"deletion_policy"`
	Workers        int    `yaml:"workers"`
	// Payload selects the body shape: "message" or "map" (keyed messages).
	Payload string `yaml:"payload"`
}

const (
	PayloadMessage = "message"
	PayloadMap     = "map"
)

var deletionPolicies = []string{"ALWAYS", "NEVER", "NO_REDRIVE", "ON_SUCCESS"}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML with ${VAR} expansion, applies environment overrides and defaults.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v, ok := os.LookupEnv("CLOUD_AWS_CREDENTIALS_ACCESSKEY"); ok {
		c.Cloud.AWS.Credentials.AccessKey = v
	}
	if v, ok := os.LookupEnv("CLOUD_AWS_CREDENTIALS_SECRETKEY"); ok {
		c.Cloud.AWS.Credentials.SecretKey = v
	}
	if v, ok := os.LookupEnv("CLOUD_AWS_REGION_STATIC"); ok {
		c.Cloud.AWS.Region.Static = v
	}
}

func (c *Config) applyDefaults() {
	l := &c.Listener
	if l.Transport == "" {
		l.Transport = TransportSQS
	}
	l.Transport = strings.ToLower(l.Transport)
	if l.MaxMessages == 0 {
		l.MaxMessages = 10
	}
	if l.WaitTimeSeconds == nil {
		wait := defaultWaitTimeSeconds
		l.WaitTimeSeconds = &wait
	}
	if l.VisibilityTimeout == 0 {
		l.VisibilityTimeout = 30
	}
	if l.BackOff == 0 {
		l.BackOff = 10 * time.Second
	}
	for i := range l.Queues {
		q := &l.Queues[i]
		if q.DeletionPolicy == "" {
			q.DeletionPolicy = "ON_SUCCESS"
		}
		q.DeletionPolicy = strings.ToUpper(q.DeletionPolicy)
		if q.Workers == 0 {
			q.Workers = 1
		}
		if q.Payload == "" {
			q.Payload = PayloadMessage
		}
		q.Payload = strings.ToLower(q.Payload)
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate reports the first problem found, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	l := c.Listener
	switch l.Transport {
	case TransportSQS:
	case TransportAMQP:
		if c.RabbitMQ.URL == "" {
			return fmt.Errorf("%w: rabbitmq.url is required for the amqp transport", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown transport %q", ErrInvalidConfig, l.Transport)
	}
	if len(l.Queues) == 0 {
		return fmt.Errorf("%w: at least one listener queue is required", ErrInvalidConfig)
	}
	if l.MaxMessages < 1 || l.MaxMessages > 10 {
		return fmt.Errorf("%w: max_messages must be between 1 and 10, got %d", ErrInvalidConfig, l.MaxMessages)
	}
	if wait := l.WaitTime(); wait < 0 || wait > 20 {
		return fmt.Errorf("%w: wait_time_seconds must be between 0 and 20, got %d", ErrInvalidConfig, wait)
	}
	for _, q := range l.Queues {
		if q.Endpoint == "" {
			return fmt.Errorf("%w: queue endpoint is empty", ErrInvalidConfig)
		}
		if !slices.Contains(deletionPolicies, q.DeletionPolicy) {
			return fmt.Errorf("%w: queue %s: unknown deletion policy %q", ErrInvalidConfig, q.Endpoint, q.DeletionPolicy)
		}
		if q.Workers < 0 {
			return fmt.Errorf("%w: queue %s: workers must be positive", ErrInvalidConfig, q.Endpoint)
		}
		if q.Payload != PayloadMessage && q.Payload != PayloadMap {
			return fmt.Errorf("%w: queue %s: unknown payload %q", ErrInvalidConfig, q.Endpoint, q.Payload)
		}
	}
	return nil
}
