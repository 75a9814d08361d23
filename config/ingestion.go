package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// KafkaProducerConfig defines configuration for Kafka producer
type KafkaProducerConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`

	// Batch processing settings
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	BatchBytes   int           `yaml:"batch_bytes"`

	// Reliability settings
	RequiredAcks string `yaml:"required_acks"`
	Async        bool   `yaml:"async"`

	// Performance settings
	WriteTimeout time.Duration `yaml:"write_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
}

// BatchProcessorConfig defines configuration for batch processing
type BatchProcessorConfig struct {
	BatchSize          int           `yaml:"batch_size"`
	BatchTimeout       time.Duration `yaml:"batch_timeout"`
	FlushChannelBuffer int           `yaml:"flush_channel_buffer"` // Buffer size for flush channel
}

// SetDefaults sets reasonable default values for batch processor configuration
func (c *BatchProcessorConfig) SetDefaults() {
	if c.BatchSize == 0 {
		c.BatchSize = 20
		fmt.Printf("Warning: batch_processor.batch_size not set, defaulting to %d\n", c.BatchSize)
	}
	if c.BatchTimeout == 0 {
		c.BatchTimeout = 100 * time.Millisecond
		fmt.Printf("Warning: batch_processor.batch_timeout not set, defaulting to %v\n", c.BatchTimeout)
	}
	if c.FlushChannelBuffer == 0 {
		c.FlushChannelBuffer = 100
		fmt.Printf("Warning: batch_processor.flush_channel_buffer not set, defaulting to %d\n", c.FlushChannelBuffer)
	}
}

// HttpServerConfig defines HTTP server configuration
type HttpServerConfig struct {
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"` // Upper bound for a submission (image data URL + logs)
}

// SetDefaults fills in server timeouts
func (c *HttpServerConfig) SetDefaults() {
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 15 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 15 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.MaxHeaderBytes == 0 {
		c.MaxHeaderBytes = 1 << 20 // 1 MB
	}
	if c.MaxBodyBytes == 0 {
		c.MaxBodyBytes = 20 << 20 // 20 MB
	}
}

// ApiGatewayConfig defines all configurations required for the ingestion gateway
type ApiGatewayConfig struct {
	HttpListenAddr string `yaml:"http_listen_addr"`
	GrpcListenAddr string `yaml:"grpc_listen_addr"`

	Database       DatabaseConfig       `yaml:"database"`       // Use unified DatabaseConfig
	KafkaProducer  KafkaProducerConfig  `yaml:"kafka_producer"` // Local Kafka producer config
	BatchProcessor BatchProcessorConfig `yaml:"batch_processor"`
	HttpServer     HttpServerConfig     `yaml:"http_server"`

	// NetworksPath points at the network registry served on /v1/networks; empty uses the built-in table
	NetworksPath string `yaml:"networks_path"`
}

// LoadApiGatewayConfig loads gateway configuration from the specified YAML file path
func LoadApiGatewayConfig(path string) (*ApiGatewayConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read API Gateway config file '%s': %w", path, err)
	}

	var cfg ApiGatewayConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse API Gateway YAML config file: %w", err)
	}

	cfg.Database.SetDefaults()
	cfg.BatchProcessor.SetDefaults()
	cfg.HttpServer.SetDefaults()

	// Validation
	if cfg.HttpListenAddr == "" && cfg.GrpcListenAddr == "" {
		return nil, fmt.Errorf("configuration error: at least one of http_listen_addr or grpc_listen_addr must be configured")
	}

	if err := cfg.Database.Validate(); err != nil {
		return nil, fmt.Errorf("database configuration error: %w", err)
	}

	return &cfg, nil
}
