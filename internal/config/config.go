package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/menta2k/occupancy-tracker/pkg/occupancy"
)

// Config holds the application configuration
type Config struct {
	Paths      PathsConfig          `json:"paths"`
	Thresholds occupancy.Thresholds `json:"thresholds"`
	Detectors  []DetectorConfig     `json:"detectors"`
	Output     OutputConfig         `json:"output"`
	Kafka      KafkaConfig          `json:"kafka"`
	API        APIConfig            `json:"api"`
}

// PathsConfig holds the directories and files a run touches
type PathsConfig struct {
	InputDir     string `json:"input_dir"`
	ProcessedDir string `json:"processed_dir"`
	OutputDir    string `json:"output_dir"`
	Dataset      string `json:"dataset"`
	Furniture    string `json:"furniture"`
	SQLite       string `json:"sqlite,omitempty"`
}

// DetectorConfig describes one detection backend
type DetectorConfig struct {
	// Name labels the backend in logs and overlays.
	Name string `json:"name"`

	// Type is ollama, llamacpp or inference.
	Type string `json:"type"`

	URL   string `json:"url"`
	Model string `json:"model,omitempty"`

	// Prompt overrides the default detection prompt of vision backends.
	Prompt string `json:"prompt,omitempty"`

	// SendSize caps the long side of images sent to vision backends.
	SendSize int `json:"send_size,omitempty"`

	// ClassNames resolves class ids for inference servers that only return ids.
	ClassNames []string `json:"class_names,omitempty"`

	MinConfidence float64 `json:"min_confidence"`
}

// OutputConfig holds configuration for annotated output images
type OutputConfig struct {
	Annotate bool   `json:"annotate"`
	Format   string `json:"format"`
	Quality  int    `json:"quality"`
}

// KafkaConfig enables publishing of recorded rows when Brokers is set
type KafkaConfig struct {
	Brokers          string `json:"brokers,omitempty"`
	Topic            string `json:"topic"`
	SecurityProtocol string `json:"security_protocol,omitempty"`
	SASLMechanism    string `json:"sasl_mechanism,omitempty"`
	SASLUsername     string `json:"sasl_username,omitempty"`
	SASLPassword     string `json:"sasl_password,omitempty"`
}

// APIConfig holds the status API listener
type APIConfig struct {
	Addr string `json:"addr"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			InputDir:     "./images",
			ProcessedDir: "./processed",
			OutputDir:    "./outputs",
			Dataset:      "./usage_stats.csv",
			Furniture:    "./furniture.json",
		},
		Thresholds: occupancy.DefaultThresholds(),
		Detectors: []DetectorConfig{
			{
				Name:          "yolo",
				Type:          "inference",
				URL:           "http://localhost:8000/predict",
				MinConfidence: 0,
			},
		},
		Output: OutputConfig{
			Annotate: true,
			Format:   "jpg",
			Quality:  90,
		},
		Kafka: KafkaConfig{
			Topic: "coworking-usage",
		},
		API: APIConfig{
			Addr: ":8080",
		},
	}
}

// LoadFromFile loads configuration from a JSON file. Fields absent from the
// file keep their defaults.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	defaults := config.Detectors
	// detectors decode into a fresh slice so entries never inherit defaults
	config.Detectors = nil
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if config.Detectors == nil {
		config.Detectors = defaults
	}

	return config, nil
}

// Load reads filename when it exists (falling back to defaults otherwise)
// and applies environment overrides
func Load(filename string) (*Config, error) {
	config := Default()
	if filename != "" {
		if _, err := os.Stat(filename); err == nil {
			if config, err = LoadFromFile(filename); err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}
	config.ApplyEnv()
	return config, nil
}

// ApplyEnv overrides settings from OCCUPANCY_* environment variables
func (c *Config) ApplyEnv() {
	c.Paths.InputDir = getEnv("OCCUPANCY_INPUT_DIR", c.Paths.InputDir)
	c.Paths.ProcessedDir = getEnv("OCCUPANCY_PROCESSED_DIR", c.Paths.ProcessedDir)
	c.Paths.OutputDir = getEnv("OCCUPANCY_OUTPUT_DIR", c.Paths.OutputDir)
	c.Paths.Dataset = getEnv("OCCUPANCY_DATASET", c.Paths.Dataset)
	c.Paths.Furniture = getEnv("OCCUPANCY_FURNITURE", c.Paths.Furniture)
	c.Paths.SQLite = getEnv("OCCUPANCY_SQLITE", c.Paths.SQLite)

	c.Thresholds.IoU = getEnvFloat("OCCUPANCY_IOU_THRESHOLD", c.Thresholds.IoU)
	c.Thresholds.SurfaceCoverage = getEnvFloat("OCCUPANCY_SURFACE_COVERAGE", c.Thresholds.SurfaceCoverage)

	c.Output.Annotate = getEnvBool("OCCUPANCY_ANNOTATE", c.Output.Annotate)
	c.Output.Format = getEnv("OCCUPANCY_OUTPUT_FORMAT", c.Output.Format)
	c.Output.Quality = getEnvInt("OCCUPANCY_OUTPUT_QUALITY", c.Output.Quality)

	c.Kafka.Brokers = getEnv("OCCUPANCY_KAFKA_BROKERS", c.Kafka.Brokers)
	c.Kafka.Topic = getEnv("OCCUPANCY_KAFKA_TOPIC", c.Kafka.Topic)
	c.Kafka.SecurityProtocol = getEnv("OCCUPANCY_KAFKA_SECURITY_PROTOCOL", c.Kafka.SecurityProtocol)
	c.Kafka.SASLMechanism = getEnv("OCCUPANCY_KAFKA_SASL_MECHANISM", c.Kafka.SASLMechanism)
	c.Kafka.SASLUsername = getEnv("OCCUPANCY_KAFKA_SASL_USERNAME", c.Kafka.SASLUsername)
	c.Kafka.SASLPassword = getEnv("OCCUPANCY_KAFKA_SASL_PASSWORD", c.Kafka.SASLPassword)

	c.API.Addr = getEnv("OCCUPANCY_API_ADDR", c.API.Addr)

	// a single detector can be pointed elsewhere without a config file
	if len(c.Detectors) > 0 {
		c.Detectors[0].URL = getEnv("OCCUPANCY_DETECTOR_URL", c.Detectors[0].URL)
		c.Detectors[0].Model = getEnv("OCCUPANCY_DETECTOR_MODEL", c.Detectors[0].Model)
	}
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Paths.InputDir == "" {
		return fmt.Errorf("paths.input_dir is required")
	}
	if c.Paths.ProcessedDir == "" {
		return fmt.Errorf("paths.processed_dir is required")
	}
	if filepath.Clean(c.Paths.InputDir) == filepath.Clean(c.Paths.ProcessedDir) {
		return fmt.Errorf("paths.processed_dir must differ from paths.input_dir")
	}
	if c.Paths.Dataset == "" {
		return fmt.Errorf("paths.dataset is required")
	}
	if c.Paths.Furniture == "" {
		return fmt.Errorf("paths.furniture is required")
	}

	if err := c.Thresholds.Validate(); err != nil {
		return fmt.Errorf("thresholds: %w", err)
	}

	if len(c.Detectors) == 0 {
		return fmt.Errorf("at least one detector is required")
	}
	names := make(map[string]bool, len(c.Detectors))
	for i, d := range c.Detectors {
		if d.Name == "" {
			return fmt.Errorf("detectors[%d].name is required", i)
		}
		if names[d.Name] {
			return fmt.Errorf("duplicate detector name %q", d.Name)
		}
		names[d.Name] = true

		switch d.Type {
		case "ollama", "llamacpp":
			if d.Model == "" {
				return fmt.Errorf("detectors[%d].model is required for %s", i, d.Type)
			}
		case "inference":
		default:
			return fmt.Errorf("detectors[%d].type must be ollama, llamacpp or inference", i)
		}
		if d.URL == "" {
			return fmt.Errorf("detectors[%d].url is required", i)
		}
		if d.MinConfidence < 0 || d.MinConfidence > 1 {
			return fmt.Errorf("detectors[%d].min_confidence must be between 0 and 1", i)
		}
	}

	if c.Output.Annotate {
		switch strings.ToLower(c.Output.Format) {
		case "jpg", "jpeg", "png", "webp":
		default:
			return fmt.Errorf("output.format must be jpg, png or webp")
		}
		if c.Output.Quality < 1 || c.Output.Quality > 100 {
			return fmt.Errorf("output.quality must be between 1 and 100")
		}
		if c.Paths.OutputDir == "" {
			return fmt.Errorf("paths.output_dir is required when output.annotate is set")
		}
		out := filepath.Clean(c.Paths.OutputDir)
		if out == filepath.Clean(c.Paths.InputDir) || out == filepath.Clean(c.Paths.ProcessedDir) {
			return fmt.Errorf("paths.output_dir must differ from paths.input_dir and paths.processed_dir")
		}
	}

	if c.Kafka.Brokers != "" && c.Kafka.Topic == "" {
		return fmt.Errorf("kafka.topic is required when kafka.brokers is set")
	}

	return nil
}

// GetConfigPath returns the default configuration file path: config.json in
// the working directory when present, otherwise the per-user config file
func GetConfigPath() string {
	if _, err := os.Stat("config.json"); err == nil {
		return "config.json"
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.json"
	}
	return filepath.Join(home, ".config", "occupancy-tracker", "config.json")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intValue int
		if _, err := fmt.Sscanf(value, "%d", &intValue); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
