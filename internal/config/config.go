package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Backends
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendMariaDB  = "mariadb"
	BackendRTDB     = "rtdb"
	BackendNone     = "none"
	BackendLocal    = "local"
	BackendMinIO    = "minio"
)

type Config struct {
	Matching  MatchingConfig  `yaml:"matching"`
	Features  FeaturesConfig  `yaml:"features"`
	Sensor    SensorConfig    `yaml:"sensor"`
	State     StateConfig     `yaml:"state"`
	Database  DatabaseConfig  `yaml:"database"`
	Directory DirectoryConfig `yaml:"directory"`
	Samples   SamplesConfig   `yaml:"samples"`
	Web       WebConfig       `yaml:"web"`
	Log       LogConfig       `yaml:"log"`
}

type MatchingConfig struct {
	DistanceThreshold float64 `yaml:"distance_threshold"`
	AmbiguityMargin   float64 `yaml:"ambiguity_margin"`
	Classifier        string  `yaml:"classifier"` // exact or hnsw
	HNSWMaxNeighbors  int     `yaml:"hnsw_max_neighbors"`
	HNSWEfSearch      int     `yaml:"hnsw_ef_search"`
}

type FeaturesConfig struct {
	Strategy string `yaml:"strategy"` // flatten or gradient
	Dim      int    `yaml:"dim"`      // 0 selects the strategy default
}

type SensorConfig struct {
	SpoolDir       string        `yaml:"spool_dir"` // drop directory written by the capture daemon
	CaptureTimeout time.Duration `yaml:"capture_timeout"`
	BusyPolicy     string        `yaml:"busy_policy"` // queue or reject
}

type StateConfig struct {
	Backend string `yaml:"backend"` // file or postgres
	Dir     string `yaml:"dir"`
}

type DatabaseConfig struct {
	URL          string `yaml:"url"` // PostgreSQL connection URL
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

type DirectoryConfig struct {
	Backend    string `yaml:"backend"`     // none, postgres, mariadb or rtdb
	MariaDBDSN string `yaml:"mariadb_dsn"` // e.g. fpid:fpid@tcp(mariadb:3306)/fpid
	RTDBURL    string `yaml:"rtdb_url"`    // realtime database root, e.g. https://project.firebaseio.com
	RTDBToken  string `yaml:"rtdb_token"`
}

type SamplesConfig struct {
	Backend string      `yaml:"backend"` // none, local or minio
	Dir     string      `yaml:"dir"`
	MinIO   MinIOConfig `yaml:"minio"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type WebConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	APIToken       string        `yaml:"api_token"`
	AllowedOrigins []string      `yaml:"allowed_origins"` // localhost is always allowed
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a non-negative float, falling back to defaultVal.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return f
	}
	return defaultVal
}

// envDuration reads a positive Go duration such as "45s".
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

// envList reads a comma-separated list.
func envList(key string, defaultVal []string) []string {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	var out []string
	for item := range strings.SplitSeq(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Defaults returns the embedded default configuration.
func Defaults() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultsYAML, &cfg); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}
	return &cfg
}

// Load builds the configuration: embedded defaults, then the YAML file named
// by FPID_CONFIG (if set), then environment variables.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("FPID_CONFIG"); path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // operator supplied
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Matching.DistanceThreshold = envFloat("DISTANCE_THRESHOLD", c.Matching.DistanceThreshold)
	c.Matching.AmbiguityMargin = envFloat("AMBIGUITY_MARGIN", c.Matching.AmbiguityMargin)
	c.Matching.Classifier = envString("CLASSIFIER", c.Matching.Classifier)
	c.Matching.HNSWMaxNeighbors = envInt("HNSW_MAX_NEIGHBORS", c.Matching.HNSWMaxNeighbors)
	c.Matching.HNSWEfSearch = envInt("HNSW_EF_SEARCH", c.Matching.HNSWEfSearch)

	c.Features.Strategy = envString("FEATURE_STRATEGY", c.Features.Strategy)
	c.Features.Dim = envInt("FEATURE_DIM", c.Features.Dim)

	c.Sensor.SpoolDir = envString("SENSOR_SPOOL_DIR", c.Sensor.SpoolDir)
	c.Sensor.CaptureTimeout = envDuration("CAPTURE_TIMEOUT", c.Sensor.CaptureTimeout)
	c.Sensor.BusyPolicy = envString("SENSOR_BUSY_POLICY", c.Sensor.BusyPolicy)

	c.State.Backend = envString("GALLERY_BACKEND", c.State.Backend)
	c.State.Dir = envString("STATE_DIR", c.State.Dir)

	c.Database.URL = envString("DATABASE_URL", c.Database.URL)
	c.Database.MaxOpenConns = envInt("DATABASE_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = envInt("DATABASE_MAX_IDLE_CONNS", c.Database.MaxIdleConns)

	c.Directory.Backend = envString("DIRECTORY_BACKEND", c.Directory.Backend)
	c.Directory.MariaDBDSN = envString("MARIADB_DSN", c.Directory.MariaDBDSN)
	c.Directory.RTDBURL = envString("RTDB_URL", c.Directory.RTDBURL)
	c.Directory.RTDBToken = envString("RTDB_TOKEN", c.Directory.RTDBToken)

	c.Samples.Backend = envString("SAMPLES_BACKEND", c.Samples.Backend)
	c.Samples.Dir = envString("SAMPLES_DIR", c.Samples.Dir)
	c.Samples.MinIO.Endpoint = envString("MINIO_ENDPOINT", c.Samples.MinIO.Endpoint)
	c.Samples.MinIO.AccessKey = envString("MINIO_ACCESS_KEY", c.Samples.MinIO.AccessKey)
	c.Samples.MinIO.SecretKey = envString("MINIO_SECRET_KEY", c.Samples.MinIO.SecretKey)
	c.Samples.MinIO.Bucket = envString("MINIO_BUCKET", c.Samples.MinIO.Bucket)
	c.Samples.MinIO.UseSSL = envBool("MINIO_USE_SSL", c.Samples.MinIO.UseSSL)

	c.Web.Host = envString("WEB_HOST", c.Web.Host)
	c.Web.Port = envInt("WEB_PORT", c.Web.Port)
	c.Web.APIToken = envString("WEB_API_TOKEN", c.Web.APIToken)
	c.Web.AllowedOrigins = envList("WEB_ALLOWED_ORIGINS", c.Web.AllowedOrigins)
	c.Web.RequestTimeout = envDuration("WEB_REQUEST_TIMEOUT", c.Web.RequestTimeout)

	c.Log.Level = envString("LOG_LEVEL", c.Log.Level)
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	var problems []string

	if c.Matching.DistanceThreshold <= 0 || c.Matching.DistanceThreshold > 1 {
		problems = append(problems, "DISTANCE_THRESHOLD must be in (0, 1]")
	}
	if c.Matching.AmbiguityMargin >= c.Matching.DistanceThreshold {
		problems = append(problems, "AMBIGUITY_MARGIN must be below DISTANCE_THRESHOLD")
	}
	if !oneOf(c.Matching.Classifier, "exact", "hnsw") {
		problems = append(problems, fmt.Sprintf("unknown CLASSIFIER %q", c.Matching.Classifier))
	}
	if !oneOf(c.Features.Strategy, "flatten", "gradient") {
		problems = append(problems, fmt.Sprintf("unknown FEATURE_STRATEGY %q", c.Features.Strategy))
	}
	if c.Features.Dim < 0 {
		problems = append(problems, "FEATURE_DIM must not be negative")
	}
	if !oneOf(c.Sensor.BusyPolicy, "queue", "reject") {
		problems = append(problems, fmt.Sprintf("unknown SENSOR_BUSY_POLICY %q", c.Sensor.BusyPolicy))
	}
	if c.Sensor.CaptureTimeout <= 0 {
		problems = append(problems, "CAPTURE_TIMEOUT must be positive")
	}

	switch c.State.Backend {
	case BackendFile:
		if c.State.Dir == "" {
			problems = append(problems, "STATE_DIR is required for the file backend")
		}
	case BackendPostgres:
		if c.Database.URL == "" {
			problems = append(problems, "DATABASE_URL is required for the postgres gallery backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown GALLERY_BACKEND %q", c.State.Backend))
	}

	switch c.Directory.Backend {
	case BackendNone, "":
	case BackendPostgres:
		if c.Database.URL == "" {
			problems = append(problems, "DATABASE_URL is required for the postgres directory")
		}
	case BackendMariaDB:
		if c.Directory.MariaDBDSN == "" {
			problems = append(problems, "MARIADB_DSN is required for the mariadb directory")
		}
	case BackendRTDB:
		if c.Directory.RTDBURL == "" {
			problems = append(problems, "RTDB_URL is required for the rtdb directory")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown DIRECTORY_BACKEND %q", c.Directory.Backend))
	}

	switch c.Samples.Backend {
	case BackendNone, "":
	case BackendLocal:
		if c.Samples.Dir == "" {
			problems = append(problems, "SAMPLES_DIR is required for the local sample store")
		}
	case BackendMinIO:
		if c.Samples.MinIO.Endpoint == "" || c.Samples.MinIO.Bucket == "" {
			problems = append(problems, "MINIO_ENDPOINT and MINIO_BUCKET are required for the minio sample store")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown SAMPLES_BACKEND %q", c.Samples.Backend))
	}

	if c.Web.Port <= 0 || c.Web.Port > 65535 {
		problems = append(problems, "WEB_PORT must be a valid port")
	}
	if c.Web.RequestTimeout < c.Sensor.CaptureTimeout {
		problems = append(problems, "WEB_REQUEST_TIMEOUT must not be shorter than CAPTURE_TIMEOUT")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}
