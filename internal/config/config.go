package config

import (
	"log"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port      int    `yaml:"port"`
	UploadDir string `yaml:"upload_dir"` // Transient uploads and extracted frames
	StaticDir string `yaml:"static_dir"`
	// ResultsDir holds annotated images, served under /static/results/.
	ResultsDir   string `yaml:"results_dir"`
	LogDirectory string `yaml:"log_dir"`

	DBDriver      string `yaml:"db_driver"` // sqlite | mysql
	DBPath        string `yaml:"db_path"`
	MySQLUser     string `yaml:"mysql_user"`
	MySQLPassword string `yaml:"mysql_password"`
	MySQLHost     string `yaml:"mysql_host"`
	MySQLPort     string `yaml:"mysql_port"`
	MySQLDatabase string `yaml:"mysql_database"`

	DetectorBackend     string  `yaml:"detector_backend"` // opencv | remote
	ModelPath           string  `yaml:"model_path"`
	ModelConfigPath     string  `yaml:"model_config_path"`
	InferenceURL        string  `yaml:"inference_url"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	NMSThreshold        float64 `yaml:"nms_threshold"`
	InputSize           int     `yaml:"input_size"` // Square network input in pixels

	ProcessingTimeout     time.Duration `yaml:"processing_timeout"`
	MaxConcurrentAnalyses int           `yaml:"max_concurrent_analyses"`
	MaxUploadMB           int64         `yaml:"max_upload_mb"`
	ResultCacheTTL        time.Duration `yaml:"result_cache_ttl"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Port:                  8000,
		UploadDir:             filepath.Join(".", "uploads"),
		StaticDir:             filepath.Join(".", "static"),
		ResultsDir:            filepath.Join(".", "static", "results"),
		LogDirectory:          filepath.Join(".", "logs"),
		DBDriver:              "sqlite",
		DBPath:                filepath.Join(".", "data", "people_counter.db"),
		MySQLUser:             "root",
		MySQLHost:             "localhost",
		MySQLPort:             "3306",
		MySQLDatabase:         "people_counter",
		DetectorBackend:       "opencv",
		ModelPath:             filepath.Join(".", "models", "yolov5n.onnx"),
		InferenceURL:          "http://localhost:5000/predict",
		ConfidenceThreshold:   0.25,
		NMSThreshold:          0.45,
		InputSize:             640,
		ProcessingTimeout:     60 * time.Second,
		MaxConcurrentAnalyses: 4,
		MaxUploadMB:           200,
		ResultCacheTTL:        10 * time.Minute,
	}
}

// Load builds the configuration from defaults, an optional YAML file (CONFIG_FILE,
// default config.yaml) and the environment. A .env file is loaded first if present.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		log.Printf("Loaded environment from .env")
	}

	cfg := Default()

	configPath := getEnv("CONFIG_FILE", "config.yaml")
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			log.Fatalf("Error parsing %s: %v", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	applyEnv(cfg)
	return cfg
}

// applyEnv overrides cfg with any environment variables that are set.
func applyEnv(cfg *Config) {
	cfg.Port = getEnvAsInt("PORT", cfg.Port)
	cfg.UploadDir = getEnv("UPLOAD_DIR", cfg.UploadDir)
	cfg.StaticDir = getEnv("STATIC_DIR", cfg.StaticDir)
	cfg.ResultsDir = getEnv("RESULTS_DIR", cfg.ResultsDir)
	cfg.LogDirectory = getEnv("LOG_DIR", cfg.LogDirectory)

	cfg.DBDriver = getEnv("DB_DRIVER", cfg.DBDriver)
	cfg.DBPath = getEnv("DB_PATH", cfg.DBPath)
	cfg.MySQLUser = getEnv("MYSQL_USER", cfg.MySQLUser)
	cfg.MySQLPassword = getEnv("MYSQL_PASSWORD", cfg.MySQLPassword)
	cfg.MySQLHost = getEnv("MYSQL_HOST", cfg.MySQLHost)
	cfg.MySQLPort = getEnv("MYSQL_PORT", cfg.MySQLPort)
	cfg.MySQLDatabase = getEnv("MYSQL_DATABASE", cfg.MySQLDatabase)

	cfg.DetectorBackend = getEnv("DETECTOR_BACKEND", cfg.DetectorBackend)
	cfg.ModelPath = getEnv("MODEL_PATH", cfg.ModelPath)
	cfg.ModelConfigPath = getEnv("MODEL_CONFIG_PATH", cfg.ModelConfigPath)
	cfg.InferenceURL = getEnv("INFERENCE_URL", cfg.InferenceURL)
	cfg.ConfidenceThreshold = getEnvAsFloat("CONFIDENCE_THRESHOLD", cfg.ConfidenceThreshold)
	cfg.NMSThreshold = getEnvAsFloat("NMS_THRESHOLD", cfg.NMSThreshold)
	cfg.InputSize = getEnvAsInt("INPUT_SIZE", cfg.InputSize)

	cfg.ProcessingTimeout = getEnvAsDuration("PROCESSING_TIMEOUT", cfg.ProcessingTimeout)
	cfg.MaxConcurrentAnalyses = getEnvAsInt("MAX_CONCURRENT_ANALYSES", cfg.MaxConcurrentAnalyses)
	cfg.MaxUploadMB = getEnvAsInt64("MAX_UPLOAD_MB", cfg.MaxUploadMB)
	cfg.ResultCacheTTL = getEnvAsDuration("RESULT_CACHE_TTL", cfg.ResultCacheTTL)
}

// MySQLDSN returns the go-sql-driver/mysql data source name.
func (c *Config) MySQLDSN() string {
	mc := mysql.NewConfig()
	mc.User = c.MySQLUser
	mc.Passwd = c.MySQLPassword
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(c.MySQLHost, c.MySQLPort)
	mc.DBName = c.MySQLDatabase
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Params = map[string]string{"charset": "utf8mb4"}
	return mc.FormatDSN()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("90s") or plain seconds ("90").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
