package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kozaktomas/attendance/internal/constants"
	"gopkg.in/yaml.v3"
)

//go:embed models.yaml
var modelsYAML []byte

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Embedding   EmbeddingConfig
	Recognition RecognitionConfig
	Enrollment  EnrollmentConfig
	Attendance  AttendanceConfig
	Capture     CaptureConfig
	Models      ModelsConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string // extra CORS origins besides localhost
}

type DatabaseConfig struct {
	URL          string // postgres://..., mysql://... or a SQLite file path (default attendance.db)
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type EmbeddingConfig struct {
	URL string // face embedding service, defaults to http://localhost:8000
}

type RecognitionConfig struct {
	Model     string        // model whose distance columns are preferred (default Facenet512)
	Threshold float64       // distance below which a candidate is accepted (default 0.6)
	Tolerance int           // pixel tolerance for box/candidate correlation (default 50)
	TopK      int           // nearest enrollment images per query face (default 1)
	Timeout   time.Duration // bound on one detection or search call (default 10s)
}

type EnrollmentConfig struct {
	Dir string // enrollment store root (default faces_db)
}

type AttendanceConfig struct {
	Cooldown time.Duration // minimum time between two records for one person (default 300s)
	LogLimit int           // default number of records returned by /api/logs (default 100)
}

type CaptureConfig struct {
	SnapshotURL string        // HTTP snapshot endpoint of an IP camera
	Device      string        // webcam device id or directory of frames
	SkipFrames  int           // frames reusing the previous result between recomputes (default 2)
	Interval    time.Duration // delay between frame reads (default 100ms)
}

type ModelsConfig struct {
	Models map[string]ModelProfile `yaml:"models"`
}

type ModelProfile struct {
	Dim        int                `yaml:"dim"`
	Thresholds map[string]float64 `yaml:"thresholds"`
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

// envFloat reads an environment variable and parses it as a positive float.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envDuration reads a duration ("300s", "5m") or a plain number of seconds.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	var models ModelsConfig
	if err := yaml.Unmarshal(modelsYAML, &models); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded models.yaml: " + err.Error())
	}

	port := envInt("PORT", 8080)
	port = envInt("WEB_PORT", port)

	return &Config{
		Server: ServerConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           port,
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
		Database: DatabaseConfig{
			URL:          envString("DATABASE_URL", "attendance.db"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Embedding: EmbeddingConfig{
			URL: envString("EMBEDDING_URL", "http://localhost:8000"),
		},
		Recognition: RecognitionConfig{
			Model:     envString("RECOGNITION_MODEL", constants.DefaultModel),
			Threshold: envFloat("RECOGNITION_THRESHOLD", constants.DefaultDistanceThreshold),
			Tolerance: envInt("RECOGNITION_TOLERANCE", constants.DefaultPixelTolerance),
			TopK:      envInt("RECOGNITION_TOP_K", constants.DefaultTopK),
			Timeout:   envDuration("RECOGNITION_TIMEOUT", constants.DefaultInferenceTimeout),
		},
		Enrollment: EnrollmentConfig{
			Dir: envString("ENROLLMENT_DIR", constants.DefaultEnrollmentDir),
		},
		Attendance: AttendanceConfig{
			Cooldown: envDuration("ATTENDANCE_COOLDOWN", constants.DefaultCooldown),
			LogLimit: envInt("ATTENDANCE_LOG_LIMIT", constants.DefaultLogLimit),
		},
		Capture: CaptureConfig{
			SnapshotURL: os.Getenv("CAPTURE_SNAPSHOT_URL"),
			Device:      os.Getenv("CAPTURE_DEVICE"),
			SkipFrames:  envNonNegativeInt("CAPTURE_SKIP_FRAMES", constants.DefaultSkipFrames),
			Interval:    envDuration("CAPTURE_INTERVAL", constants.DefaultCaptureInterval),
		},
		Models: models,
	}
}

// envNonNegativeInt is like envInt but accepts zero.
func envNonNegativeInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return n
	}
	return defaultVal
}

// envList splits a comma-separated variable, dropping empty items.
func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// ModelProfile returns the profile for a recognition model, or false if it is not known.
// Lookup is case-insensitive.
func (c *Config) ModelProfile(name string) (ModelProfile, bool) {
	if p, ok := c.Models.Models[name]; ok {
		return p, true
	}
	for k, p := range c.Models.Models {
		if strings.EqualFold(k, name) {
			return p, true
		}
	}
	return ModelProfile{}, false
}
