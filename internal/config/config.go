package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"weather-rain-pipeline/internal/models"
	"weather-rain-pipeline/pkg/database"
)

const defaultCities = "São Paulo:-23.55:-46.63"

// Config is built once at startup and handed to each component.
type Config struct {
	OpenWeather OpenWeatherConfig
	Cities      []models.City
	Database    DatabaseConfig
	Storage     StorageConfig
	Server      ServerConfig
	Logging     LoggingConfig
	Ingest      IngestConfig
}

type OpenWeatherConfig struct {
	APIKey     string
	BaseURL    string
	Units      string
	Lang       string
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
}

type DatabaseConfig struct {
	Driver          string
	Path            string
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type StorageConfig struct {
	SilverDir string
	ModelPath string
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type LoggingConfig struct {
	Level string
}

type IngestConfig struct {
	// Interval is the default period for scheduled ingest; zero means run once.
	Interval time.Duration
}

// ValidationError describes one invalid setting.
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("%s=%q: %s", e.Field, e.Value, e.Message)
}

// IsTransient returns false as configuration errors are permanent
func (e *ValidationError) IsTransient() bool {
	return false
}

// LoadConfig reads a .env file when present and then the process environment.
func LoadConfig() (*Config, error) {
	// a missing .env is normal outside development
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function so tests can supply their own environment.
func FromEnv(getenv func(string) string) (*Config, error) {
	env := envReader{getenv: getenv}

	cfg := &Config{
		OpenWeather: OpenWeatherConfig{
			APIKey:     env.str("OWM_API_KEY", ""),
			BaseURL:    env.str("OWM_BASE_URL", "https://api.openweathermap.org/data/2.5"),
			Units:      env.str("UNITS", "metric"),
			Lang:       env.str("LANG_CODE", "pt_br"),
			Timeout:    env.duration("HTTP_TIMEOUT", 30*time.Second),
			Retries:    env.int("FETCH_RETRIES", 3),
			RetryDelay: env.duration("FETCH_RETRY_DELAY", 2*time.Second),
		},
		Database: DatabaseConfig{
			Driver:          env.str("DB_DRIVER", "sqlite"),
			Path:            env.str("DB_PATH", "data/bronze.db"),
			Host:            env.str("DB_HOST", "localhost"),
			Port:            env.int("DB_PORT", 5432),
			User:            env.str("DB_USER", "weather"),
			Password:        env.str("DB_PASSWORD", ""),
			Database:        env.str("DB_NAME", "weather"),
			SSLMode:         env.str("DB_SSLMODE", "disable"),
			MaxOpenConns:    env.int("DB_MAX_OPEN_CONNS", 5),
			MaxIdleConns:    env.int("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: env.duration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: env.duration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
		},
		Storage: StorageConfig{
			SilverDir: env.str("SILVER_DIR", "data/silver"),
			ModelPath: env.str("MODEL_PATH", "models/rain_classifier.json"),
		},
		Server: ServerConfig{
			Host:         env.str("SERVER_HOST", "0.0.0.0"),
			Port:         env.int("SERVER_PORT", 8080),
			ReadTimeout:  env.duration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: env.duration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  env.duration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Logging: LoggingConfig{
			Level: env.str("LOG_LEVEL", "info"),
		},
		Ingest: IngestConfig{
			Interval: env.duration("INGEST_INTERVAL", 0),
		},
	}

	if err := env.errors.ErrorOrNil(); err != nil {
		return nil, err
	}

	var cities []models.City
	var err error
	if path := getenv("CITIES_FILE"); path != "" {
		cities, err = LoadCitiesFile(path)
	} else {
		cities, err = ParseCities(env.str("CITIES", defaultCities))
	}
	if err != nil {
		return nil, err
	}
	cfg.Cities = cities

	return cfg, nil
}

// ParseCities parses the "name:lat:lon;name:lat:lon" list format.
func ParseCities(list string) ([]models.City, error) {
	var cities []models.City
	var result *multierror.Error

	for _, item := range strings.Split(list, ";") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}

		parts := strings.Split(item, ":")
		if len(parts) != 3 {
			result = multierror.Append(result, &ValidationError{
				Field: "CITIES", Value: item, Message: "expected name:lat:lon",
			})
			continue
		}

		lat, latErr := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		lon, lonErr := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		if latErr != nil || lonErr != nil {
			result = multierror.Append(result, &ValidationError{
				Field: "CITIES", Value: item, Message: "latitude and longitude must be numbers",
			})
			continue
		}

		cities = append(cities, models.City{
			Name: strings.TrimSpace(parts[0]),
			Lat:  lat,
			Lon:  lon,
		})
	}

	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return cities, nil
}

// LoadCitiesFile reads a YAML list of {name, lat, lon} entries.
func LoadCitiesFile(path string) ([]models.City, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cities file: %w", err)
	}

	var doc struct {
		Cities []models.City `yaml:"cities"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse cities file %s: %w", path, err)
	}
	return doc.Cities, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if len(c.Cities) == 0 {
		result = multierror.Append(result, &ValidationError{Field: "CITIES", Message: "at least one city is required"})
	}
	seen := make(map[string]bool, len(c.Cities))
	for _, city := range c.Cities {
		if city.Name == "" {
			result = multierror.Append(result, &ValidationError{Field: "CITIES", Message: "city name must not be empty"})
		}
		if seen[city.Name] {
			result = multierror.Append(result, &ValidationError{Field: "CITIES", Value: city.Name, Message: "duplicate city"})
		}
		seen[city.Name] = true
		if city.Lat < -90 || city.Lat > 90 || city.Lon < -180 || city.Lon > 180 {
			result = multierror.Append(result, &ValidationError{Field: "CITIES", Value: city.Name, Message: "coordinates out of range"})
		}
	}

	if c.OpenWeather.Retries < 1 {
		result = multierror.Append(result, &ValidationError{
			Field: "FETCH_RETRIES", Value: strconv.Itoa(c.OpenWeather.Retries), Message: "must be at least 1",
		})
	}
	if c.OpenWeather.Timeout <= 0 {
		result = multierror.Append(result, &ValidationError{Field: "HTTP_TIMEOUT", Message: "must be positive"})
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			result = multierror.Append(result, &ValidationError{Field: "DB_PATH", Message: "required for sqlite"})
		}
	case "postgres":
		if c.Database.Host == "" || c.Database.Database == "" {
			result = multierror.Append(result, &ValidationError{Field: "DB_HOST", Message: "host and database name are required for postgres"})
		}
	default:
		result = multierror.Append(result, &ValidationError{
			Field: "DB_DRIVER", Value: c.Database.Driver, Message: "must be sqlite or postgres",
		})
	}

	if c.Storage.SilverDir == "" {
		result = multierror.Append(result, &ValidationError{Field: "SILVER_DIR", Message: "must not be empty"})
	}
	if c.Storage.ModelPath == "" {
		result = multierror.Append(result, &ValidationError{Field: "MODEL_PATH", Message: "must not be empty"})
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		result = multierror.Append(result, &ValidationError{
			Field: "SERVER_PORT", Value: strconv.Itoa(c.Server.Port), Message: "must be a valid TCP port",
		})
	}

	return result.ErrorOrNil()
}

// DBConfig converts the database settings into the form pkg/database opens.
func (c *Config) DBConfig() *database.Config {
	return &database.Config{
		Driver:          c.Database.Driver,
		Path:            c.Database.Path,
		Host:            c.Database.Host,
		Port:            c.Database.Port,
		User:            c.Database.User,
		Password:        c.Database.Password,
		Database:        c.Database.Database,
		SSLMode:         c.Database.SSLMode,
		MaxOpenConns:    c.Database.MaxOpenConns,
		MaxIdleConns:    c.Database.MaxIdleConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
		ConnMaxIdleTime: c.Database.ConnMaxIdleTime,
	}
}

// ValidateForIngest additionally requires the API key, which only the ingester needs.
func (c *Config) ValidateForIngest() error {
	var result *multierror.Error
	if err := c.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if c.OpenWeather.APIKey == "" {
		result = multierror.Append(result, &ValidationError{Field: "OWM_API_KEY", Message: "required for ingestion"})
	}
	return result.ErrorOrNil()
}

type envReader struct {
	getenv func(string) string
	errors *multierror.Error
}

func (e *envReader) str(key, def string) string {
	if v := e.getenv(key); v != "" {
		return v
	}
	return def
}

func (e *envReader) int(key string, def int) int {
	v := e.getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errors = multierror.Append(e.errors, &ValidationError{Field: key, Value: v, Message: "must be an integer"})
		return def
	}
	return n
}

func (e *envReader) duration(key string, def time.Duration) time.Duration {
	v := e.getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errors = multierror.Append(e.errors, &ValidationError{Field: key, Value: v, Message: "must be a duration such as 30s"})
		return def
	}
	return d
}
