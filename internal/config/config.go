// Package config reads the service configuration from environment variables. A .env file in
// the working directory, if present, is loaded first and never overrides variables that are
// already set.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"gitlab.com/dirk.krummacker/person-service/internal/clock"
)

// Supported values of DBDRIVER.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Config captures everything the service and its tools need at startup.
type Config struct {
	Port       string
	GinLogging bool

	DBDriver   string
	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string
	DBSSLMode  string
	// DBDSN replaces the assembled data source name when set.
	DBDSN string

	LogLevel  string
	LogFormat string

	ClockOffset        time.Duration
	PersonalIdAttempts int
	ShutdownTimeout    time.Duration
}

// LoadDotEnv loads the given .env files (default ".env"). Missing files are not an error.
func LoadDotEnv(filenames ...string) error {
	if err := godotenv.Load(filenames...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// FromEnv builds a Config from environment variables.
//
// Usage example on the command line:
// > PORT=8080 DBDRIVER=postgres DBHOST=localhost DBUSER=dirk DBPWD=bullo92 go run ./cmd/service
func FromEnv() (Config, error) {
	cfg := Config{
		Port:       getenv("PORT", "8080"),
		GinLogging: !strings.EqualFold(os.Getenv("GIN_LOGGING"), "off"),
		DBDriver:   strings.ToLower(getenv("DBDRIVER", DriverMySQL)),
		DBUser:     os.Getenv("DBUSER"),
		DBPassword: os.Getenv("DBPWD"),
		DBHost:     getenv("DBHOST", "localhost"),
		DBPort:     os.Getenv("DBPORT"),
		DBSSLMode:  getenv("DBSSLMODE", "disable"),
		DBDSN:      os.Getenv("DBDSN"),
		LogLevel:   getenv("LOG_LEVEL", "info"),
		LogFormat:  getenv("LOG_FORMAT", "json"),
	}

	switch cfg.DBDriver {
	case DriverMySQL, DriverPostgres:
		cfg.DBName = getenv("DBNAME", "test")
	case DriverSQLite:
		cfg.DBName = getenv("DBNAME", "persons.db")
	default:
		return Config{}, fmt.Errorf("unsupported DBDRIVER %q", cfg.DBDriver)
	}

	if _, err := strconv.Atoi(cfg.Port); err != nil {
		return Config{}, fmt.Errorf("could not parse PORT env variable: %w", err)
	}

	offsetHours, err := getFloat("CLOCK_OFFSET_HOURS", clock.LegacyFixedOffset.Hours())
	if err != nil {
		return Config{}, err
	}
	cfg.ClockOffset = time.Duration(offsetHours * float64(time.Hour))

	cfg.PersonalIdAttempts, err = getInt("PERSONALID_ATTEMPTS", 1)
	if err != nil {
		return Config{}, err
	}
	if cfg.PersonalIdAttempts < 1 {
		return Config{}, fmt.Errorf("PERSONALID_ATTEMPTS must be at least 1, got %d", cfg.PersonalIdAttempts)
	}

	cfg.ShutdownTimeout, err = time.ParseDuration(getenv("SHUTDOWN_TIMEOUT", "10s"))
	if err != nil {
		return Config{}, fmt.Errorf("could not parse SHUTDOWN_TIMEOUT env variable: %w", err)
	}
	return cfg, nil
}

// Addr is the listen address of the HTTP server.
func (c Config) Addr() string {
	return ":" + c.Port
}

// DSN returns the driver-specific data source name.
func (c Config) DSN() string {
	if c.DBDSN != "" {
		return c.DBDSN
	}
	switch c.DBDriver {
	case DriverPostgres:
		port := c.DBPort
		if port == "" {
			port = "5432"
		}
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			c.DBHost, port, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
	case DriverSQLite:
		return c.DBName
	default:
		m := mysql.NewConfig()
		m.User = c.DBUser
		m.Passwd = c.DBPassword
		m.Net = "tcp"
		m.Addr = c.DBHost
		if c.DBPort != "" {
			m.Addr = net.JoinHostPort(c.DBHost, c.DBPort)
		}
		m.DBName = c.DBName
		m.ParseTime = true
		m.Loc = time.UTC
		return m.FormatDSN()
	}
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("could not parse %s env variable: %w", key, err)
	}
	return n, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("could not parse %s env variable: %w", key, err)
	}
	return f, nil
}
