package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Host    string `yaml:"host"`
		Port    int    `yaml:"port"`
		BaseURL string `yaml:"baseURL"` // dipakai untuk link di email
		// CORSOrigins juga membatasi origin WebSocket
		CORSOrigins         []string `yaml:"corsOrigins"`
		AllowPrivateTargets bool     `yaml:"allowPrivateTargets"`
		RateLimit           struct {
			Capacity        int     `yaml:"capacity"`
			RefillPerSecond float64 `yaml:"refillPerSecond"`
		} `yaml:"rateLimit"`
	} `yaml:"server"`

	Log struct {
		Level string `yaml:"level"` // debug | info | warn | error
	} `yaml:"log"`

	Database struct {
		Driver   string `yaml:"driver"` // mysql | postgres | sqlite | memory
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"`
		Path     string `yaml:"path"` // sqlite file
		DSN      string `yaml:"dsn"`  // overrides everything above
	} `yaml:"database"`

	Minio struct {
		Enabled    bool   `yaml:"enabled"`
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	Browser struct {
		ExecPath          string        `yaml:"execPath"`
		Headless          bool          `yaml:"headless"`
		NoSandbox         bool          `yaml:"noSandbox"`
		UserAgent         string        `yaml:"userAgent"`
		NavigationTimeout time.Duration `yaml:"navigationTimeout"`
		SettleDelay       time.Duration `yaml:"settleDelay"`
	} `yaml:"browser"`

	Engine struct {
		AxeScriptPath string        `yaml:"axeScriptPath"`
		Tags          []string      `yaml:"tags"`
		Timeout       time.Duration `yaml:"timeout"`
	} `yaml:"engine"`

	Scanner struct {
		Workers   int `yaml:"workers"`
		QueueSize int `yaml:"queueSize"`
	} `yaml:"scanner"`

	Scheduler struct {
		Enabled    bool          `yaml:"enabled"`
		Interval   time.Duration `yaml:"interval"`
		RunTimeout time.Duration `yaml:"runTimeout"`
	} `yaml:"scheduler"`

	SMTP struct {
		Host     string        `yaml:"host"` // kosong = log-only notifier
		Port     int           `yaml:"port"`
		Username string        `yaml:"username"`
		Password string        `yaml:"password"`
		From     string        `yaml:"from"`
		Timeout  time.Duration `yaml:"timeout"`
	} `yaml:"smtp"`

	Reports struct {
		LinkExpiry    time.Duration `yaml:"linkExpiry"`
		AnalyticsDays int           `yaml:"analyticsDays"`
		Brand         string        `yaml:"brand"`
	} `yaml:"reports"`

	// Owners di-seed saat startup (idempotent)
	Owners []OwnerSeed `yaml:"owners"`
}

type OwnerSeed struct {
	ID                string `yaml:"id"`
	Name              string `yaml:"name"`
	Email             string `yaml:"email"`
	APIKey            string `yaml:"apiKey"`
	NotificationEmail string `yaml:"notificationEmail"`
	Notifications     *bool  `yaml:"notifications"`
}

// Default config, dipakai kalau file tidak ada
func Default() *Config {
	var c Config
	c.Server.Host = "0.0.0.0"
	c.Server.Port = 8080
	c.Server.BaseURL = "http://localhost:8080"
	c.Server.RateLimit.Capacity = 60
	c.Server.RateLimit.RefillPerSecond = 1
	c.Log.Level = "info"
	c.Database.Driver = "sqlite"
	c.Database.Path = "lucy.db"
	c.Database.SSLMode = "disable"
	c.Minio.BucketName = "lucy-scan"
	c.Minio.Region = "us-east-1"
	c.Browser.Headless = true
	c.Browser.NavigationTimeout = 30 * time.Second
	c.Engine.AxeScriptPath = "axe.min.js"
	c.Engine.Tags = []string{"wcag2a", "wcag2aa", "wcag2aaa"}
	c.Engine.Timeout = 60 * time.Second
	c.Scanner.Workers = 4
	c.Scanner.QueueSize = 64
	c.Scheduler.Enabled = true
	c.Scheduler.Interval = 5 * time.Minute
	c.Scheduler.RunTimeout = 10 * time.Minute
	c.SMTP.Port = 587
	c.SMTP.Timeout = 15 * time.Second
	c.Reports.LinkExpiry = 7 * 24 * time.Hour
	c.Reports.AnalyticsDays = 30
	c.Reports.Brand = "Lucy"
	return &c
}

// Load baca .env, config.yaml (opsional) lalu override dari environment.
func Load(path string) (*Config, error) {
	// .env opsional, variabel yang sudah ada tidak ditimpa
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	set := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	set("LUCY_DB_DRIVER", &c.Database.Driver)
	set("LUCY_DB_DSN", &c.Database.DSN)
	set("LUCY_DB_PASSWORD", &c.Database.Password)
	set("LUCY_MINIO_SECRET_KEY", &c.Minio.SecretKey)
	set("LUCY_SMTP_PASSWORD", &c.SMTP.Password)
	set("LUCY_LOG_LEVEL", &c.Log.Level)
	if v := os.Getenv("LUCY_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
}

// Validate cek kombinasi yang tidak masuk akal
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "mysql", "postgres":
		if c.Database.DSN == "" && c.Database.Host == "" {
			errs = append(errs, fmt.Errorf("database.host is required for %s", c.Database.Driver))
		}
	case "sqlite":
		if c.Database.DSN == "" && c.Database.Path == "" {
			errs = append(errs, errors.New("database.path is required for sqlite"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown database.driver %q", c.Database.Driver))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Scanner.Workers <= 0 {
		errs = append(errs, errors.New("scanner.workers must be positive"))
	}
	if c.Scanner.QueueSize < 0 {
		errs = append(errs, errors.New("scanner.queueSize must not be negative"))
	}
	if c.Minio.Enabled && (c.Minio.Endpoint == "" || c.Minio.BucketName == "") {
		errs = append(errs, errors.New("minio.endpoint and minio.bucketName are required when minio is enabled"))
	}
	if c.SMTP.Host != "" && c.SMTP.From == "" {
		errs = append(errs, errors.New("smtp.from is required when smtp.host is set"))
	}
	seen := map[string]bool{}
	for i, o := range c.Owners {
		if o.ID == "" || o.APIKey == "" || o.Email == "" {
			errs = append(errs, fmt.Errorf("owners[%d]: id, email and apiKey are required", i))
			continue
		}
		if seen[o.APIKey] {
			errs = append(errs, fmt.Errorf("owners[%d]: duplicate apiKey", i))
		}
		seen[o.APIKey] = true
	}
	return errors.Join(errs...)
}

// Addr listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	if c.Database.DSN != "" {
		return c.Database.DSN
	}
	port := c.Database.Port
	if port == 0 {
		port = 3306
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC&multiStatements=true&clientFoundRows=true",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		port,
		c.Database.Name,
	)
}

// Helper untuk build DSN Postgres (URL form)
func (c *Config) PostgresDSN() string {
	if c.Database.DSN != "" {
		return c.Database.DSN
	}
	port := c.Database.Port
	if port == 0 {
		port = 5432
	}
	sslMode := c.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Database.User, c.Database.Password),
		Host:     fmt.Sprintf("%s:%d", c.Database.Host, port),
		Path:     "/" + c.Database.Name,
		RawQuery: "sslmode=" + url.QueryEscape(sslMode),
	}
	return u.String()
}

// SQLiteDSN file path, or ":memory:"
func (c *Config) SQLiteDSN() string {
	if c.Database.DSN != "" {
		return c.Database.DSN
	}
	return c.Database.Path
}
