package config

import (
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config defines the app configuration.
type Config struct {
	Server struct {
		Port int    `yaml:"port" env:"PORT" env-default:"4000"`
		Env  string `yaml:"env" env:"ENV" env-default:"development"`

		ReadTimeout     time.Duration `yaml:"read_timeout" env:"READTIMEOUT" env-default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITETIMEOUT" env-default:"30s"`
		IdleTimeout     time.Duration `yaml:"idle_timeout" env:"IDLETIMEOUT" env-default:"1m"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWNTIMEOUT" env-default:"5s"`
	} `yaml:"server"`
	Database struct {
		DSN          string `yaml:"dsn" env:"DSN"`
		MaxOpenConns int    `yaml:"max_open_conns" env:"MAXOPENCONNS" env-default:"25"`
		MaxIdleConns int    `yaml:"max_idle_conns" env:"MAXIDLECONNS" env-default:"25"`
		MaxIdleTime  string `yaml:"max_idle_time" env:"MAXIDLETIME" env-default:"15m"`
	} `yaml:"database"`
	SMTP struct {
		Host     string `yaml:"host" env:"SMTPHOST"`
		Port     int    `yaml:"port" env:"SMTPPORT" env-default:"25"`
		Username string `yaml:"username" env:"SMTPUSERNAME"`
		Password string `yaml:"password" env:"SMTPPASSWORD"`
		Sender   string `yaml:"sender" env:"SMTPSENDER" env-default:"Circulation <no-reply@circulation.local>"`
	} `yaml:"smtp"`
	S3 struct {
		AccessKeyID     string `yaml:"access_key_id" env:"ACCESSKEYID"`
		SecretAccessKey string `yaml:"secret_access_key" env:"SECRETACCESSKEY"`
		Region          string `yaml:"region" env:"REGION"`
		Bucket          string `yaml:"bucket" env:"BUCKET"`
	} `yaml:"s3"`
	Limiter struct {
		RPS     float64 `yaml:"rps" env:"RPS" env-default:"4"`
		Burst   int     `yaml:"burst" env:"BURST" env-default:"8"`
		Enabled bool    `yaml:"enabled" env:"LENABLED" env-default:"true"`
	} `yaml:"limiter"`
	Cors struct {
		TrustedOrigins []string `yaml:"trusted_origins" env:"TRUSTEDORIGINS" env-separator:" "`
	} `yaml:"cors"`
	Metrics struct {
		Enabled bool `yaml:"enabled" env:"MENABLED"`
	} `yaml:"metrics"`
	BasicAuth struct {
		Username string `yaml:"username" env:"USERNAME"`
		Password string `yaml:"password" env:"PASSWORD"`
	} `yaml:"basic_auth"`
	Loans struct {
		Period time.Duration `yaml:"period" env:"LOANPERIOD" env-default:"336h"`
	} `yaml:"loans"`
	Reminders struct {
		Enabled  bool          `yaml:"enabled" env:"RENABLED"`
		Interval time.Duration `yaml:"interval" env:"RINTERVAL" env-default:"24h"`
	} `yaml:"reminders"`
	Cache struct {
		DashboardTTL time.Duration `yaml:"dashboard_ttl" env:"DASHBOARDTTL" env-default:"1m"`
	} `yaml:"cache"`
}

// Decode reads the configuration from the yaml file at path and then applies
// environment overrides. With an empty path only the environment is read.
func Decode(path string) (Config, error) {
	var cfg Config
	if path == "" {
		err := cleanenv.ReadEnv(&cfg)
		return cfg, err
	}
	err := cleanenv.ReadConfig(path, &cfg)
	return cfg, err
}

// SMTPEnabled reports whether enough SMTP settings are present to send mail.
func (c Config) SMTPEnabled() bool {
	return c.SMTP.Host != ""
}

// S3Enabled reports whether a bucket is configured for cover uploads.
func (c Config) S3Enabled() bool {
	return c.S3.Bucket != "" && c.S3.Region != ""
}
