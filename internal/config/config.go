package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env            string        `mapstructure:"ENV"`
	Port           string        `mapstructure:"PORT"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	AdminKey       string        `mapstructure:"ADMIN_KEY"`
	CORSAllowed    string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`

	RoutingRulesFile string `mapstructure:"ROUTING_RULES_FILE"`

	AutoReturnEnabled  bool          `mapstructure:"AUTO_RETURN_ENABLED"`
	AutoReturnAfter    time.Duration `mapstructure:"AUTO_RETURN_AFTER"`
	AutoReturnSchedule string        `mapstructure:"AUTO_RETURN_SCHEDULE"`
	AutoReturnActor    string        `mapstructure:"AUTO_RETURN_ACTOR"`
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("ADMIN_KEY", "")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("ROUTING_RULES_FILE", "")
	v.SetDefault("AUTO_RETURN_ENABLED", false)
	v.SetDefault("AUTO_RETURN_AFTER", "24h")
	v.SetDefault("AUTO_RETURN_SCHEDULE", "@every 5m")
	v.SetDefault("AUTO_RETURN_ACTOR", "system")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ClientConfig is the environment of the taskctl command line tool.
type ClientConfig struct {
	APIURL   string `mapstructure:"SECOPS_API_URL"`
	AdminKey string `mapstructure:"SECOPS_ADMIN_KEY"`
	User     string `mapstructure:"SECOPS_USER"`
	LogLevel string `mapstructure:"LOG_LEVEL"`
}

func LoadClient() (ClientConfig, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	v.SetDefault("SECOPS_API_URL", "http://localhost:8080/api")
	v.SetDefault("SECOPS_ADMIN_KEY", "")
	v.SetDefault("SECOPS_USER", "")
	v.SetDefault("LOG_LEVEL", "warn")

	var cfg ClientConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}
