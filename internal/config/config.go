package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds the configuration for the application.
type Config struct {
	DB struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"db"`
	Agent struct {
		AdminURL string `mapstructure:"admin_url"`
		APIKey   string `mapstructure:"api_key"`
	} `mapstructure:"agent"`
	Scheduler struct {
		// Resweep is a cron expression; pending workflows are re-driven on
		// this schedule so restarts pick up where the rows left off.
		Resweep string `mapstructure:"resweep"`
	} `mapstructure:"scheduler"`
	TLS struct {
		Enable    bool     `mapstructure:"enable"`
		CertFile  string   `mapstructure:"cert_file"`
		KeyFile   string   `mapstructure:"key_file"`
		Hostnames []string `mapstructure:"hostnames"`
	} `mapstructure:"tls"`
}

// LoadConfig loads the configuration from a file and the environment.
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}
	viper.AutomaticEnv()
	viper.SetDefault("db.sslmode", "disable")
	viper.SetDefault("scheduler.resweep", "@every 1m")

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Agent.AdminURL = normalizeAdminURL(config.Agent.AdminURL)

	return &config, nil
}

// normalizeAdminURL puts the agent admin URL in a predictable form by
// stripping any trailing slash, so users can paste the URL straight from
// their agent deployment notes.
func normalizeAdminURL(input string) string {
	u := strings.TrimSpace(input)
	return strings.TrimRight(u, "/")
}
