package config

import (
	"log"
	"time"

	"gopkg.in/yaml.v3"

	"mailcore/pkg/config"
)

type SMTPConfig struct {
	Helo           string `yaml:"helo"`
	Port           int    `yaml:"port"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type DKIMConfig struct {
	Domain   string `yaml:"domain"`
	Selector string `yaml:"selector"`
	KeyFile  string `yaml:"key_file"`
}

type RspamdConfig struct {
	URL            string `yaml:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type ClamAVConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Addr           string `yaml:"addr"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type OutboundConfig struct {
	Workers           int `yaml:"workers"`
	RatePerSecond     int `yaml:"rate_per_second"`
	JobTimeoutSeconds int `yaml:"job_timeout_seconds"`
}

type InboundConfig struct {
	Workers int `yaml:"workers"`
}

type DNSConfig struct {
	MXCacheTTLSeconds int `yaml:"mx_cache_ttl_seconds"`
}

type Config struct {
	DB       config.DBConfig     `yaml:"db"`
	MQ       config.MQConfig     `yaml:"mq"`
	Redis    config.RedisConfig  `yaml:"redis"`
	Server   config.ServerConfig `yaml:"server"`
	SMTP     SMTPConfig          `yaml:"smtp"`
	DKIM     DKIMConfig          `yaml:"dkim"`
	Rspamd   RspamdConfig        `yaml:"rspamd"`
	ClamAV   ClamAVConfig        `yaml:"clamav"`
	Outbound OutboundConfig      `yaml:"outbound"`
	Inbound  InboundConfig       `yaml:"inbound"`
	DNS      DNSConfig           `yaml:"dns"`
}

func (c *SMTPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c *RspamdConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c *ClamAVConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c *OutboundConfig) JobTimeout() time.Duration {
	return time.Duration(c.JobTimeoutSeconds) * time.Second
}

func (c *DNSConfig) MXCacheTTL() time.Duration {
	return time.Duration(c.MXCacheTTLSeconds) * time.Second
}

func Load() *Config {
	env := config.GetConfigEnv()
	configDir := config.GetEnv("CONFIG_DIR", "config")

	cfgMap, err := config.LoadConfig(env, configDir)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	var cfg Config
	cfgData, err := yaml.Marshal(cfgMap)
	if err != nil {
		log.Fatalf("failed to marshal config: %v", err)
	}
	if err := yaml.Unmarshal(cfgData, &cfg); err != nil {
		log.Fatalf("failed to unmarshal config: %v", err)
	}

	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideServerFromEnv(&cfg.Server)

	return &cfg
}
