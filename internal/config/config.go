// Package config предоставляет структуры и функцию для парсинга и загрузки конфига
package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек
type Config struct {
	Env                     string `yaml:"env"`
	StorageConnectionString string `yaml:"storage_connection_string"`
	InternalSecret          string `yaml:"internal_secret" env:"INTERNAL_EDGE_SECRET"`
	RedisConnection         `yaml:"redis_connection"`
	HTTPServer              `yaml:"http_server"`
	AppleVerification       `yaml:"apple_verification"`
	IdentitySync            `yaml:"identity_sync"`
	AMQPConnection          `yaml:"amqp_connection"`
	Sweeper                 `yaml:"sweeper"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// RedisConnection структура для настройки подключения к redis
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis"`
	Password     string        `yaml:"password"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	TimeoutRedis time.Duration `yaml:"timeoutredis"`
}

// AppleVerification структура для настройки клиента проверки чеков App Store.
// SandboxURL используется только при ответе 21007 от основного окружения.
type AppleVerification struct {
	PrimaryURL   string        `yaml:"primary_url"`
	SandboxURL   string        `yaml:"sandbox_url"`
	SharedSecret string        `yaml:"shared_secret" env:"APPLE_SHARED_SECRET"`
	TimeoutApple time.Duration `yaml:"timeoutapple"`
}

// IdentitySync структура для настройки зеркалирования метаданных подписки
// во внешнее хранилище учётных записей. По умолчанию выключено.
type IdentitySync struct {
	SyncAuthMetadata bool          `yaml:"sync_auth_metadata" env:"SYNC_AUTH_METADATA"`
	BaseURL          string        `yaml:"base_url"`
	ServiceSecret    string        `yaml:"service_secret" env:"IDENTITY_SERVICE_SECRET"`
	TokenTTL         time.Duration `yaml:"token_ttl"`
}

// AMQPConnection структура для настройки подключения к RabbitMQ
type AMQPConnection struct {
	AMQPURL        string        `yaml:"amqp_url"`
	AMQPMaxRetries int           `yaml:"amqp_max_retries"`
	AMQPRetryDelay time.Duration `yaml:"amqp_retry_delay"`
}

// Sweeper структура для настройки фонового обхода истёкших подписок
type Sweeper struct {
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// MustLoad функция для загрузки конфига, возвращает конфиг, прочитанный из файла по пути CONFIG_PATH
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("file: %s - does not exist", configPath)
	}
	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return &cfg
}

func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"StorageConnectionString: %s\n"+
			"RedisConnection:\n"+
			"  Addr: %s\n"+
			"  User: %s\n"+
			"  DB: %d\n"+
			"  MaxRetries: %d\n"+
			"  DialTimeout: %s\n"+
			"  Timeout: %s\n"+
			"HTTPServer:\n"+
			"  Address: %s\n"+
			"  Timeout: %s\n"+
			"  IdleTimeout: %s\n"+
			"AppleVerification:\n"+
			"  PrimaryURL: %s\n"+
			"  SandboxURL: %s\n"+
			"  Timeout: %s\n"+
			"IdentitySync:\n"+
			"  SyncAuthMetadata: %t\n"+
			"  BaseURL: %s\n"+
			"  TokenTTL: %s\n"+
			"AMQPConnection:\n"+
			"  URL: %s\n"+
			"  MaxRetries: %d\n"+
			"  RetryDelay: %s\n"+
			"Sweeper:\n"+
			"  Interval: %s\n",
		c.Env,
		c.StorageConnectionString,
		c.AddressRedis,
		c.User,
		c.DB,
		c.MaxRetries,
		c.DialTimeout,
		c.TimeoutRedis,
		c.AddressHTTP,
		c.TimeoutHTTP,
		c.IdleTimeout,
		c.PrimaryURL,
		c.SandboxURL,
		c.TimeoutApple,
		c.SyncAuthMetadata,
		c.BaseURL,
		c.TokenTTL,
		c.AMQPURL,
		c.AMQPMaxRetries,
		c.AMQPRetryDelay,
		c.SweepInterval,
	)
}
