package coremain

import (
	"github.com/pmkol/gaicached/mlog"
)

type Config struct {
	Log      mlog.LogConfig `yaml:"log"`
	Cache    CacheConfig    `yaml:"cache"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Servers  []ServerConfig `yaml:"servers"`
	API      APIConfig      `yaml:"api"`
}

type CacheConfig struct {
	// TTL of cached resolve results. (ms) Default is 1000.
	TTL int `yaml:"ttl"`

	// DeferQueueSize bounds the deferred reclamation queue.
	// Default is 1000.
	DeferQueueSize int `yaml:"defer_queue_size"`
}

type UpstreamConfig struct {
	// Addr is the upstream DNS server "host:port". Required.
	Addr string `yaml:"addr"`

	// Timeout. (sec) Default is 5.
	Timeout uint `yaml:"timeout"`
}

type ServerConfig struct {
	// Protocol, can be:
	// "", "udp" -> udp
	// "tcp" -> tcp
	Protocol string `yaml:"protocol"`

	// Addr: server "host:port" addr. Cannot be empty.
	Addr string `yaml:"addr"`

	Timeout     uint `yaml:"timeout"`      // (sec) query timeout.
	IdleTimeout uint `yaml:"idle_timeout"` // (sec) tcp connection idle timeout.
	ReplyTTL    uint `yaml:"reply_ttl"`    // TTL of synthesized answers.
}

type APIConfig struct {
	HTTP string `yaml:"http"`
}

func defaultConfig() *Config {
	return &Config{
		Cache: CacheConfig{
			TTL:            1000,
			DeferQueueSize: 1000,
		},
		Upstream: UpstreamConfig{
			Addr:    "127.0.0.1:53",
			Timeout: 5,
		},
		Servers: []ServerConfig{
			{Protocol: "udp", Addr: "127.0.0.1:5533"},
			{Protocol: "tcp", Addr: "127.0.0.1:5533"},
		},
	}
}
