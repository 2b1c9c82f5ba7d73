package config

import (
	"strings"

	"github.com/jabberwocky238/netstream/common/errors"

	"github.com/BurntSushi/toml"
)

// ParseConfig 从文件解析配置
func ParseConfig(path string) (*Config, error) {
	var cfg Config
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if err := check(&cfg, meta); err != nil {
		return nil, errors.TraceMsg(err, path)
	}
	return &cfg, nil
}

// ParseConfigFromString 从字符串解析配置
func ParseConfigFromString(text string) (*Config, error) {
	var cfg Config
	meta, err := toml.Decode(text, &cfg)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if err := check(&cfg, meta); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func check(cfg *Config, meta toml.MetaData) error {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return errors.Tracef("unknown keys: %s", strings.Join(keys, ", "))
	}

	cfg.Socket.Protocol = strings.ToLower(cfg.Socket.Protocol)
	switch cfg.Socket.Protocol {
	case "", "tcp", "udp":
	default:
		return errors.Tracef("unknown protocol %q", cfg.Socket.Protocol)
	}
	if cfg.Socket.Backlog < 0 || cfg.Socket.MaxWorkers < 0 || cfg.Socket.BufferSize < 0 || cfg.Socket.MaxRecordSize < 0 {
		return errors.TraceNew("Backlog, MaxWorkers, BufferSize and MaxRecordSize must not be negative")
	}
	for _, port := range cfg.Socket.TLSPorts {
		if port <= 0 || port > 0xffff {
			return errors.Tracef("TLS port %d out of range", port)
		}
	}
	return nil
}
