package dbpool

import (
	"os"
	"time"

	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"
)

// TargetConfig 一个数据库目标的连接池配置，时间都是秒
type TargetConfig struct {
	Key     string  `yaml:"key"`
	Driver  string  `yaml:"driver"`
	DSN     string  `yaml:"dsn"`
	MaxSize int     `yaml:"maxsize"`
	MaxWait float64 `yaml:"maxwait"`
	Expires float64 `yaml:"expires"`
	Cleanup float64 `yaml:"cleanup"`
}

// PoolConfig 把目标配置换算成池配置。maxsize 没配就用缺省值。
func (t TargetConfig) PoolConfig(factory ConnectionFactory) Config {
	cfg := Config{
		MaxSize: t.MaxSize,
		MaxWait: seconds(t.MaxWait),
		Expires: seconds(t.Expires),
		Cleanup: seconds(t.Cleanup),
		Factory: factory,
	}
	if cfg.MaxSize == 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	return cfg
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// FileConfig 配置文件的顶层结构
type FileConfig struct {
	Targets []TargetConfig `yaml:"targets"`
}

// Parse 解析 yaml 配置
func (c *FileConfig) Parse(data []byte) error {
	if err := yaml.Unmarshal(data, c); err != nil {
		return xerrors.Errorf("parse pool config: %w", err)
	}
	for i, t := range c.Targets {
		if t.Key == "" {
			return xerrors.Errorf("parse pool config: target %d has no key", i)
		}
	}
	return nil
}

// Target 按键找目标配置
func (c *FileConfig) Target(key string) (TargetConfig, bool) {
	for _, t := range c.Targets {
		if t.Key == key {
			return t, true
		}
	}
	return TargetConfig{}, false
}

// LoadConfig 从 yaml 文件读目标配置
func LoadConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c FileConfig
	if err := c.Parse(data); err != nil {
		return nil, err
	}
	return &c, nil
}
