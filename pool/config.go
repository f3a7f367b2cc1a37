package pool

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config describes a pool either by an explicit node list or by a genesis
// file. Nodes win when both are given.
type Config struct {
	Name    string        `mapstructure:"name"`
	Genesis string        `mapstructure:"genesis"`
	Nodes   []Node        `mapstructure:"nodes"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LoadConfig reads a pool config file in any format viper understands.
func LoadConfig(file string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(file)
	v.SetDefault("name", "default")
	v.SetDefault("timeout", DefaultTimeout)
	v.SetEnvPrefix("LEDGER_POOL")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "read pool config %s", file)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrapf(err, "decode pool config %s", file)
	}

	if cfg.Genesis != "" && !filepath.IsAbs(cfg.Genesis) {
		cfg.Genesis = filepath.Join(filepath.Dir(file), cfg.Genesis)
	}

	return cfg, nil
}

// Open builds a pool handle from the config.
func (c *Config) Open(opts ...Option) (*Pool, error) {
	nodes := c.Nodes

	if len(nodes) == 0 {
		if c.Genesis == "" {
			return nil, errors.Errorf("pool %s: config names neither nodes nor genesis", c.Name)
		}

		f, err := os.Open(c.Genesis)
		if err != nil {
			return nil, errors.Wrap(err, "open genesis")
		}
		defer f.Close()

		nodes, err = ReadGenesis(f)
		if err != nil {
			return nil, err
		}
	}

	if c.Timeout > 0 {
		opts = append([]Option{WithTimeout(c.Timeout)}, opts...)
	}

	return New(c.Name, nodes, opts...)
}
