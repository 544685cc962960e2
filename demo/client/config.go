package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Config is the demo harness's connection configuration, loaded from a
// TOML file the way fho-rspamd-iscan's internal/config loads its
// rspamd-iscan.toml: a flat struct unmarshalled directly, plus
// SetDefaults/Validate steps that LoadConfig runs.
type Config struct {
	Host           string
	Port           int
	TLS            bool
	InsecureSkipTLSVerify bool
	Username       string
	Password       string
	Mailbox        string
	IdleTimeoutSec int
}

func (c *Config) String() string {
	pass := "UNSET"
	if c.Password != "" {
		pass = "***"
	}
	return fmt.Sprintf("Host:%-30s Port:%-6d TLS:%-5v User:%-20s Password:%-5s Mailbox:%-10s IdleTimeoutSec:%d",
		c.Host, c.Port, c.TLS, c.Username, pass, c.Mailbox, c.IdleTimeoutSec)
}

// LoadConfig reads and parses a TOML config file.
func LoadConfig(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := toml.Unmarshal(buf, &c); err != nil {
		return nil, err
	}
	c.SetDefaults()
	return &c, c.Validate()
}

// SetDefaults fills in zero-valued fields with the demo harness's
// sensible defaults.
func (c *Config) SetDefaults() {
	if c.Port == 0 {
		if c.TLS {
			c.Port = 993
		} else {
			c.Port = 143
		}
	}
	if c.Mailbox == "" {
		c.Mailbox = "INBOX"
	}
	if c.IdleTimeoutSec == 0 {
		c.IdleTimeoutSec = 25 * 60
	}
}

// Validate reports whether the config has enough to attempt a connection.
func (c *Config) Validate() error {
	if c.Host == "" {
		return errors.New("Host must be set")
	}
	if c.Username == "" {
		return errors.New("Username must be set")
	}
	return nil
}
