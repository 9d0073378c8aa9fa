package network

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config mirrors the network configuration file. Connection settings may be
// overridden from the environment so the file can stay secret-free.
type Config struct {
	Switch            SwitchConfig   `yaml:"switch"`
	ServerPortMapping map[string]int `yaml:"server_port_mapping"`
	VLAN              VLANConfig     `yaml:"vlan"`
}

// SwitchConfig holds the SSH connection settings for the access switch.
type SwitchConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// VLANConfig drives VLAN derivation for provisioned batches.
type VLANConfig struct {
	BaseID            int    `yaml:"base_id"`
	NamePrefix        string `yaml:"name_prefix"`
	DescriptionPrefix string `yaml:"description_prefix"`
}

// LoadConfig reads and strictly decodes the network configuration file.
// Unknown keys are an error, which catches typos in port mappings early.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open network config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse network config %s: %w", path, err)
	}
	if cfg.Switch.Port == 0 {
		cfg.Switch.Port = 22
	}
	return &cfg, nil
}

// Override replaces connection settings with any non-empty values, letting
// environment variables win over the file.
func (c *Config) Override(host, username, password string) {
	if host != "" {
		c.Switch.Host = host
	}
	if username != "" {
		c.Switch.Username = username
	}
	if password != "" {
		c.Switch.Password = password
	}
}

// Validate checks that the switch is reachable on paper before the first
// batch tries to configure it.
func (c *Config) Validate() error {
	if c.Switch.Host == "" {
		return fmt.Errorf("switch host is not configured")
	}
	if c.Switch.Username == "" || c.Switch.Password == "" {
		return fmt.Errorf("switch credentials are not configured")
	}
	if c.VLAN.BaseID < 1 || c.VLAN.BaseID > 4094 {
		return fmt.Errorf("vlan base_id %d out of range 1-4094", c.VLAN.BaseID)
	}
	return nil
}
