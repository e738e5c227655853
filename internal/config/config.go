// Package config loads the optional YAML configuration file for the
// cmd/sshd wrapper. The core ssh library itself takes no dependency on
// this package or on YAML; configuration of the engine is always
// programmatic Set calls.
package config

import (
	"os"

	"gopkg.in/yaml.v2"
)

// File is the on-disk shape of an optional sshd config file. Every
// field mirrors an sshd command-line flag; a flag explicitly set on
// the command line always overrides the value loaded here.
type File struct {
	Address     string   `yaml:"address"`
	Port        int      `yaml:"port"`
	Banner      string   `yaml:"banner"`
	RSAHostKey  string   `yaml:"rsa_host_key"`
	DSAHostKey  string   `yaml:"dsa_host_key"`
	MaxSessions int      `yaml:"max_sessions"`
	KexAlgos    []string `yaml:"kex_algorithms"`
	Ciphers     []string `yaml:"ciphers"`
	MACs        []string `yaml:"macs"`
	DNSServer   string   `yaml:"dns_server"`
	MetricsAddr string   `yaml:"metrics_address"`
}

// Load reads and parses a YAML config file. A missing path is not an
// error: Load returns a zero File so flag defaults apply untouched.
func Load(path string) (*File, error) {
	if path == "" {
		return &File{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &File{}, nil
		}
		return nil, err
	}
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	return &f, nil
}
