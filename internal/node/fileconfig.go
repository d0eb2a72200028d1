package node

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/rmacdonaldsmith/quasar-go/internal/identity"
	"github.com/rmacdonaldsmith/quasar-go/internal/logging"
)

const (
	// DefaultListenPort is the default peer transport port
	DefaultListenPort = "5274"
	// DefaultControlPort is the default control API port
	DefaultControlPort = "5275"
	// ConfigFileName is the name of the config file inside the data directory
	ConfigFileName = "config.yaml"
)

// FileConfig is the on-disk daemon configuration
type FileConfig struct {
	DataDir string `yaml:"data_dir"`

	PrivateKeyPath    string `yaml:"private_key_path"`
	IdentityNoncePath string `yaml:"identity_nonce_path"`
	IdentityProofPath string `yaml:"identity_proof_path"`

	ListenAddress    string   `yaml:"listen_address"`
	AdvertiseAddress string   `yaml:"advertise_address,omitempty"`
	Bootstrap        []string `yaml:"bootstrap"`

	// TestNetworkEnabled lowers the proof-of-work difficulty
	TestNetworkEnabled bool `yaml:"test_network_enabled"`

	ControlEnabled bool   `yaml:"control_enabled"`
	ControlPort    string `yaml:"control_port"`
	ControlSecret  string `yaml:"control_secret,omitempty"`

	Log logging.Config `yaml:"log"`
}

// DefaultFileConfig returns the configuration written on first run
func DefaultFileConfig(dataDir string) FileConfig {
	return FileConfig{
		DataDir:           dataDir,
		PrivateKeyPath:    filepath.Join(dataDir, "quasar.key"),
		IdentityNoncePath: filepath.Join(dataDir, "nonce"),
		IdentityProofPath: filepath.Join(dataDir, "proof"),
		ListenAddress:     ":" + DefaultListenPort,
		Bootstrap:         []string{},
		ControlEnabled:    true,
		ControlPort:       DefaultControlPort,
		Log: logging.Config{
			Level: "info",
			File:  filepath.Join(dataDir, "quasar.log"),
		},
	}
}

// DefaultDataDir returns ~/.config/quasar
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".quasar"
	}
	return filepath.Join(home, ".config", "quasar")
}

// LoadFileConfig reads <dataDir>/config.yaml, writing the defaults first when
// the file does not exist. created reports whether it was written.
func LoadFileConfig(dataDir string) (cfg FileConfig, created bool, err error) {
	path := filepath.Join(dataDir, ConfigFileName)
	cfg = DefaultFileConfig(dataDir)

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		if err := cfg.Save(path); err != nil {
			return FileConfig{}, false, err
		}
		return cfg, true, nil
	}
	if err != nil {
		return FileConfig{}, false, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return FileConfig{}, false, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, false, nil
}

// Save writes the configuration as YAML
func (c FileConfig) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// IdentityOptions returns the difficulty selected by TestNetworkEnabled
func (c FileConfig) IdentityOptions() []identity.Option {
	if c.TestNetworkEnabled {
		return []identity.Option{identity.WithDifficulty(identity.TestnetDifficulty)}
	}
	return []identity.Option{identity.WithDifficulty(identity.DefaultDifficulty)}
}

// IdentityStore returns where the solved nonce and proof live
func (c FileConfig) IdentityStore() identity.Store {
	return identity.Store{NoncePath: c.IdentityNoncePath, ProofPath: c.IdentityProofPath}
}
