package core

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

const (
	BaseDirName    = ".config/migmon"
	ConfigFileName = "migmon.hcl"
	JournalName    = "journal.db"
)

// Config is the global configuration instance
var Config *Configuration

// Configuration represents the complete migmon configuration.
// It is loaded once at startup and never mutated afterwards; changing
// the config file requires a monitor restart.
type Configuration struct {
	ConfigPath string // Directory containing config files
	Verbose    int    // Verbosity level

	Server     ServerConfig
	Paths      PathsConfig
	Monitoring MonitoringConfig
	RPC        RPCConfig
	Bot        BotConfig

	// Account is the signer account the bot submits from. Resolved from
	// .env/environment at startup, required.
	Account string
}

// ServerConfig describes how to reach the host the bot runs on.
type ServerConfig struct {
	Host           string        // Hostname or IP of the remote server
	Port           int           // SSH port
	User           string        // SSH user; empty means current user
	IdentityFile   string        // Optional private key path (agent is tried first)
	KnownHostsFile string        // Optional known_hosts path; empty disables host key checking
	SSHTimeout     time.Duration // Default per-command timeout
}

// PathsConfig collects the file locations the monitor touches.
type PathsConfig struct {
	RemoteLog string // Bot output on the remote host (append-only)
	LocalLog  string // Local human-readable monitor log
	LockFile  string // Instance lock path
	SeedFile  string // Short-lived seed handoff file on the remote host
	Journal   string // Local sqlite event journal
}

// MonitoringConfig controls the supervision loop.
type MonitoringConfig struct {
	CheckInterval time.Duration // Time between polling ticks
	MaxStalls     int           // Restart the bot after this many no-progress ticks
	JokeMarker    string        // Delimiter marking forwardable payloads in the bot log
}

// RPCConfig describes the node RPC endpoint, as seen from the remote host.
type RPCConfig struct {
	HTTPEndpoint string
}

// BotConfig describes the bot binary on the remote host.
type BotConfig struct {
	Binary string // Path to the bot binary, relative to the remote home dir
	Args   string // Arguments passed verbatim on launch
}

// ProcessName returns the name used to find bot processes with pgrep/pkill.
func (b BotConfig) ProcessName() string {
	return filepath.Base(b.Binary)
}

// HCL parsing structs

type hclConfig struct {
	Verbose    int            `hcl:"verbose,optional"`
	Server     *hclServer     `hcl:"server,block"`
	Paths      *hclPaths      `hcl:"paths,block"`
	Monitoring *hclMonitoring `hcl:"monitoring,block"`
	RPC        *hclRPC        `hcl:"rpc,block"`
	Bot        *hclBot        `hcl:"bot,block"`
}

type hclServer struct {
	Host           string `hcl:"host,optional"`
	Port           int    `hcl:"port,optional"`
	User           string `hcl:"user,optional"`
	IdentityFile   string `hcl:"identity_file,optional"`
	KnownHostsFile string `hcl:"known_hosts_file,optional"`
	SSHTimeout     string `hcl:"ssh_timeout,optional"`
}

type hclPaths struct {
	RemoteLog string `hcl:"remote_log,optional"`
	LocalLog  string `hcl:"local_log,optional"`
	LockFile  string `hcl:"lock_file,optional"`
	SeedFile  string `hcl:"seed_file,optional"`
	Journal   string `hcl:"journal,optional"`
}

type hclMonitoring struct {
	CheckInterval string `hcl:"check_interval,optional"`
	MaxStalls     int    `hcl:"max_stalls,optional"`
	JokeMarker    string `hcl:"joke_marker,optional"`
}

type hclRPC struct {
	HTTPEndpoint string `hcl:"http_endpoint,optional"`
}

type hclBot struct {
	Binary string `hcl:"binary,optional"`
	Args   string `hcl:"args,optional"`
}

// LoadConfig loads the HCL configuration file and returns a Configuration
// struct with defaults applied. A missing config file is not an error; the
// defaults describe the standard Westend migration setup.
func LoadConfig(configPath string) (*Configuration, error) {
	cfg := GetDefaultConfig()
	cfg.ConfigPath = configPath

	filename := filepath.Join(configPath, ConfigFileName)
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		applyEnvOverrides(cfg)
		return cfg, nil
	}

	var hclCfg hclConfig
	if err := hclsimple.DecodeFile(filename, nil, &hclCfg); err != nil {
		return nil, fmt.Errorf("failed to parse HCL config: %w", err)
	}

	cfg.Verbose = hclCfg.Verbose

	if hclCfg.Server != nil {
		if hclCfg.Server.Host != "" {
			cfg.Server.Host = hclCfg.Server.Host
		}
		if hclCfg.Server.Port != 0 {
			cfg.Server.Port = hclCfg.Server.Port
		}
		if hclCfg.Server.User != "" {
			cfg.Server.User = hclCfg.Server.User
		}
		if hclCfg.Server.IdentityFile != "" {
			cfg.Server.IdentityFile = hclCfg.Server.IdentityFile
		}
		if hclCfg.Server.KnownHostsFile != "" {
			cfg.Server.KnownHostsFile = hclCfg.Server.KnownHostsFile
		}
		if hclCfg.Server.SSHTimeout != "" {
			d, err := time.ParseDuration(hclCfg.Server.SSHTimeout)
			if err != nil {
				return nil, fmt.Errorf("invalid server.ssh_timeout: %w", err)
			}
			cfg.Server.SSHTimeout = d
		}
	}

	if hclCfg.Paths != nil {
		if hclCfg.Paths.RemoteLog != "" {
			cfg.Paths.RemoteLog = hclCfg.Paths.RemoteLog
		}
		if hclCfg.Paths.LocalLog != "" {
			cfg.Paths.LocalLog = hclCfg.Paths.LocalLog
		}
		if hclCfg.Paths.LockFile != "" {
			cfg.Paths.LockFile = hclCfg.Paths.LockFile
		}
		if hclCfg.Paths.SeedFile != "" {
			cfg.Paths.SeedFile = hclCfg.Paths.SeedFile
		}
		if hclCfg.Paths.Journal != "" {
			cfg.Paths.Journal = hclCfg.Paths.Journal
		}
	}

	if hclCfg.Monitoring != nil {
		if hclCfg.Monitoring.CheckInterval != "" {
			d, err := time.ParseDuration(hclCfg.Monitoring.CheckInterval)
			if err != nil {
				return nil, fmt.Errorf("invalid monitoring.check_interval: %w", err)
			}
			cfg.Monitoring.CheckInterval = d
		}
		if hclCfg.Monitoring.MaxStalls != 0 {
			cfg.Monitoring.MaxStalls = hclCfg.Monitoring.MaxStalls
		}
		if hclCfg.Monitoring.JokeMarker != "" {
			cfg.Monitoring.JokeMarker = hclCfg.Monitoring.JokeMarker
		}
	}

	if hclCfg.RPC != nil && hclCfg.RPC.HTTPEndpoint != "" {
		cfg.RPC.HTTPEndpoint = hclCfg.RPC.HTTPEndpoint
	}

	if hclCfg.Bot != nil {
		if hclCfg.Bot.Binary != "" {
			cfg.Bot.Binary = hclCfg.Bot.Binary
		}
		if hclCfg.Bot.Args != "" {
			cfg.Bot.Args = hclCfg.Bot.Args
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides applies environment variables that override the config
// file. Only SERVER is supported; secrets are handled separately.
func applyEnvOverrides(cfg *Configuration) {
	if server := os.Getenv("SERVER"); server != "" {
		cfg.Server.Host = server
	}
}

// GetDefaultConfig returns a Configuration with default values
func GetDefaultConfig() *Configuration {
	homeDir, _ := os.UserHomeDir()
	return &Configuration{
		Server: ServerConfig{
			Host:       "devbox",
			Port:       22,
			SSHTimeout: 30 * time.Second,
		},
		Paths: PathsConfig{
			RemoteLog: "/tmp/westend-migrate.log",
			LocalLog:  "migration.log",
			LockFile:  "/tmp/migmon.lock",
			SeedFile:  "/tmp/.migration_seed",
			Journal:   filepath.Join(homeDir, BaseDirName, JournalName),
		},
		Monitoring: MonitoringConfig{
			CheckInterval: 60 * time.Second,
			MaxStalls:     5,
			JokeMarker:    "\U0001f493",
		},
		RPC: RPCConfig{
			HTTPEndpoint: "http://127.0.0.1:9944",
		},
		Bot: BotConfig{
			Binary: "./westend-migrate",
			Args:   "--rpc-url ws://127.0.0.1:9944 --item-limit 30720 --size-limit 3072000 --no-notify",
		},
	}
}

// ConfigFilePath returns the path of the config file under configPath.
func ConfigFilePath(configPath string) string {
	return filepath.Join(configPath, ConfigFileName)
}
