package config

import (
	"flag"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	APInterface string
	Addr        string
	DataDir     string
	DBPath      string
	LeaseFiles  []string
	Debug       bool

	CaptureWindow time.Duration
	CycleSleep    time.Duration

	Thresholds Thresholds
}

// Thresholds groups every tunable the defense loop consults. The loop, the
// detector and the policy engine all read from here so tuning never requires
// a code change.
type Thresholds struct {
	// Detector rule stage
	RatePPS  float64 // packet rate above this adds +50
	PortFan  int     // unique ports above this adds +50
	MLBonus  int     // learned-stage contribution
	Anomaly  int     // score at or above this flags the device
	ScoreCap int

	// Trust deltas (policy engine)
	ScanPorts int     // unique ports above this costs trust
	FloodPPS  float64 // packet rate above this costs trust

	// Flag derivation
	RedirectTrust int
	IsolateTrust  int

	// Quarantine promotion
	PromoteTrust int
	PromoteAge   time.Duration

	// Presence
	OfflineAfter time.Duration

	// Detector training
	MinTrainRows int
	RetrainProb  float64

	// Correlation
	CorrelationRows int
}

// DefaultThresholds returns the stock tuning.
func DefaultThresholds() Thresholds {
	return Thresholds{
		RatePPS:         100,
		PortFan:         20,
		MLBonus:         30,
		Anomaly:         50,
		ScoreCap:        100,
		ScanPorts:       10,
		FloodPPS:        50,
		RedirectTrust:   40,
		IsolateTrust:    20,
		PromoteTrust:    70,
		PromoteAge:      60 * time.Second,
		OfflineAfter:    30 * time.Second,
		MinTrainRows:    10,
		RetrainProb:     0.1,
		CorrelationRows: 50,
	}
}

// DefaultLeaseFiles are the dnsmasq/dhcpd lease locations probed in order.
var DefaultLeaseFiles = []string{
	"/var/lib/misc/dnsmasq.leases",
	"/var/lib/dnsmasq/dnsmasq.leases",
	"/var/lib/dhcp/dhcpd.leases",
}

// Load parses command line flags and environment variables to populate Config.
// Flags take precedence over environment variables.
func Load() *Config {
	cfg := &Config{Thresholds: DefaultThresholds(), LeaseFiles: DefaultLeaseFiles}

	// Defaults and Environment Variables
	cfg.APInterface = getEnv("TRAPWIRE_IFACE", "wlan0")
	cfg.Addr = getEnv("TRAPWIRE_ADDR", ":8443")
	cfg.DataDir = getEnv("TRAPWIRE_DATA", "data")
	cfg.DBPath = getEnv("TRAPWIRE_DB", "")
	windowSec := getEnvInt("TRAPWIRE_WINDOW", 5)

	// Command Line Flags (Override Env)
	flag.StringVar(&cfg.APInterface, "i", cfg.APInterface, "Access point interface to capture and enforce on")
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "Dashboard HTTP address")
	flag.StringVar(&cfg.DataDir, "data", cfg.DataDir, "Data directory (registry, logs, evidence)")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to SQLite audit database (default <data>/trapwire.db)")
	flag.IntVar(&windowSec, "window", windowSec, "Capture window per cycle in seconds")
	flag.BoolVar(&cfg.Debug, "debug", false, "Enable verbose debug logging")
	flag.Parse()

	cfg.CaptureWindow = time.Duration(windowSec) * time.Second
	cfg.CycleSleep = 1 * time.Second

	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "trapwire.db")
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Printf("Warning: could not create data directory %s: %v", cfg.DataDir, err)
	}

	return cfg
}

// Data file locations inside the data directory.
func (c *Config) RegistryPath() string    { return filepath.Join(c.DataDir, "devices.json") }
func (c *Config) BehaviorPath() string    { return filepath.Join(c.DataDir, "behavior.csv") }
func (c *Config) InteractionPath() string { return filepath.Join(c.DataDir, "honeypot.csv") }
func (c *Config) AuditLogPath() string    { return filepath.Join(c.DataDir, "iptables_actions.log") }

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}
