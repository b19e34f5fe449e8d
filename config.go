package monitor

import (
	"fmt"
	"net"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Config defines the configuration for the metrics system
type Config struct {
	// Service identification
	ApplicationName string
	Prefix          string

	// Carbon backend (host:port). Mutually exclusive with RemoteWriteURL.
	CarbonAddress string
	MaxBatchBytes int
	DialTimeout   time.Duration
	WriteTimeout  time.Duration

	// Prometheus remote-write backend. InstanceIP defaults to the outbound
	// IPv4 address.
	RemoteWriteURL string
	InstanceIP     string
	CustomLabels   map[string]string

	// Cadences
	TickInterval   time.Duration
	ReportInterval time.Duration

	// Meter decay windows
	Windows [3]time.Duration

	// Optional logger
	Logger *zap.Logger
	// Optional clock, wall clock by default
	Clock clock.Clock

	// DNS resolver options for the carbon host
	DNS DNSConfig
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		ApplicationName: "app",
		Prefix:          "app",
		MaxBatchBytes:   defaultMaxBatchBytes,
		DialTimeout:     5 * time.Second,
		WriteTimeout:    5 * time.Second,
		TickInterval:    5 * time.Second,
		ReportInterval:  15 * time.Second,
		Windows:         DefaultMeterConfig().Windows,
		CustomLabels:    make(map[string]string),
	}
}

// Validate checks c and fills zero values with defaults.
func (c *Config) Validate() error {
	if c.ApplicationName == "" {
		return fmt.Errorf("application name cannot be empty")
	}
	if c.CarbonAddress != "" && c.RemoteWriteURL != "" {
		return ErrBackendConflict
	}
	if c.Prefix != "" {
		if err := validateName(c.Prefix); err != nil {
			return fmt.Errorf("invalid prefix: %w", err)
		}
	}
	if c.CarbonAddress != "" {
		if _, _, err := net.SplitHostPort(c.CarbonAddress); err != nil {
			return fmt.Errorf("invalid carbon address %q: %w", c.CarbonAddress, err)
		}
	}

	def := DefaultConfig()
	if c.MaxBatchBytes <= 0 {
		c.MaxBatchBytes = def.MaxBatchBytes
	}
	c.DialTimeout = pickDuration(c.DialTimeout, def.DialTimeout)
	c.WriteTimeout = pickDuration(c.WriteTimeout, def.WriteTimeout)
	c.TickInterval = pickDuration(c.TickInterval, def.TickInterval)
	c.ReportInterval = pickDuration(c.ReportInterval, def.ReportInterval)
	for i := range c.Windows {
		c.Windows[i] = pickDuration(c.Windows[i], def.Windows[i])
		if c.Windows[i] < c.TickInterval {
			return fmt.Errorf("window %s is shorter than tick interval %s", c.Windows[i], c.TickInterval)
		}
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	return nil
}

// MeterConfig returns the meter configuration implied by c.
func (c *Config) MeterConfig() MeterConfig {
	return MeterConfig{
		Windows:      c.Windows,
		TickInterval: c.TickInterval,
		Clock:        c.Clock,
	}
}

// NewExporter builds the backend selected by c, or nil when none is
// configured. c must have been validated.
func NewExporter(c Config, reg *Registry) Exporter {
	switch {
	case c.CarbonAddress != "":
		return NewCarbonReporter(c.ApplicationName, c.CarbonAddress, c.Prefix, c.MaxBatchBytes, CarbonOptions{
			Registry:     reg,
			DialTimeout:  c.DialTimeout,
			WriteTimeout: c.WriteTimeout,
			DNS:          c.DNS,
			Logger:       c.Logger,
			Clock:        c.Clock,
		})
	case c.RemoteWriteURL != "":
		if c.InstanceIP == "" {
			ip, err := detectInstanceIP()
			if err != nil {
				c.Logger.Warn("instance ip detection failed", zap.Error(err))
			}
			c.InstanceIP = ip
		}
		return NewRemoteWriteReporter(c.RemoteWriteURL, c.Prefix, RemoteWriteOptions{
			Registry:     reg,
			ServiceName:  c.ApplicationName,
			InstanceIP:   c.InstanceIP,
			CustomLabels: c.CustomLabels,
			Timeout:      c.WriteTimeout,
			Logger:       c.Logger,
			Clock:        c.Clock,
		})
	}
	return nil
}

// detectInstanceIP fills Config.InstanceIP for remote write when unset.
var detectInstanceIP = GetOutboundIPv4

func pickDuration(v time.Duration, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}
