package config

import (
	"net"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/mosaicnetworks/murmur/src/common"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultKeyfile is the default name of the file containing the node's
	// private key
	DefaultKeyfile = "priv_key"

	// DefaultLogFile is the default name of the optional log file in the
	// datadir.
	DefaultLogFile = "murmur.log"
)

// Default configuration values.
const (
	DefaultLogLevel    = "debug"
	DefaultBindAddr    = "127.0.0.1:8001"
	DefaultServiceAddr = "127.0.0.1:8000"
)

// Config contains all the configuration properties of a murmur node.
type Config struct {
	// DataDir is the top-level directory containing murmur configuration
	// and data
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogToFile mirrors log output to a file in the datadir.
	LogToFile bool `mapstructure:"log-to-file"`

	// BindAddr is the local address:port this node gossips from. In some
	// cases there may be a routable address that cannot be bound; use
	// AdvertiseAddr to advertise a different address to support this.
	BindAddr string `mapstructure:"listen"`

	// AdvertiseAddr changes the gossip address advertised to other nodes.
	AdvertiseAddr string `mapstructure:"advertise"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the HTTP API service.
	ServiceAddr string `mapstructure:"service-listen"`

	// ShredVersion is the cluster epoch tag advertised in our contact
	// info. When it is non-zero, peers advertising a different shred version
	// are ignored; zero accepts any peer.
	ShredVersion uint16 `mapstructure:"shred-version"`

	// Entrypoints are gossip address:port endpoints of existing cluster
	// nodes, used to join.
	Entrypoints []string `mapstructure:"entrypoints"`

	// Moniker defines the friendly name of this node.
	Moniker string `mapstructure:"moniker"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:     DefaultDataDir(),
		LogLevel:    DefaultLogLevel,
		BindAddr:    DefaultBindAddr,
		ServiceAddr: DefaultServiceAddr,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t, level)
	return config
}

// SetDataDir sets the top-level murmur directory.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
}

// Keyfile returns the full path of the file containing the private key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// Logfile returns the full path of the log file.
func (c *Config) Logfile() string {
	return filepath.Join(c.DataDir, DefaultLogFile)
}

// BindUDPAddr resolves BindAddr.
func (c *Config) BindUDPAddr() (*net.UDPAddr, error) {
	return net.ResolveUDPAddr("udp", c.BindAddr)
}

// AdvertiseUDPAddr resolves AdvertiseAddr, or nil when unset.
func (c *Config) AdvertiseUDPAddr() (*net.UDPAddr, error) {
	if c.AdvertiseAddr == "" {
		return nil, nil
	}
	return net.ResolveUDPAddr("udp", c.AdvertiseAddr)
}

// EntrypointUDPAddrs resolves the configured entrypoints.
func (c *Config) EntrypointUDPAddrs() ([]*net.UDPAddr, error) {
	var out []*net.UDPAddr
	for _, e := range c.Entrypoints {
		addr, err := net.ResolveUDPAddr("udp", e)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

// Logger returns a formatted logrus Entry, with prefix set to "murmur".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)

		if c.LogToFile {
			pathMap := lfshook.PathMap{}
			for _, level := range logrus.AllLevels {
				pathMap[level] = c.Logfile()
			}
			c.logger.Hooks.Add(lfshook.NewHook(pathMap, new(prefixed.TextFormatter)))
		}
	}
	return c.logger.WithField("prefix", "murmur")
}

// dataDirNames maps runtime.GOOS to the conventional per-OS directory name,
// relative to the user's home.
var dataDirNames = map[string][]string{
	"darwin":  {".Murmur"},
	"windows": {"AppData", "Roaming", "Murmur"},
}

// DefaultDataDir returns the conventional location for murmur's data on the
// underlying OS, or the empty string when no home directory can be found, in
// which case the caller must supply one.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	parts, ok := dataDirNames[runtime.GOOS]
	if !ok {
		parts = []string{".murmur"}
	}
	return filepath.Join(append([]string{home}, parts...)...)
}

var logLevels = map[string]logrus.Level{
	"debug": logrus.DebugLevel,
	"info":  logrus.InfoLevel,
	"warn":  logrus.WarnLevel,
	"error": logrus.ErrorLevel,
	"fatal": logrus.FatalLevel,
	"panic": logrus.PanicLevel,
}

// LogLevel maps a level name to its logrus level. Unknown names fall back to
// debug, erring on the side of more output.
func LogLevel(name string) logrus.Level {
	if level, ok := logLevels[name]; ok {
		return level
	}
	return logrus.DebugLevel
}
