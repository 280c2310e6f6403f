package command

import (
	"github.com/mosaicnetworks/murmur/src/murmur"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewRunCmd returns the command that starts a murmur node.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run node",
		RunE:  runMurmur,
	}

	AddRunFlags(cmd)

	return cmd
}

// AddRunFlags adds flags to the Run command.
func AddRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("datadir", "d", _config.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().StringP("listen", "l", _config.BindAddr, "Listen IP:Port for gossip")
	cmd.Flags().String("advertise", _config.AdvertiseAddr, "Advertise IP:Port for gossip")
	cmd.Flags().StringP("service-listen", "s", _config.ServiceAddr, "Listen IP:Port for the HTTP API service")
	cmd.Flags().Bool("no-service", _config.NoService, "Disable the HTTP API service")
	cmd.Flags().Uint16("shred-version", _config.ShredVersion, "Cluster epoch tag; 0 accepts any")
	cmd.Flags().StringSliceP("entrypoints", "e", _config.Entrypoints, "Gossip IP:Port of existing cluster nodes")
	cmd.Flags().String("moniker", _config.Moniker, "Friendly name of this node")
	cmd.Flags().String("log", _config.LogLevel, "Log level (debug, info, warn, error, fatal, panic)")
	cmd.Flags().Bool("log-to-file", _config.LogToFile, "Mirror log output to a file in the datadir")
}

func runMurmur(cmd *cobra.Command, args []string) error {
	if err := bindFlagsLoadViper(cmd); err != nil {
		return err
	}

	_config.Logger().WithFields(logrus.Fields{
		"datadir":        _config.DataDir,
		"listen":         _config.BindAddr,
		"advertise":      _config.AdvertiseAddr,
		"service-listen": _config.ServiceAddr,
		"no-service":     _config.NoService,
		"shred-version":  _config.ShredVersion,
		"entrypoints":    _config.Entrypoints,
		"moniker":        _config.Moniker,
		"log":            _config.LogLevel,
	}).Debug("RUN")

	engine := murmur.NewMurmur(_config)

	if err := engine.Init(); err != nil {
		_config.Logger().WithError(err).Error("Cannot initialize engine")
		return err
	}

	engine.Run()

	return nil
}

// bindFlagsLoadViper binds the command flags into viper, loads an optional
// murmur.toml from the datadir, and unmarshals the result into the config.
func bindFlagsLoadViper(cmd *cobra.Command) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	viper.SetConfigName("murmur")
	viper.AddConfigPath(_config.DataDir)

	if err := viper.ReadInConfig(); err == nil {
		_config.Logger().WithField("file", viper.ConfigFileUsed()).Debug("Reading config")
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Logger().Debug("No config file found")
	} else {
		return err
	}

	return viper.Unmarshal(_config)
}
