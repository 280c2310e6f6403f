package command

import (
	"fmt"

	"github.com/mosaicnetworks/murmur/src/common"
	"github.com/mosaicnetworks/murmur/src/crypto/keys"
	"github.com/spf13/cobra"
)

// NewKeygenCmd returns the command that generates a key pair.
func NewKeygenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a new keypair in the datadir",
		RunE:  keygen,
	}

	cmd.Flags().StringP("datadir", "d", _config.DataDir, "Top-level directory for configuration and data")

	return cmd
}

func keygen(cmd *cobra.Command, args []string) error {
	if datadir, err := cmd.Flags().GetString("datadir"); err == nil {
		_config.SetDataDir(datadir)
	}

	keyfile := keys.NewKeyfile(_config.Keyfile())

	if _, err := keyfile.Load(); err == nil {
		return fmt.Errorf("a key already exists in %s, remove it first", _config.Keyfile())
	}

	key, err := keys.GenerateKeyPair()
	if err != nil {
		return err
	}

	if err := keyfile.Save(key); err != nil {
		return err
	}

	fmt.Println("Public key:", common.EncodeToString(key.Public))
	fmt.Println("Keyfile:", _config.Keyfile())

	return nil
}
