package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/cobra"

	"github.com/iudanet/chartsync/internal/config"
	"github.com/iudanet/chartsync/internal/validation"
)

func (c *Cli) newInitCommand() *cobra.Command {
	var encrypt bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Write a sample config and optionally create an encrypted store",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := strings.TrimSpace(c.flags.configPath)
			if path == "" {
				var err error
				if path, err = config.DefaultConfigPath(); err != nil {
					return err
				}
			}

			err := config.WriteSample(path)
			switch {
			case errors.Is(err, fs.ErrExist):
				c.io.Printf("Config %s already exists, leaving it unchanged\n", path)
			case err != nil:
				return err
			default:
				c.io.Printf("Wrote sample config to %s\n", path)
			}

			if !encrypt {
				return nil
			}
			c.flags.configPath = path
			if err := c.loadConfig(cmd); err != nil {
				return err
			}
			return c.initEncryptedStore(cmd)
		},
	}
	cmd.Flags().BoolVar(&encrypt, "encrypt", false, "Create the local store encrypted with a passphrase")
	return cmd
}

func (c *Cli) initEncryptedStore(cmd *cobra.Command) error {
	passphrase, err := c.passphrase()
	if err != nil {
		return err
	}
	if passphrase == "" {
		if passphrase, err = c.io.ReadPassword("New passphrase: "); err != nil {
			return fmt.Errorf("failed to read passphrase: %w", err)
		}
		confirm, err := c.io.ReadPassword("Repeat passphrase: ")
		if err != nil {
			return fmt.Errorf("failed to read passphrase: %w", err)
		}
		if confirm != passphrase {
			return errors.New("passphrases do not match")
		}
	}
	if err := validation.ValidatePassphrase(passphrase); err != nil {
		return err
	}

	c.cfg.Client.Passphrase = passphrase
	store, err := c.openStore(cmd.Context())
	if err != nil {
		return err
	}
	encrypted := store.Encrypted()
	if err := store.Close(); err != nil {
		return err
	}
	if !encrypted {
		return errors.New("store was not encrypted")
	}

	c.io.Printf("Encrypted store ready at %s\n", c.cfg.Client.DBPath)
	c.io.Printf("Provide the passphrase via %s or --passphrase-file.\n", config.EnvPassphrase)
	return nil
}
