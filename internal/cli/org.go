package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/synheart/synheart-monitor/internal/auth"
	"github.com/synheart/synheart-monitor/internal/store"
)

var orgCmd = &cobra.Command{
	Use:   "org",
	Short: "Manage organization credentials",
}

var orgHashCmd = &cobra.Command{
	Use:   "hash <passcode>",
	Short: "Print a bcrypt hash for ORG_PASSCODE_HASH",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := auth.HashPasscode(args[0])
		if err != nil {
			return err
		}
		fmt.Println(hash)
		return nil
	},
}

var orgRegisterCmd = &cobra.Command{
	Use:   "register <org-id> <passcode>",
	Short: "Store an organization's passcode in the database",
	Long: `Hashes the passcode and stores it for the organization, replacing any
previous passcode. The organization's saved ward is left untouched.`,
	Args: cobra.ExactArgs(2),
	RunE: runOrgRegister,
}

var orgResetCmd = &cobra.Command{
	Use:   "reset <org-id>",
	Short: "Delete an organization's saved ward",
	Long:  `The next run starts the organization from the default ward.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runOrgReset,
}

func init() {
	orgCmd.AddCommand(orgHashCmd)
	orgCmd.AddCommand(orgRegisterCmd)
	orgCmd.AddCommand(orgResetCmd)
}

func openRepository(cmd *cobra.Command) (*store.Repository, error) {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return nil, err
	}
	logger, logCloser, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	defer logCloser.Close()
	return store.NewRepository(cfg.DBPath, nil, logger)
}

func runOrgRegister(cmd *cobra.Command, args []string) error {
	orgID, passcode := args[0], args[1]
	if orgID == "" || passcode == "" {
		return errors.New("organization id and passcode are required")
	}

	hash, err := auth.HashPasscode(passcode)
	if err != nil {
		return err
	}
	repo, err := openRepository(cmd)
	if err != nil {
		return err
	}
	defer repo.Close()

	if err := repo.UpsertOrganization(context.Background(), orgID, hash); err != nil {
		return err
	}
	fmt.Printf("✅ Organization %s registered\n", orgID)
	return nil
}

func runOrgReset(cmd *cobra.Command, args []string) error {
	repo, err := openRepository(cmd)
	if err != nil {
		return err
	}
	defer repo.Close()

	if err := repo.Delete(context.Background(), args[0]); err != nil {
		return err
	}
	fmt.Printf("✅ Saved ward for %s deleted\n", args[0])
	return nil
}
