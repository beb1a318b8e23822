package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/your-org/facerecog/internal/auth"
	"github.com/your-org/facerecog/internal/models"
	"github.com/your-org/facerecog/internal/storage"
	"github.com/your-org/facerecog/internal/validate"
	"github.com/your-org/facerecog/pkg/dto"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Manage staff accounts",
}

var accountCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a staff account",
	Long: `Create a manager or cashier account without going through the web form.

Examples:
  # Bootstrap the first manager
  facectl account create --username boss --password 'correct horse' --role manager`,
	RunE: runAccountCreate,
}

func init() {
	accountCreateCmd.Flags().String("username", "", "login name")
	accountCreateCmd.Flags().String("password", "", "password (min 8 characters)")
	accountCreateCmd.Flags().String("role", string(models.RoleCashier), "manager or cashier")
	accountCreateCmd.Flags().String("name", "", "display name")
	_ = accountCreateCmd.MarkFlagRequired("username")
	_ = accountCreateCmd.MarkFlagRequired("password")

	accountCmd.AddCommand(accountCreateCmd)
	rootCmd.AddCommand(accountCmd)
}

func runAccountCreate(cmd *cobra.Command, args []string) error {
	username, _ := cmd.Flags().GetString("username")
	password, _ := cmd.Flags().GetString("password")
	role, _ := cmd.Flags().GetString("role")
	name, _ := cmd.Flags().GetString("name")

	req := dto.RegisterAccountRequest{
		Username:  username,
		Password1: password,
		Password2: password,
		Name:      name,
		Role:      role,
	}
	if errs := validate.Struct(req); errs != nil {
		msgs := make([]string, 0, len(errs))
		for _, e := range errs {
			msgs = append(msgs, e.Error())
		}
		return fmt.Errorf("invalid account: %s", strings.Join(msgs, "; "))
	}

	hash, err := auth.NewHasher(0).Hash(password)
	if err != nil {
		return err
	}

	acct := &models.Account{
		Username:     strings.TrimSpace(username),
		PasswordHash: hash,
		Name:         name,
		Role:         models.Role(role),
	}
	if err := db.CreateAccount(cmd.Context(), acct); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return fmt.Errorf("username %q is taken", acct.Username)
		}
		return err
	}

	fmt.Printf("Created %s account %s (%s)\n", acct.Role, acct.Username, acct.ID)
	return nil
}
