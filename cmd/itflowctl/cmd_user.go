package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"itflow/internal/database"
	"itflow/internal/model"
	"itflow/internal/service"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage accounts",
}

var (
	userInput service.RegisterInput
	userRoles []string
)

func parseRoles(raw []string) ([]model.Role, error) {
	if len(raw) == 0 {
		return []model.Role{model.RoleClient}, nil
	}
	roles := make([]model.Role, 0, len(raw))
	for _, r := range raw {
		role := model.Role(strings.ToLower(strings.TrimSpace(r)))
		switch role {
		case model.RoleClient, model.RoleManager, model.RoleProgrammer:
			roles = append(roles, role)
		default:
			return nil, fmt.Errorf("unknown role %q (want client, manager or programmer)", r)
		}
	}
	return roles, nil
}

// itflowctl user create --username ann --email ann@example.com --password ... --role manager
var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an account with the given roles",
	RunE: func(cmd *cobra.Command, args []string) error {
		roles, err := parseRoles(userRoles)
		if err != nil {
			return err
		}

		_, db, err := bootDB(cmd.Context())
		if err != nil {
			return err
		}
		defer database.CloseDB(db)

		in := userInput
		in.PasswordVerify = in.Password
		u, err := service.NewAuthService(db).CreateUser(cmd.Context(), in, roles)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created user %s (id %d, groups %s)\n", u.Username, u.ID, strings.Join(u.GroupNames(), ", "))
		return nil
	},
}

// itflowctl user roles <username> manager programmer
var userRolesCmd = &cobra.Command{
	Use:   "roles <username> <role>...",
	Short: "Replace an account's roles",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		roles, err := parseRoles(args[1:])
		if err != nil {
			return err
		}

		_, db, err := bootDB(cmd.Context())
		if err != nil {
			return err
		}
		defer database.CloseDB(db)

		users := service.NewUserService(db)
		u, err := users.GetByUsername(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if err := users.SetGroups(cmd.Context(), u.ID, roles); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated roles of %s\n", u.Username)
		return nil
	},
}

func init() {
	f := userCreateCmd.Flags()
	f.StringVar(&userInput.Username, "username", "", "login name")
	f.StringVar(&userInput.Email, "email", "", "e-mail address")
	f.StringVar(&userInput.Password, "password", "", "password, at least 8 characters")
	f.StringVar(&userInput.FirstName, "first-name", "", "first name")
	f.StringVar(&userInput.LastName, "last-name", "", "last name")
	f.StringVar(&userInput.Company, "company", "", "company name")
	f.StringSliceVar(&userRoles, "role", nil, "client, manager or programmer; repeatable")
	_ = userCreateCmd.MarkFlagRequired("username")
	_ = userCreateCmd.MarkFlagRequired("email")
	_ = userCreateCmd.MarkFlagRequired("password")

	userCmd.AddCommand(userCreateCmd)
	userCmd.AddCommand(userRolesCmd)
}
