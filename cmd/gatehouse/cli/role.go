package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hiredeck/gatehouse/internal/model"
	"github.com/hiredeck/gatehouse/internal/permission"
)

func newRoleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role",
		Short: "Manage roles",
		Long:  "Create and list the roles that grant session users their permissions.",
	}

	cmd.AddCommand(newRoleListCmd())
	cmd.AddCommand(newRoleCreateCmd())
	cmd.AddCommand(newRoleSetPermsCmd())

	return cmd
}

// ---------- role list ----------

func newRoleListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all roles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoleList(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runRoleList(jsonOutput bool) error {
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	roles, err := st.ListRoles(ctx)
	if err != nil {
		return fmt.Errorf("list roles: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(roles)
	}

	if len(roles) == 0 {
		fmt.Println("No roles configured. Use 'gatehouse role create' to create one.")
		return nil
	}

	fmt.Printf("%-20s %-36s %-8s %s\n", "NAME", "DESCRIPTION", "ACTIVE", "PERMISSIONS")
	fmt.Printf("%-20s %-36s %-8s %s\n", "----", "-----------", "------", "-----------")
	for _, r := range roles {
		fmt.Printf("%-20s %-36s %-8s %s\n",
			r.Name, truncate(r.Description, 34), yesNo(r.IsActive), strings.Join(r.Permissions, ", "))
	}

	return nil
}

// ---------- role create ----------

func newRoleCreateCmd() *cobra.Command {
	var (
		description string
		perms       []string
	)

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a new role",
		Example: `  gatehouse role create recruiter --perm jobs:read --perm candidates:manage
  gatehouse role create auditor --desc "read everything" --perm "*:*"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoleCreate(args[0], description, perms)
		},
	}

	cmd.Flags().StringVar(&description, "desc", "", "Role description")
	cmd.Flags().StringArrayVar(&perms, "perm", nil, "Permission to grant, repeatable (e.g. jobs:read)")

	return cmd
}

func runRoleCreate(name, description string, perms []string) error {
	if err := permission.ValidateAll(perms); err != nil {
		return err
	}

	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()

	role := &model.Role{
		Name:        name,
		Description: description,
		IsActive:    true,
	}
	if err := st.CreateRole(ctx, role); err != nil {
		return fmt.Errorf("create role: %w", err)
	}
	if len(perms) > 0 {
		if err := st.SetRolePermissions(ctx, role.ID, perms); err != nil {
			return fmt.Errorf("set permissions: %w", err)
		}
	}

	fmt.Printf("Created role %q with %d permission(s)\n", name, len(perms))
	return nil
}

// ---------- role set-perms ----------

func newRoleSetPermsCmd() *cobra.Command {
	var perms []string

	cmd := &cobra.Command{
		Use:   "set-perms <name>",
		Short: "Replace a role's permission list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoleSetPerms(args[0], perms)
		},
	}

	cmd.Flags().StringArrayVar(&perms, "perm", nil, "Permission to grant, repeatable")

	return cmd
}

func runRoleSetPerms(name string, perms []string) error {
	if err := permission.ValidateAll(perms); err != nil {
		return err
	}

	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()

	role, err := st.GetRoleByName(ctx, name)
	if err != nil {
		return fmt.Errorf("look up role %q: %w", name, err)
	}
	if err := st.SetRolePermissions(ctx, role.ID, perms); err != nil {
		return fmt.Errorf("set permissions: %w", err)
	}

	fmt.Printf("Role %q now has %d permission(s)\n", name, len(perms))
	return nil
}
