package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/hiredeck/gatehouse/internal/model"
	"github.com/hiredeck/gatehouse/internal/service"
)

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
		Long:  "Create, list, deactivate, and assign roles to the users who own sessions and API keys.",
	}

	cmd.AddCommand(newUserCreateCmd())
	cmd.AddCommand(newUserListCmd())
	cmd.AddCommand(newUserDeactivateCmd())
	cmd.AddCommand(newUserAssignRoleCmd())

	return cmd
}

// ---------- user create ----------

func newUserCreateCmd() *cobra.Command {
	var (
		email    string
		password string
		name     string
		tier     int
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new user",
		Example: `  gatehouse user create --email admin@hiredeck.io --name "Ada" --tier 4
  gatehouse user create --email dev@hiredeck.io  # prompts for password`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserCreate(email, password, name, tier)
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address (required)")
	cmd.Flags().StringVar(&password, "password", "", "Password (prompted if omitted)")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().IntVar(&tier, "tier", model.TierMember, "Privilege tier (0=member .. 4=super admin)")
	cmd.MarkFlagRequired("email")

	return cmd
}

func runUserCreate(email, password, name string, tier int) error {
	if !strings.Contains(email, "@") {
		return fmt.Errorf("invalid email address: %q", email)
	}
	if tier < model.TierMember || tier > model.TierSuperAdmin {
		return fmt.Errorf("tier must be between %d and %d", model.TierMember, model.TierSuperAdmin)
	}

	if password == "" {
		fmt.Print("Password: ")
		pwBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Println()
		password = string(pwBytes)

		fmt.Print("Confirm password: ")
		confirmBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("failed to read confirmation: %w", err)
		}
		fmt.Println()

		if password != string(confirmBytes) {
			return fmt.Errorf("passwords do not match")
		}
	}

	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}

	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	hash, err := service.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	p := &model.Principal{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		IsActive:     true,
		Tier:         tier,
	}
	if err := st.CreatePrincipal(context.Background(), p); err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	fmt.Printf("Created user %q (id %d, tier %d)\n", email, p.ID, tier)
	return nil
}

// ---------- user list ----------

func newUserListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List all users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserList(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runUserList(jsonOutput bool) error {
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	principals, err := st.ListPrincipals(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	type userRow struct {
		ID     int64  `json:"id"`
		Email  string `json:"email"`
		Name   string `json:"name"`
		Tier   int    `json:"tier"`
		Active bool   `json:"active"`
	}

	rows := make([]userRow, len(principals))
	for i, p := range principals {
		rows[i] = userRow{ID: p.ID, Email: p.Email, Name: p.Name, Tier: p.Tier, Active: p.IsActive}
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	if len(rows) == 0 {
		fmt.Println("No users found. Use 'gatehouse user create' to create one.")
		return nil
	}

	fmt.Printf("%-6s %-30s %-24s %-6s %-8s\n", "ID", "EMAIL", "NAME", "TIER", "ACTIVE")
	fmt.Printf("%-6s %-30s %-24s %-6s %-8s\n", "--", "-----", "----", "----", "------")
	for _, u := range rows {
		fmt.Printf("%-6d %-30s %-24s %-6d %-8s\n", u.ID, truncate(u.Email, 28), truncate(u.Name, 22), u.Tier, yesNo(u.Active))
	}

	return nil
}

// ---------- user deactivate ----------

func newUserDeactivateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deactivate <email>",
		Short: "Deactivate a user",
		Long:  "Deactivate a user. Their sessions stop resolving and every API key they own stops validating immediately.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserSetActive(args[0], false)
		},
	}

	return cmd
}

func runUserSetActive(email string, active bool) error {
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	p, err := st.GetPrincipalByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("look up user %q: %w", email, err)
	}

	if err := st.SetPrincipalActive(ctx, p.ID, active); err != nil {
		return fmt.Errorf("update user: %w", err)
	}

	state := "deactivated"
	if active {
		state = "activated"
	}
	fmt.Printf("User %q %s\n", email, state)
	return nil
}

// ---------- user assign-role ----------

func newUserAssignRoleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assign-role <email> <role>",
		Short: "Assign a role to a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUserAssignRole(args[0], args[1])
		},
	}

	return cmd
}

func runUserAssignRole(email, roleName string) error {
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()

	p, err := st.GetPrincipalByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("look up user %q: %w", email, err)
	}
	role, err := st.GetRoleByName(ctx, roleName)
	if err != nil {
		return fmt.Errorf("look up role %q: %w", roleName, err)
	}

	if err := st.AssignRole(ctx, p.ID, role.ID); err != nil {
		return fmt.Errorf("assign role: %w", err)
	}

	fmt.Printf("Assigned role %q to %q\n", roleName, email)
	return nil
}
