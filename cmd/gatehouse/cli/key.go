package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hiredeck/gatehouse/internal/config"
	"github.com/hiredeck/gatehouse/internal/service"
	"github.com/hiredeck/gatehouse/internal/store"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "key",
		Aliases: []string{"apikey"},
		Short:   "Manage API keys",
		Long:    "Issue, list, and revoke the API keys used to authenticate against the HireDeck API.",
	}

	cmd.AddCommand(newKeyCreateCmd())
	cmd.AddCommand(newKeyListCmd())
	cmd.AddCommand(newKeyRevokeCmd())

	return cmd
}

// cliAuthService builds an AuthService for offline commands. No JWT secret
// is needed; key issuance never touches sessions.
func cliAuthService(st *store.Store) *service.AuthService {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	return service.NewAuthService(st, config.NewCache(st, 0), "", service.Defaults{}, logger)
}

// ---------- key create ----------

func newKeyCreateCmd() *cobra.Command {
	var (
		email     string
		name      string
		perms     []string
		rateLimit int
		expiresIn string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Issue a new API key",
		Long:  "Issue an API key for a user. The plaintext key is shown once and cannot be retrieved again.",
		Example: `  gatehouse key create --user dev@hiredeck.io --name "CI pipeline" --perm jobs:read --perm candidates:read
  gatehouse key create --user ops@hiredeck.io --name "sync worker" --perm "*:*" --expires-in 720h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyCreate(email, name, perms, rateLimit, expiresIn)
		},
	}

	cmd.Flags().StringVar(&email, "user", "", "Email of the owning user (required)")
	cmd.Flags().StringVar(&name, "name", "", "Human-readable key name (required)")
	cmd.Flags().StringArrayVar(&perms, "perm", nil, "Permission to grant, repeatable (e.g. jobs:read)")
	cmd.Flags().IntVar(&rateLimit, "rate-limit", 0, "Requests per hour (0 = configured default)")
	cmd.Flags().StringVar(&expiresIn, "expires-in", "", "Lifetime as a duration (e.g. 720h); empty = never expires")
	cmd.MarkFlagRequired("user")
	cmd.MarkFlagRequired("name")

	return cmd
}

func runKeyCreate(email, name string, perms []string, rateLimit int, expiresIn string) error {
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()

	principal, err := st.GetPrincipalByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("look up user %q: %w", email, err)
	}

	var expiresAt *time.Time
	if expiresIn != "" {
		d, err := time.ParseDuration(expiresIn)
		if err != nil {
			return fmt.Errorf("invalid --expires-in: %w", err)
		}
		t := time.Now().Add(d)
		expiresAt = &t
	}

	svc := cliAuthService(st)
	plaintext, key, err := svc.IssueAPIKey(ctx, principal.ID, name, perms, rateLimit, expiresAt)
	if err != nil {
		return fmt.Errorf("issue api key: %w", err)
	}

	fmt.Println("API key created:")
	fmt.Println()
	fmt.Printf("  Key:    %s\n", plaintext)
	fmt.Printf("  Owner:  %s\n", email)
	fmt.Printf("  Name:   %s\n", key.Name)
	fmt.Printf("  Scopes: %s\n", strings.Join(key.Permissions, ", "))
	fmt.Printf("  Limit:  %d req/hour\n", key.RateLimit)
	if key.ExpiresAt != nil {
		fmt.Printf("  Expires: %s\n", key.ExpiresAt.Format(time.RFC3339))
	}
	fmt.Println()
	fmt.Println("  Save this key now - it cannot be retrieved again.")
	return nil
}

// ---------- key list ----------

func newKeyListCmd() *cobra.Command {
	var (
		email      string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyList(email, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&email, "user", "", "Only list keys owned by this user")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runKeyList(email string, jsonOutput bool) error {
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()

	var keys []keyRow
	if email != "" {
		principal, err := st.GetPrincipalByEmail(ctx, email)
		if err != nil {
			return fmt.Errorf("look up user %q: %w", email, err)
		}
		owned, err := st.ListAPIKeysByPrincipal(ctx, principal.ID)
		if err != nil {
			return fmt.Errorf("list api keys: %w", err)
		}
		for _, k := range owned {
			keys = append(keys, keyRow{
				ID: k.ID, Prefix: k.KeyPrefix, Name: k.Name, Owner: email,
				Scopes: strings.Join(k.Permissions, ","), Active: k.IsActive,
			})
		}
	} else {
		principals, err := st.ListPrincipals(ctx)
		if err != nil {
			return fmt.Errorf("list users: %w", err)
		}
		for _, p := range principals {
			owned, err := st.ListAPIKeysByPrincipal(ctx, p.ID)
			if err != nil {
				return fmt.Errorf("list api keys for %s: %w", p.Email, err)
			}
			for _, k := range owned {
				keys = append(keys, keyRow{
					ID: k.ID, Prefix: k.KeyPrefix, Name: k.Name, Owner: p.Email,
					Scopes: strings.Join(k.Permissions, ","), Active: k.IsActive,
				})
			}
		}
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(keys)
	}

	if len(keys) == 0 {
		fmt.Println("No API keys found. Use 'gatehouse key create' to issue one.")
		return nil
	}

	fmt.Printf("%-6s %-22s %-20s %-28s %-30s %-8s\n", "ID", "PREFIX", "NAME", "OWNER", "SCOPES", "ACTIVE")
	fmt.Printf("%-6s %-22s %-20s %-28s %-30s %-8s\n", "--", "------", "----", "-----", "------", "------")
	for _, k := range keys {
		fmt.Printf("%-6d %-22s %-20s %-28s %-30s %-8s\n",
			k.ID, k.Prefix, truncate(k.Name, 18), truncate(k.Owner, 26), truncate(k.Scopes, 28), yesNo(k.Active))
	}

	return nil
}

type keyRow struct {
	ID     int64  `json:"id"`
	Prefix string `json:"prefix"`
	Name   string `json:"name"`
	Owner  string `json:"owner"`
	Scopes string `json:"scopes"`
	Active bool   `json:"active"`
}

// ---------- key revoke ----------

func newKeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key by ID",
		Long:  "Deactivate an API key, rejecting any further requests that present it.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyRevoke(args[0])
		},
	}

	return cmd
}

func runKeyRevoke(idArg string) error {
	id, err := strconv.ParseInt(idArg, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid key ID %q", idArg)
	}

	st, err := openStore()
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()

	key, err := st.GetAPIKey(ctx, id)
	if err != nil {
		return fmt.Errorf("look up key %d: %w", id, err)
	}

	if err := st.RevokeAPIKey(ctx, key.ID, key.PrincipalID); err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}

	fmt.Printf("Revoked API key %d (%s)\n", key.ID, key.KeyPrefix)
	return nil
}
