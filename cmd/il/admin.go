package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"insightline/internal/app"
	"insightline/internal/config"
	"insightline/internal/domain"
	"insightline/internal/repo"
)

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "insightline.yml holds the server, storage, lifecycle, events, notify, webhooks, auth roles and log settings. Flags and INSIGHTLINE_* variables override it.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate insightline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				msg := ""
				if err != nil {
					msg = err.Error()
				}
				return printJSON(map[string]any{"ok": err == nil, "error": msg})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default insightline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func apiKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
	}
	cmd.AddCommand(apiKeyCreateCmd())
	cmd.AddCommand(apiKeyListCmd())
	cmd.AddCommand(apiKeyRevokeCmd())
	return cmd
}

func apiKeyCreateCmd() *cobra.Command {
	var actor, name string
	var roles []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key; the key is printed once",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actor == "" {
				return fmt.Errorf("--actor required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				for _, r := range roles {
					if _, ok := a.Config.Auth.Roles[r]; !ok {
						return fmt.Errorf("unknown role %q", r)
					}
				}
				secret := "il_" + strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
				key := domain.APIKey{
					ID:      uuid.NewString(),
					ActorID: actor,
					Name:    name,
					KeyHash: repo.HashAPIKey(secret),
					Roles:   roles,
				}
				if err := a.Repo.InsertAPIKey(ctx, key); err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"id": key.ID, "actor_id": actor, "roles": roles, "key": secret})
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "actor id the key authenticates as")
	cmd.Flags().StringVar(&name, "name", "", "label")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "role granted to the key (repeatable)")
	return cmd
}

func apiKeyListCmd() *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				keys, err := a.Repo.ListAPIKeys(ctx, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Actor", "Name", "Roles", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Name, strings.Join(k.Roles, ","), k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "actor filter")
	return cmd
}

func apiKeyRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	}
}

func roleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "role",
		Short: "Inspect roles and manage actor assignments",
	}
	cmd.AddCommand(roleListCmd())
	cmd.AddCommand(roleAssignCmd())
	cmd.AddCommand(roleRevokeCmd())
	cmd.AddCommand(roleWhoamiCmd())
	return cmd
}

func roleListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured roles",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg.Auth.Roles)
			}
			ids := make([]string, 0, len(cfg.Auth.Roles))
			for id := range cfg.Auth.Roles {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Role", "Description", "Permissions"})
			for _, id := range ids {
				role := cfg.Auth.Roles[id]
				tw.AppendRow(table.Row{id, role.Description, strings.Join(role.Permissions, ", ")})
			}
			tw.Render()
			return nil
		},
	}
}

func roleAssignCmd() *cobra.Command {
	var actor, role string
	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Assign a role to an actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actor == "" || role == "" {
				return fmt.Errorf("--actor and --role required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if _, ok := a.Config.Auth.Roles[role]; !ok {
					return fmt.Errorf("unknown role %q", role)
				}
				return a.Repo.AssignRole(ctx, actor, role)
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "actor id")
	cmd.Flags().StringVar(&role, "role", "", "role id")
	return cmd
}

func roleRevokeCmd() *cobra.Command {
	var actor, role string
	cmd := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke a role from an actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actor == "" || role == "" {
				return fmt.Errorf("--actor and --role required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Repo.RevokeRole(ctx, actor, role)
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "actor id")
	cmd.Flags().StringVar(&role, "role", "", "role id")
	return cmd
}

func roleWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show roles and permissions of --actor-id",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				actor := viper.GetString("actor-id")
				roles, err := a.Repo.ActorRoles(ctx, actor)
				if err != nil {
					return err
				}
				perms, err := a.Repo.RolePermissions(ctx, roles)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"actor_id": actor, "roles": roles, "permissions": perms})
			})
		},
	}
}
