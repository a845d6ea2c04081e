package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"minijira/internal/domain"
	"minijira/internal/engine"
	"minijira/internal/repo"
)

func newTable(header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(header)
	return tw
}

func departmentCmd() *cobra.Command {
	dep := &cobra.Command{Use: "department", Short: "Manage departments"}
	dep.AddCommand(departmentListCmd(), departmentCreateCmd(), departmentDeleteCmd())
	return dep
}

func departmentListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List departments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				deps, err := e.ListDepartments(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(deps)
				}
				tw := newTable(table.Row{"ID", "Name", "Created"})
				for _, d := range deps {
					tw.AppendRow(table.Row{d.ID, d.Name, d.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func departmentCreateCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a department",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				adminID, err := actingAdmin(ctx, e)
				if err != nil {
					return err
				}
				d, err := e.CreateDepartment(ctx, adminID, id, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(d)
				}
				fmt.Printf("Created department %s (%s)\n", d.Name, d.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "department id (default dep_<uuid>)")
	return cmd
}

func departmentDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an unused department",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				adminID, err := actingAdmin(ctx, e)
				if err != nil {
					return err
				}
				return e.DeleteDepartment(ctx, adminID, args[0])
			})
		},
	}
}

func userCmd() *cobra.Command {
	u := &cobra.Command{Use: "user", Short: "Manage users"}
	u.AddCommand(
		userListCmd(),
		userCreateCmd(),
		userRolesCmd(),
		userSetDepartmentCmd(),
		userResetPasswordCmd(),
	)
	return u
}

func printUsers(users []domain.User) error {
	if viper.GetBool("json") {
		return printJSON(users)
	}
	tw := newTable(table.Row{"ID", "Email", "Name", "Department", "Roles"})
	for _, u := range users {
		tw.AppendRow(table.Row{u.ID, u.Email, u.Name, u.Department(), strings.Join(u.Roles, ",")})
	}
	tw.Render()
	return nil
}

func userListCmd() *cobra.Command {
	var query string
	var page, pageSize int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Search users by email or name",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				adminID, err := actingAdmin(ctx, e)
				if err != nil {
					return err
				}
				res, err := e.ListUsers(ctx, adminID, engine.UserListOptions{Query: query, Page: page, PageSize: pageSize})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				if err := printUsers(res.Items); err != nil {
					return err
				}
				fmt.Printf("page %d, %d of %d users\n", res.Page, len(res.Items), res.Total)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "email or name substring")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "page size")
	return cmd
}

func userCreateCmd() *cobra.Command {
	var opts engine.SeedUserOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user; existing emails are left untouched",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, created, err := e.EnsureUser(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(u)
				}
				if !created {
					fmt.Printf("User %s already exists (%s)\n", u.Email, u.ID)
					return nil
				}
				fmt.Printf("Created user %s (%s)\n", u.Email, u.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Email, "email", "", "email")
	cmd.Flags().StringVar(&opts.Password, "password", "", "initial password")
	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.DepartmentID, "department", "", "department id")
	cmd.Flags().StringSliceVar(&opts.Roles, "role", []string{"USER"}, "global role (repeatable): USER, MANAGER, ADMIN")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	_ = cmd.MarkFlagRequired("department")
	return cmd
}

func userRolesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "roles <email> <role>...",
		Short: "Replace a user's global roles",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				adminID, target, err := adminAndTarget(ctx, e, args[0])
				if err != nil {
					return err
				}
				u, err := e.SetUserRoles(ctx, adminID, target.ID, args[1:])
				if err != nil {
					return err
				}
				return printUsers([]domain.User{u})
			})
		},
	}
}

func userSetDepartmentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-department <email> <department-id>",
		Short: "Move a user to another department",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				adminID, target, err := adminAndTarget(ctx, e, args[0])
				if err != nil {
					return err
				}
				u, err := e.SetUserDepartment(ctx, adminID, target.ID, args[1])
				if err != nil {
					return err
				}
				return printUsers([]domain.User{u})
			})
		},
	}
}

func userResetPasswordCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "reset-password <email>",
		Short: "Set a new password for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				adminID, target, err := adminAndTarget(ctx, e, args[0])
				if err != nil {
					return err
				}
				if err := e.ResetPassword(ctx, adminID, target.ID, password); err != nil {
					return err
				}
				fmt.Printf("Password reset for %s\n", target.Email)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "new password")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func adminAndTarget(ctx context.Context, e engine.Engine, email string) (string, domain.User, error) {
	adminID, err := actingAdmin(ctx, e)
	if err != nil {
		return "", domain.User{}, err
	}
	target, err := e.Repo.GetUserByEmail(ctx, email)
	if err != nil {
		return "", domain.User{}, fmt.Errorf("user %s: %w", email, err)
	}
	return adminID, target, nil
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Inspect projects"}
	prj.AddCommand(projectListCmd())
	return prj
}

func projectListCmd() *cobra.Command {
	var opts engine.ProjectListOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects visible to the --as user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				callerID, err := actingAdmin(ctx, e)
				if err != nil {
					return err
				}
				res, err := e.ListProjects(ctx, callerID, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				tw := newTable(table.Row{"ID", "Key", "Name", "Department", "Archived", "My role"})
				for _, p := range res.Items {
					tw.AppendRow(table.Row{p.ID, p.Key, p.Name, p.DepartmentID, p.Archived, p.MyRole})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&opts.Query, "query", "q", "", "key or name substring")
	cmd.Flags().IntVar(&opts.Page, "page", 1, "page number")
	cmd.Flags().IntVar(&opts.PageSize, "page-size", 20, "page size")
	cmd.Flags().BoolVar(&opts.IncludeArchived, "archived", false, "include archived projects")
	return cmd
}

func memberCmd() *cobra.Command {
	m := &cobra.Command{Use: "member", Short: "Inspect project members"}
	m.AddCommand(&cobra.Command{
		Use:   "list <project-id>",
		Short: "List members of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				callerID, err := actingAdmin(ctx, e)
				if err != nil {
					return err
				}
				members, err := e.ListMembers(ctx, callerID, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(members)
				}
				tw := newTable(table.Row{"User", "Email", "Role", "Department", "Joined"})
				for _, m := range members {
					tw.AppendRow(table.Row{m.UserID, m.Email, m.Role, m.DepartmentID, m.JoinedAt})
				}
				tw.Render()
				return nil
			})
		},
	})
	return m
}

func apiKeyCmd() *cobra.Command {
	k := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	k.AddCommand(apiKeyCreateCmd(), apiKeyListCmd(), apiKeyRevokeCmd())
	return k
}

func apiKeyCreateCmd() *cobra.Command {
	var name, envFile string
	cmd := &cobra.Command{
		Use:   "create <email>",
		Short: "Issue an API key for a user; the key is printed once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.Repo.GetUserByEmail(ctx, args[0])
				if err != nil {
					return fmt.Errorf("user %s: %w", args[0], err)
				}
				key, err := e.CreateAPIKeyFor(ctx, u.ID, name)
				if err != nil {
					return err
				}
				if envFile != "" {
					if err := setEnvValue(envFile, "MINIJIRA_API_KEY", key.Key); err != nil {
						return err
					}
				}
				if viper.GetBool("json") {
					return printJSON(key)
				}
				fmt.Printf("API key %s for %s:\n%s\n", key.ID, u.Email, key.Key)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "label for the key")
	cmd.Flags().StringVar(&envFile, "save-env", "", "also write MINIJIRA_API_KEY to this dotenv file")
	return cmd
}

func apiKeyListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <email>",
		Short: "List a user's API keys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.Repo.GetUserByEmail(ctx, args[0])
				if err != nil {
					return fmt.Errorf("user %s: %w", args[0], err)
				}
				keys, err := e.ListAPIKeys(ctx, u.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := newTable(table.Row{"ID", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func apiKeyRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.RevokeAPIKey(ctx, args[0])
			})
		},
	}
}

func logCmd() *cobra.Command {
	l := &cobra.Command{Use: "log", Short: "Audit log"}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var n int
	var f repo.EventFilter
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the newest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := newTable(table.Row{"ID", "Time", "Type", "Project", "Entity", "Actor"})
				for _, ev := range events {
					entity := ev.EntityKind
					if ev.EntityID != "" {
						entity += ":" + ev.EntityID
					}
					tw.AppendRow(table.Row{ev.ID, ev.TS, ev.Type, ev.ProjectID, entity, ev.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.ProjectID, "project", "", "project id filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	return cmd
}
