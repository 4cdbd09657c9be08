package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"taskdesk/auth"
	"taskdesk/config"
	"taskdesk/domain"
)

func registerCmd(cfg func() *config.Config) *cobra.Command {
	var req domain.RegisterRequest
	var role string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Role = domain.Role(role)
			return withApp(cmd.Context(), cfg(), func(a *app) error {
				u, err := a.session.Register(cmd.Context(), req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Registered %s (%s) as %s\n", u.Name, u.ID, u.Role)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.Name, "name", "", "Display name")
	cmd.Flags().StringVar(&req.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&req.Password, "password", "", "Password (at least 6 characters)")
	cmd.Flags().StringVar(&role, "role", string(domain.RoleEmployee), "Role: employee or manager")
	return cmd
}

func loginCmd(cfg func() *config.Config) *cobra.Command {
	var creds domain.Credentials
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), cfg(), func(a *app) error {
				u, err := a.session.Login(cmd.Context(), creds)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s)\n", u.Name, u.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&creds.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&creds.Password, "password", "", "Password")
	return cmd
}

func logoutCmd(cfg func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), cfg(), func(a *app) error {
				if err := a.session.Logout(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
				return nil
			})
		},
	}
}

func whoamiCmd(cfg func() *config.Config) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), cfg(), func(a *app) error {
				tok := a.tokens.Current()
				if tok == "" {
					return fmt.Errorf("not signed in")
				}
				u, err := a.client.Profile(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd.OutOrStdout(), u)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s <%s> %s (%s)\n", u.Name, u.Email, u.Role, u.ID)
				if sub, err := auth.Subject(tok); err == nil && sub != u.ID {
					fmt.Fprintf(cmd.OutOrStdout(), "token subject: %s\n", sub)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func employeesCmd(cfg func() *config.Config) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "employees",
		Short: "List employees tasks can be assigned to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), cfg(), func(a *app) error {
				emps, err := a.client.Employees(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd.OutOrStdout(), emps)
				}
				for _, e := range emps {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", e.ID, e.Name)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func profileCmd(cfg func() *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Change or delete the signed-in account",
	}
	cmd.AddCommand(profileUpdateCmd(cfg))
	cmd.AddCommand(profileDeleteCmd(cfg))
	return cmd
}

func profileUpdateCmd(cfg func() *config.Config) *cobra.Command {
	var name, email, password string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Change name, email or password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch domain.ProfilePatch
			flags := cmd.Flags()
			if flags.Changed("name") {
				patch.Name = &name
			}
			if flags.Changed("email") {
				patch.Email = &email
			}
			if flags.Changed("password") {
				patch.Password = &password
			}
			if patch.Name == nil && patch.Email == nil && patch.Password == nil {
				return fmt.Errorf("nothing to update")
			}
			return withApp(cmd.Context(), cfg(), func(a *app) error {
				u, err := a.session.UpdateProfile(cmd.Context(), patch)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Updated %s <%s>\n", u.Name, u.Email)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&password, "password", "", "New password")
	return cmd
}

func profileDeleteCmd(cfg func() *config.Config) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete the account and sign out",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to delete the account without --yes")
			}
			return withApp(cmd.Context(), cfg(), func(a *app) error {
				if err := a.session.DeleteProfile(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Account deleted")
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the deletion")
	return cmd
}
