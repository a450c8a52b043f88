package main

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"
)

const (
	nameFlag  = "name"
	planFlag  = "plan"
	emailFlag = "email"
	roleFlag  = "role"
)

var tenantCreateFlags = map[string]cobraflags.Flag{
	nameFlag: &cobraflags.StringFlag{Name: nameFlag, Usage: "Tenant (school) name"},
	planFlag: &cobraflags.StringFlag{Name: planFlag, Value: "basic", Usage: "Subscription plan: basic, standard or premium"},
}

var userRegisterFlags = map[string]cobraflags.Flag{
	emailFlag: &cobraflags.StringFlag{Name: emailFlag, Usage: "User email"},
	roleFlag:  &cobraflags.StringFlag{Name: roleFlag, Value: "teacher", Usage: "Role: admin, teacher, parent or student"},
}

func newTenantCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "tenant", Short: "Manage tenants"}

	create := &cobra.Command{
		Use:   "create",
		Short: "Create a tenant",
		RunE: func(cmd *cobra.Command, _ []string) error {
			name := tenantCreateFlags[nameFlag].GetString()
			if name == "" {
				return fmt.Errorf("--%s is required", nameFlag)
			}
			body := map[string]any{
				"name":              name,
				"subscription_plan": tenantCreateFlags[planFlag].GetString(),
			}
			return call(cmd, http.MethodPost, "/admin/tenants", body)
		},
	}
	cobraflags.RegisterMap(create, tenantCreateFlags)

	list := &cobra.Command{
		Use:   "list",
		Short: "List tenants",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return call(cmd, http.MethodGet, "/admin/tenants", nil)
		},
	}

	get := &cobra.Command{
		Use:   "get <tenant-id>",
		Short: "Show a tenant with user and quota usage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, http.MethodGet, "/admin/tenants/"+url.PathEscape(args[0]), nil)
		},
	}

	deactivate := &cobra.Command{
		Use:   "deactivate <tenant-id>",
		Short: "Deactivate a tenant; its users are denied until reactivation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, http.MethodPost, "/admin/tenants/"+url.PathEscape(args[0])+"/deactivate", nil)
		},
	}

	reactivate := &cobra.Command{
		Use:   "reactivate <tenant-id>",
		Short: "Reactivate a tenant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, http.MethodPost, "/admin/tenants/"+url.PathEscape(args[0])+"/reactivate", nil)
		},
	}

	cmd.AddCommand(create, list, get, deactivate, reactivate)
	return cmd
}

func newUserCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "user", Short: "Manage users"}

	register := &cobra.Command{
		Use:   "register",
		Short: "Register a user without a tenant",
		RunE: func(cmd *cobra.Command, _ []string) error {
			email := userRegisterFlags[emailFlag].GetString()
			if email == "" {
				return fmt.Errorf("--%s is required", emailFlag)
			}
			body := map[string]any{"email": email, "role": userRegisterFlags[roleFlag].GetString()}
			return call(cmd, http.MethodPost, "/admin/users", body)
		},
	}
	cobraflags.RegisterMap(register, userRegisterFlags)

	get := &cobra.Command{
		Use:   "get <user-id>",
		Short: "Show a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, http.MethodGet, "/admin/users/"+url.PathEscape(args[0]), nil)
		},
	}

	var findEmail string
	find := &cobra.Command{
		Use:   "find",
		Short: "Find a user by email",
		RunE: func(cmd *cobra.Command, _ []string) error {
			email := findEmail
			if email == "" {
				return fmt.Errorf("--%s is required", emailFlag)
			}
			return call(cmd, http.MethodGet, "/admin/users?email="+url.QueryEscape(email), nil)
		},
	}
	find.Flags().StringVar(&findEmail, emailFlag, "", "User email")

	deactivate := &cobra.Command{
		Use:   "deactivate <user-id>",
		Short: "Deactivate a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return call(cmd, http.MethodPost, "/admin/users/"+url.PathEscape(args[0])+"/deactivate", nil)
		},
	}

	cmd.AddCommand(register, get, find, deactivate)
	return cmd
}

func newAssignTenantCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "assign-tenant <user-id> <tenant-id>",
		Short: "Assign a user to an active tenant",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"tenant_id": args[1]}
			return call(cmd, http.MethodPut, "/admin/users/"+url.PathEscape(args[0])+"/tenant", body)
		},
	}
}

// call sends one admin request and prints the JSON answer.
func call(cmd *cobra.Command, method, path string, body any) error {
	raw, err := adminClient().do(cmd.Context(), method, path, body)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "ok")
		return nil
	}
	return printJSON(cmd.OutOrStdout(), raw)
}
