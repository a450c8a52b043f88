package main

import (
	"os"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"
)

const (
	serverFlag     = "server"
	adminTokenFlag = "admin-token"
	actorFlag      = "actor"
)

var rootFlags = map[string]cobraflags.Flag{
	serverFlag: &cobraflags.StringFlag{
		Name:  serverFlag,
		Value: envOr("TENANTGUARD_URL", "http://localhost:8080"),
		Usage: "Base URL of the tenantguard server",
	},
	adminTokenFlag: &cobraflags.StringFlag{
		Name:  adminTokenFlag,
		Value: os.Getenv("ADMIN_TOKEN"),
		Usage: "Admin token sent as X-Admin-Token (default $ADMIN_TOKEN)",
	},
	actorFlag: &cobraflags.StringFlag{
		Name:  actorFlag,
		Value: os.Getenv("USER"),
		Usage: "Operator name recorded on audit events",
	},
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "tenantctl",
		Short:         "Administer tenantguard tenants, users and consistency audits",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cobraflags.RegisterMap(root, rootFlags)

	root.AddCommand(
		newTenantCommand(),
		newUserCommand(),
		newAssignTenantCommand(),
		newAuditCommand(),
		newTokenCommand(),
		newSessionCommand(),
		newMigrateCommand(),
	)
	return root
}

// adminClient builds a client from the root flags.
func adminClient() *client {
	return newClient(
		rootFlags[serverFlag].GetString(),
		rootFlags[adminTokenFlag].GetString(),
		rootFlags[actorFlag].GetString(),
	)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
