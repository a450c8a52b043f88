package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"tenantguard/internal/identity/revocation"
	"tenantguard/internal/platform/config"
	redisclient "tenantguard/internal/platform/redis"
	id "tenantguard/pkg/domain"
)

func newSessionCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "session", Short: "Session revocation"}

	var ttl time.Duration
	revoke := &cobra.Command{
		Use:   "revoke <session-id>",
		Short: "Revoke a session in the shared Redis revocation list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, err := id.ParseSessionID(args[0])
			if err != nil {
				return err
			}
			if ttl <= 0 {
				return fmt.Errorf("--%s must be a positive duration", ttlFlag)
			}

			cfg := config.FromEnv().Redis
			if cfg.URL == "" {
				return fmt.Errorf("REDIS_URL is required to revoke sessions")
			}
			rc, err := redisclient.New(cfg)
			if err != nil {
				return err
			}
			defer rc.Close()

			list := revocation.NewRedis(rc.Client, cfg.KeyPrefix)
			if err := list.Revoke(cmd.Context(), sessionID.String(), ttl); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "revoked %s for %s\n", sessionID, ttl)
			return nil
		},
	}
	revoke.Flags().DurationVar(&ttl, ttlFlag, 24*time.Hour, "How long to remember the revocation; at least the token lifetime")

	cmd.AddCommand(revoke)
	return cmd
}
