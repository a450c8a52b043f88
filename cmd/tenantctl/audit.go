package main

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"
)

const (
	tenantFlag       = "tenant"
	anomalyFlag      = "anomaly"
	strategyFlag     = "strategy"
	targetTenantFlag = "target-tenant"
	noteFlag         = "note"
	statusFlag       = "status"
	limitFlag        = "limit"
)

var scanFlags = map[string]cobraflags.Flag{
	tenantFlag: &cobraflags.StringFlag{Name: tenantFlag, Usage: "Limit the scan to one tenant ID (default: all tenants)"},
}

var repairFlags = map[string]cobraflags.Flag{
	anomalyFlag:      &cobraflags.StringFlag{Name: anomalyFlag, Usage: "Anomaly ID from a scan"},
	strategyFlag:     &cobraflags.StringFlag{Name: strategyFlag, Usage: "assign_default_tenant, delete_orphan or flag_for_manual_review"},
	targetTenantFlag: &cobraflags.StringFlag{Name: targetTenantFlag, Usage: "Tenant ID to assign (assign_default_tenant only)"},
	noteFlag:         &cobraflags.StringFlag{Name: noteFlag, Usage: "Note stored with a review item"},
}

var reviewListFlags = map[string]cobraflags.Flag{
	statusFlag: &cobraflags.StringFlag{Name: statusFlag, Value: "open", Usage: "open, resolved, or empty for all"},
	limitFlag:  &cobraflags.StringFlag{Name: limitFlag, Value: "100", Usage: "Maximum items to list"},
}

func newAuditCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "audit", Short: "Run consistency scans and repairs"}

	scan := &cobra.Command{
		Use:   "scan",
		Short: "Report tenant consistency anomalies (read-only)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			body := map[string]any{}
			if t := scanFlags[tenantFlag].GetString(); t != "" {
				body["tenant_id"] = t
			}
			return call(cmd, http.MethodPost, "/admin/audit/scans", body)
		},
	}
	cobraflags.RegisterMap(scan, scanFlags)

	var (
		dryRun      bool
		repairScope string
	)
	repair := &cobra.Command{
		Use:   "repair",
		Short: "Apply an explicit strategy to one anomaly",
		Long: `Apply an explicit strategy to one anomaly found by "audit scan".

There is no default strategy and no default tenant: assign_default_tenant
needs --target-tenant. Use --dry-run to see what would change.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			anomaly := repairFlags[anomalyFlag].GetString()
			strategy := repairFlags[strategyFlag].GetString()
			if anomaly == "" || strategy == "" {
				return fmt.Errorf("--%s and --%s are required", anomalyFlag, strategyFlag)
			}
			body := map[string]any{
				"anomaly_id": anomaly,
				"strategy":   strategy,
				"dry_run":    dryRun,
			}
			if t := repairFlags[targetTenantFlag].GetString(); t != "" {
				body["target_tenant_id"] = t
			}
			if t := repairScope; t != "" {
				body["tenant_id"] = t
			}
			if n := repairFlags[noteFlag].GetString(); n != "" {
				body["note"] = n
			}
			return call(cmd, http.MethodPost, "/admin/audit/repairs", body)
		},
	}
	cobraflags.RegisterMap(repair, repairFlags)
	repair.Flags().StringVar(&repairScope, tenantFlag, "", "Scope the anomaly lookup to one tenant ID")
	repair.Flags().BoolVar(&dryRun, "dry-run", false, "Report the change without writing")

	cmd.AddCommand(scan, repair, newReviewCommand())
	return cmd
}

func newReviewCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "review", Short: "Work the manual review queue"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List review items",
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit := reviewListFlags[limitFlag].GetString()
			if _, err := strconv.Atoi(limit); err != nil {
				return fmt.Errorf("--%s must be a number", limitFlag)
			}
			q := url.Values{}
			q.Set("limit", limit)
			if st := reviewListFlags[statusFlag].GetString(); st != "" {
				q.Set("status", st)
			}
			return call(cmd, http.MethodGet, "/admin/audit/review?"+q.Encode(), nil)
		},
	}
	cobraflags.RegisterMap(list, reviewListFlags)

	resolve := &cobra.Command{
		Use:   "resolve <item-id>",
		Short: "Mark a review item resolved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actor := rootFlags[actorFlag].GetString()
			if actor == "" {
				return fmt.Errorf("--%s is required", actorFlag)
			}
			body := map[string]any{"resolved_by": actor}
			return call(cmd, http.MethodPost, "/admin/audit/review/"+url.PathEscape(args[0])+"/resolve", body)
		},
	}

	cmd.AddCommand(list, resolve)
	return cmd
}
