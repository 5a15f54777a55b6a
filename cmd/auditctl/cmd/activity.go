package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"custody/internal/audit/handler"
	"custody/internal/audit/service"
	audit "custody/pkg/platform/audit"
)

func newActivityCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activity <user-id>",
		Short: "Print the recent events of one actor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			if limit < 0 {
				return fmt.Errorf("limit must be a positive integer")
			}
			limit = min(limit, audit.MaxLimit)

			return a.report(cmd, func(ctx context.Context, svc *service.Service) (any, error) {
				activity, err := svc.UserActivity(ctx, args[0], limit)
				if err != nil {
					return nil, err
				}
				return &handler.ActivityResponse{
					Success:  true,
					UserID:   activity.UserID,
					Activity: activity.Events,
					Count:    len(activity.Events),
				}, nil
			})
		},
	}
	cmd.Flags().Int("limit", 0, "maximum events (default 50)")
	return cmd
}
