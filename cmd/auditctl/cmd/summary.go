package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"custody/internal/audit/handler"
	"custody/internal/audit/models"
	"custody/internal/audit/service"
)

func newSummaryCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary [window]",
		Short: "Count recent events by action type and status",
		Long: `Summary counts the events of the last 1h, 24h, 7d or 30d. Other window
values fall back to 24h but are echoed unchanged.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			window, _ := cmd.Flags().GetString("window")
			if len(args) == 1 {
				window = args[0]
			}
			return a.report(cmd, func(ctx context.Context, svc *service.Service) (any, error) {
				summary, err := svc.Summarize(ctx, window)
				if err != nil {
					return nil, err
				}
				return &handler.SummaryResponse{Success: true, Summary: summary}, nil
			})
		},
	}
	cmd.Flags().String("window", models.DefaultWindow, "summary window")
	return cmd
}
