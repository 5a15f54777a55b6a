package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"custody/internal/audit/handler"
	"custody/internal/audit/service"
)

func newTrailCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "trail <evidence-id>",
		Short: "Print the custody history of one evidence item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.report(cmd, func(ctx context.Context, svc *service.Service) (any, error) {
				trail, err := svc.EvidenceTrail(ctx, args[0])
				if err != nil {
					return nil, err
				}
				return &handler.TrailResponse{
					Success:    true,
					EvidenceID: trail.EvidenceID,
					Trail:      trail.Events,
					Count:      len(trail.Events),
				}, nil
			})
		},
	}
}
