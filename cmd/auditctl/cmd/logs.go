package cmd

import (
	"context"
	"net/url"

	"github.com/spf13/cobra"

	"custody/internal/audit/handler"
	"custody/internal/audit/service"
)

// logsFlags maps CLI flags onto the query parameters of GET /audit-logs so
// both surfaces share one validation path.
var logsFlags = []struct {
	flag, param, usage string
}{
	{"evidence", "evidenceId", "only events for this evidence ID"},
	{"user", "userId", "only events by this actor"},
	{"case", "caseId", "only events for this case ID"},
	{"action", "actionType", "only this action type, e.g. ACCESS or CHAIN_OF_CUSTODY"},
	{"status", "status", "only this status (SUCCESS, FAILURE, PENDING)"},
	{"start", "startDate", "earliest timestamp, RFC 3339 or YYYY-MM-DD"},
	{"end", "endDate", "latest timestamp, RFC 3339 or YYYY-MM-DD (a bare date covers the whole day)"},
	{"limit", "limit", "page size"},
	{"offset", "offset", "events to skip"},
}

func newLogsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "List audit events matching a filter",
		Long: `Logs prints one page of audit events, newest first, together with the
number of events matching the filter across all pages.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			for _, f := range logsFlags {
				if v, _ := cmd.Flags().GetString(f.flag); v != "" {
					q.Set(f.param, v)
				}
			}
			filter, err := handler.ParseFilter(q)
			if err != nil {
				return err
			}

			return a.report(cmd, func(ctx context.Context, svc *service.Service) (any, error) {
				result, err := svc.Query(ctx, filter)
				if err != nil {
					return nil, err
				}
				return &handler.LogsResponse{
					Success:    true,
					Logs:       result.Events,
					Count:      result.TotalCount,
					Pagination: handler.Pagination{Limit: filter.Limit, Offset: filter.Offset},
				}, nil
			})
		},
	}
	for _, f := range logsFlags {
		cmd.Flags().String(f.flag, "", f.usage)
	}
	return cmd
}
