package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/openhumans/loggather/models"
	"github.com/openhumans/loggather/services/datalogs"
	"github.com/openhumans/loggather/services/retrieval"
)

// RetrieveCmd returns the retrieve command: runs one export synchronously,
// bypassing the queue
func RetrieveCmd() *cobra.Command {
	var (
		member    string
		startDate string
		endDate   string
	)

	cmd := &cobra.Command{
		Use:   "retrieve",
		Short: "Export one member's access logs now",
		Long: `Export one member's access logs now, without going through the job queue.

--member accepts the member id or the Open Humans project member id.

Examples:
  loggather retrieve --member 12345678
  loggather retrieve --member 12345678 --start 2024-01-01 --end 2024-01-31`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := retrieval.Request{StartDate: startDate, EndDate: endDate}
			if err := req.Validate(); err != nil {
				return err
			}

			ctx := cmd.Context()
			deps, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer deps.Close(context.Background())

			memberID, err := resolveMember(ctx, deps.Members, member)
			if err != nil {
				return err
			}

			job := models.NewRetrievalJob(memberID, req.StartDate, req.EndDate)
			results, err := deps.Runner.Run(ctx, job)
			printResults(cmd.OutOrStdout(), results)
			return err
		},
	}

	cmd.Flags().StringVar(&member, "member", "", "member id or project member id (required)")
	cmd.Flags().StringVar(&startDate, "start", "", "first day to include, YYYY-MM-DD")
	cmd.Flags().StringVar(&endDate, "end", "", "last day to include, YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("member")

	return cmd
}

type memberLookup interface {
	GetByProjectMemberID(ctx context.Context, projectMemberID string) (*models.Member, error)
}

func resolveMember(ctx context.Context, members memberLookup, ref string) (uuid.UUID, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return id, nil
	}
	m, err := members.GetByProjectMemberID(ctx, ref)
	if err != nil {
		return uuid.Nil, fmt.Errorf("member %s: %w", ref, err)
	}
	return m.ID, nil
}

func printResults(w io.Writer, results []*datalogs.Result) {
	for _, r := range results {
		if r == nil {
			continue
		}
		fmt.Fprintf(w, "%-11s fetched=%d skipped=%d uploaded=%d failed=%d\n",
			r.LogType, r.Fetched, r.Skipped, len(r.Uploaded), len(r.Failed))
		for _, name := range r.Uploaded {
			fmt.Fprintf(w, "  + %s\n", name)
		}
		if len(r.Failed) > 0 {
			fmt.Fprintf(w, "  failed: %s\n", strings.Join(r.Failed, ", "))
		}
	}
}
