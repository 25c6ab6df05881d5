package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/saasdeveloppement-alt/sacimo-deploy-sub000/internal/model"
)

var requestsCmd = &cobra.Command{
	Use:   "requests",
	Short: "Inspect localization requests",
}

// -- requests list --

var requestsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent localization requests",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		reqs, err := st.ListRequests(ctx, model.RequestFilter{
			Status: model.RequestStatus(status),
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "requests list")
		}
		if len(reqs) == 0 {
			fmt.Fprintln(os.Stderr, "No requests found.")
			return nil
		}

		formatRequestsList(cmd.OutOrStdout(), reqs)
		return nil
	},
}

// -- requests show --

var requestsShowCmd = &cobra.Command{
	Use:   "show <request-id>",
	Short: "Show a request with its outcome and ranked parcels",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		req, err := st.GetRequest(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "requests show")
		}
		out, err := st.GetOutcome(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "requests show")
		}
		cands, err := st.ListCandidates(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "requests show")
		}

		return printJSON(cmd.OutOrStdout(), map[string]any{
			"request":    req,
			"outcome":    out,
			"candidates": cands,
		})
	},
}

func init() {
	requestsListCmd.Flags().String("status", "", "filter by status (PENDING, RUNNING, DONE, FAILED)")
	requestsListCmd.Flags().Int("limit", 50, "max number of requests to display")

	requestsCmd.AddCommand(requestsListCmd)
	requestsCmd.AddCommand(requestsShowCmd)
	rootCmd.AddCommand(requestsCmd)
}

// formatRequestsList writes a tabular list of requests to out.
func formatRequestsList(out io.Writer, reqs []model.LocalizationRequest) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tMODE\tSTATUS\tREASON\tCREATED\tDURATION")
	for _, r := range reqs {
		reason := r.Reason
		if reason == "" {
			reason = "-"
		}
		dur := "-"
		if r.Status.Terminal() {
			dur = r.UpdatedAt.Sub(r.CreatedAt).Round(100 * time.Millisecond).String()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID,
			r.Input.ResolveMode(),
			r.Status,
			reason,
			r.CreatedAt.Format("2006-01-02 15:04:05"),
			dur,
		)
	}
	_ = w.Flush()
}
