package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/foreman/internal/console"
	"github.com/Iron-Ham/foreman/internal/hosting"
)

var statusCmd = &cobra.Command{
	Use:   "status <pr>...",
	Short: "Show state and CI checks for pull requests",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	numbers, err := hosting.ParseChangeSetRefs(args)
	if err != nil {
		return err
	}
	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.close()
	ctx := cmd.Context()

	provider, err := a.hostingProvider()
	if err != nil {
		return err
	}

	var rows [][]string
	var urls []string
	for _, n := range numbers {
		cs, err := provider.GetChangeSet(ctx, n)
		if err != nil {
			a.out.Warn("PR #%d: %v", n, err)
			continue
		}
		ref := cs.HeadSHA
		if ref == "" {
			ref = cs.HeadBranch
		}
		checks, err := provider.GetChecks(ctx, ref)
		if err != nil {
			a.log.Warn("failed to read checks", "number", n, "error", err)
			checks = &hosting.CheckSummary{Status: "unknown"}
		}
		rows = append(rows, []string{
			strconv.Itoa(cs.Number),
			cs.State,
			cs.HeadBranch,
			console.Status(checks.Status),
			fmt.Sprintf("%d/%d/%d", checks.Passed, checks.Failed, checks.Pending),
			cs.Title,
		})
		if cs.URL != "" {
			urls = append(urls, cs.URL)
		}
	}
	if len(rows) == 0 {
		return nil
	}
	owner, repo := provider.OwnerRepo()
	a.out.Header("%s/%s on %s", owner, repo, provider.Name())
	a.out.Table([]string{"PR", "State", "Branch", "CI", "Pass/Fail/Pending", "Title"}, rows, 50)
	for _, u := range urls {
		a.out.Dim("%s", u)
	}
	return nil
}
