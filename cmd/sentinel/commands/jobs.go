package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/sentinel/qpu"
)

// JobsCmd lists recorded backend submissions
var JobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect recorded backend submissions",
}

var jobsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List recent submissions, newest first",
	RunE:  runJobsLs,
}

var jobsLimit int

func init() {
	jobsLsCmd.Flags().IntVarP(&jobsLimit, "limit", "n", 20, "Maximum number of jobs to show")
	JobsCmd.AddCommand(jobsLsCmd)
}

func runJobsLs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	jobs, err := qpu.NewStore(database).List(ctx, jobsLimit)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		pterm.Info.Println("No jobs recorded")
		return nil
	}

	data := pterm.TableData{{"Submitted", "Job", "Mode", "Backend", "Program", "Depth"}}
	for _, j := range jobs {
		data = append(data, []string{
			j.SubmittedAt.Local().Format(time.DateTime),
			j.ID,
			j.Mode,
			j.Backend,
			j.ProgramID,
			fmt.Sprint(j.Params["depth"]),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
