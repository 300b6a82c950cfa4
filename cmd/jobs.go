package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/tanq16/hlsget/internal/api"
	"github.com/tanq16/hlsget/internal/output"
	"github.com/tanq16/hlsget/internal/types"
	"github.com/tanq16/hlsget/internal/utils"
)

func newClient() *api.Client {
	return api.NewClient(globalConfig.Listen, utils.NewHTTPClient(utils.HTTPClientConfig{Timeout: 10 * time.Second}))
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 15*time.Second)
}

func newJobsCmd() *cobra.Command {
	var markdown bool
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List jobs known to the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := requestContext()
			defer cancel()
			dtos, err := newClient().List(ctx)
			if err != nil {
				return err
			}
			jobs := make([]types.Job, 0, len(dtos))
			for _, dto := range dtos {
				jobs = append(jobs, dto.Job)
			}
			output.RenderJobs(os.Stdout, jobs, markdown)
			return nil
		},
	}
	cmd.Flags().BoolVar(&markdown, "markdown", false, "Render the table with markdown borders")
	return cmd
}

func parseJobID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid job id %q", arg)
	}
	return id, nil
}

func newJobActionCmd(use, short, verb string, action func(ctx context.Context, client *api.Client, id int64) (*api.JobDTO, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [JOB_ID]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := requestContext()
			defer cancel()
			job, err := action(ctx, newClient(), id)
			if err != nil {
				return err
			}
			if job == nil {
				output.PrintSuccess(fmt.Sprintf("Job %d %s", id, verb))
				return nil
			}
			output.PrintSuccess(fmt.Sprintf("Job %d %s (%s, %d%%)", id, verb, job.Status, job.Percent))
			return nil
		},
	}
}

func newPauseCmd() *cobra.Command {
	return newJobActionCmd("pause", "Pause a running job", "paused", func(ctx context.Context, client *api.Client, id int64) (*api.JobDTO, error) {
		job, err := client.Pause(ctx, id)
		return &job, err
	})
}

func newResumeCmd() *cobra.Command {
	return newJobActionCmd("resume", "Resume a paused job", "resumed", func(ctx context.Context, client *api.Client, id int64) (*api.JobDTO, error) {
		job, err := client.Resume(ctx, id)
		return &job, err
	})
}

func newDeleteCmd() *cobra.Command {
	return newJobActionCmd("delete", "Cancel a job and forget it", "deleted", func(ctx context.Context, client *api.Client, id int64) (*api.JobDTO, error) {
		return nil, client.Delete(ctx, id)
	})
}
