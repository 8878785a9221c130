package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"curator/internal/api"
	"curator/internal/ipc"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	var (
		uploadPath     string
		overrides      []string
		tags           []string
		safety         string
		safetyOverride bool
		skipTagging    bool
		owner          string
	)

	cmd := &cobra.Command{
		Use:   "add [url]",
		Short: "Enqueue a job from a source URL or a staged file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := api.EnqueueRequest{
				SourceOverrides: overrides,
				InitialTags:     tags,
				Safety:          safety,
				SafetyOverride:  safetyOverride,
				SkipTagging:     skipTagging,
				Owner:           owner,
			}
			switch {
			case len(args) == 1 && uploadPath != "":
				return errors.New("specify either a source URL or --file, not both")
			case len(args) == 1:
				req.SourceURL = args[0]
			case uploadPath != "":
				req.JobType = "upload"
				req.UploadPath = uploadPath
			default:
				return errors.New("a source URL or --file is required")
			}

			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.JobEnqueue(req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Enqueued job %s (%s)\n", resp.Job.ID, resp.Job.JobType)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&uploadPath, "file", "f", "", "Enqueue an already staged file instead of a URL")
	cmd.Flags().StringSliceVar(&overrides, "override", nil, "Extractor override (repeatable)")
	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "Initial tag (repeatable)")
	cmd.Flags().StringVar(&safety, "safety", "", "Safety rating: safe, questionable, or explicit")
	cmd.Flags().BoolVar(&safetyOverride, "safety-override", false, "Keep the given safety rating even when a duplicate disagrees")
	cmd.Flags().BoolVar(&skipTagging, "skip-tagging", false, "Skip the automated tagging phase")
	cmd.Flags().StringVar(&owner, "owner", "", "Archive account that owns the job")
	return cmd
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var owner string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.JobList(statuses, owner)
				if err != nil {
					return err
				}
				if len(resp.Jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No jobs found")
					return nil
				}
				rendered := renderTable(
					[]string{"ID", "Type", "Status", "Source", "Retries", "Created"},
					buildJobListRows(resp.Jobs),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), rendered)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by job status (repeatable)")
	cmd.Flags().StringVar(&owner, "owner", "", "Filter by owner")
	return cmd
}

func buildJobListRows(jobs []ipc.Job) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		source := job.SourceURL
		if source == "" {
			source = job.UploadPath
		}
		rows = append(rows, []string{
			job.ID,
			job.JobType,
			job.Status,
			truncate(source, 48),
			fmt.Sprintf("%d", job.RetryCount),
			job.CreatedAt,
		})
	}
	return rows
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <jobID>",
		Short: "Show details for one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.JobDescribe(args[0])
				if err != nil {
					return err
				}
				printJob(cmd, resp.Job)
				return nil
			})
		},
	}
}

func printJob(cmd *cobra.Command, job ipc.Job) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ID:          %s\n", job.ID)
	fmt.Fprintf(out, "Type:        %s\n", job.JobType)
	fmt.Fprintf(out, "Status:      %s\n", job.Status)
	if job.SourceURL != "" {
		fmt.Fprintf(out, "Source:      %s\n", job.SourceURL)
	}
	if job.UploadPath != "" {
		fmt.Fprintf(out, "File:        %s\n", job.UploadPath)
	}
	if job.Owner != "" {
		fmt.Fprintf(out, "Owner:       %s\n", job.Owner)
	}
	if job.Safety != "" {
		fmt.Fprintf(out, "Safety:      %s (override: %s)\n", job.Safety, yesNo(job.SafetyOverride))
	}
	if len(job.InitialTags) > 0 {
		fmt.Fprintf(out, "User tags:   %s\n", joinTags(job.InitialTags, 0))
	}
	if len(job.TagsFromSource) > 0 {
		fmt.Fprintf(out, "Source tags: %s\n", joinTags(job.TagsFromSource, 0))
	}
	if len(job.TagsFromAI) > 0 {
		fmt.Fprintf(out, "AI tags:     %s\n", joinTags(job.TagsFromAI, 0))
	}
	if len(job.TagsApplied) > 0 {
		fmt.Fprintf(out, "Applied:     %s\n", joinTags(job.TagsApplied, 0))
	}
	if job.PublishedID != 0 {
		fmt.Fprintf(out, "Published:   %d (merge: %s)\n", job.PublishedID, yesNo(job.WasMerge))
	}
	if len(job.RelatedIDs) > 0 {
		fmt.Fprintf(out, "Related:     %v\n", job.RelatedIDs)
	}
	fmt.Fprintf(out, "Retries:     %d\n", job.RetryCount)
	if job.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:       %s\n", job.ErrorMessage)
	}
	fmt.Fprintf(out, "Created:     %s\n", job.CreatedAt)
	if job.CompletedAt != "" {
		fmt.Fprintf(out, "Completed:   %s\n", job.CompletedAt)
	}
	if job.RetryAt != "" {
		fmt.Fprintf(out, "Next retry:  %s\n", job.RetryAt)
	}
}

// newControlCommands builds one subcommand per control verb. Every verb
// accepts multiple job ids and reports a per-job outcome.
func newControlCommands(ctx *commandContext) []*cobra.Command {
	verbs := []struct {
		use   string
		short string
	}{
		{"start", "Ask the worker pool to pick up pending jobs now"},
		{"pause", "Pause active jobs at their next phase boundary"},
		{"resume", "Return paused jobs to the pending pool"},
		{"stop", "Stop jobs permanently"},
		{"retry", "Re-admit failed jobs"},
		{"delete", "Delete jobs and their records"},
	}

	commands := make([]*cobra.Command, 0, len(verbs))
	for _, verb := range verbs {
		verb := verb
		commands = append(commands, &cobra.Command{
			Use:   verb.use + " <jobID...>",
			Short: verb.short,
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return ctx.withClient(func(client *ipc.Client) error {
					resp, err := client.JobCommand(verb.use, args)
					if err != nil {
						return err
					}
					out := cmd.OutOrStdout()
					failures := 0
					for _, result := range resp.Results {
						if result.OK {
							fmt.Fprintf(out, "%s: ok\n", result.JobID)
							continue
						}
						failures++
						fmt.Fprintf(out, "%s: %s\n", result.JobID, result.Error)
					}
					if failures > 0 {
						return fmt.Errorf("%s failed for %d of %d jobs", verb.use, failures, len(resp.Results))
					}
					return nil
				})
			},
		})
	}
	return commands
}
