package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/KushagraAgarwal525/racoon/internal/client"
	"github.com/KushagraAgarwal525/racoon/internal/model"
)

func init() {
	// submit
	var (
		user, task        string
		total, productive int
		categories        []string
	)
	submitCmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit one productivity update",
		RunE: func(cmd *cobra.Command, args []string) error {
			cats, err := parseCategories(categories)
			if err != nil {
				return err
			}
			u := model.ProductivityUpdate{
				UserID:         user,
				TaskID:         task,
				TotalTime:      total,
				ProductiveTime: productive,
				Categories:     cats,
				Timestamp:      time.Now().UTC().Format(time.RFC3339),
			}
			return runSubmit(cmdContext(cmd), newClient(), u, os.Stdout)
		},
	}
	submitCmd.Flags().StringVarP(&user, "user", "u", "", "User ID (required)")
	submitCmd.Flags().StringVarP(&task, "task", "t", "", "Task ID (defaults to a new UUID)")
	submitCmd.Flags().IntVar(&total, "total", 0, "Total minutes")
	submitCmd.Flags().IntVar(&productive, "productive", 0, "Productive minutes")
	submitCmd.Flags().StringArrayVarP(&categories, "category", "c", nil, "Per-app minutes as name=minutes (repeatable)")
	_ = submitCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(submitCmd)

	// samples
	var samplesUser, samplesTask, samplesFile string
	samplesCmd := &cobra.Command{
		Use:   "samples",
		Short: "Submit raw activity samples for server-side classification",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(samplesFile)
			if err != nil {
				return err
			}
			defer f.Close()
			return runSamples(cmdContext(cmd), newClient(), samplesUser, samplesTask, f, os.Stdout)
		},
	}
	samplesCmd.Flags().StringVarP(&samplesUser, "user", "u", "", "User ID (required)")
	samplesCmd.Flags().StringVarP(&samplesTask, "task", "t", "", "Task ID (defaults to a new UUID)")
	samplesCmd.Flags().StringVarP(&samplesFile, "file", "f", "", "JSON array of {appName, windowTitle, timestamp, durationSeconds} (required)")
	_ = samplesCmd.MarkFlagRequired("user")
	_ = samplesCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(samplesCmd)

	// history
	var historyUser string
	var days int
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show per-day history, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := newClient().History(cmdContext(cmd), historyUser, days)
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, entries)
		},
	}
	historyCmd.Flags().StringVarP(&historyUser, "user", "u", "", "User ID (required)")
	historyCmd.Flags().IntVarP(&days, "days", "d", 7, "Number of days")
	_ = historyCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(historyCmd)

	// today
	var todayUser string
	todayCmd := &cobra.Command{
		Use:   "today",
		Short: "Show today's aggregate",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newClient().Today(cmdContext(cmd), todayUser)
			if err != nil {
				return err
			}
			return printJSON(os.Stdout, e)
		},
	}
	todayCmd.Flags().StringVarP(&todayUser, "user", "u", "", "User ID (required)")
	_ = todayCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(todayCmd)

	// report
	var reportUser string
	var top int
	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Show today's productivity score and most used apps",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmdContext(cmd), newClient(), reportUser, top, os.Stdout)
		},
	}
	reportCmd.Flags().StringVarP(&reportUser, "user", "u", "", "User ID (required)")
	reportCmd.Flags().IntVarP(&top, "top", "n", 0, "Number of apps (server default when 0)")
	_ = reportCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(reportCmd)

	// leaderboard
	var lbUser string
	var limit int
	leaderboardCmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Show today's leaderboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLeaderboard(cmdContext(cmd), newClient(), limit, lbUser, os.Stdout)
		},
	}
	leaderboardCmd.Flags().StringVarP(&lbUser, "user", "u", "", "Also resolve this user's rank")
	leaderboardCmd.Flags().IntVarP(&limit, "limit", "n", 0, "Number of entries (server default when 0)")
	rootCmd.AddCommand(leaderboardCmd)
}

func runSubmit(ctx context.Context, c *client.Client, u model.ProductivityUpdate, out io.Writer) error {
	if u.TaskID == "" {
		u.TaskID = uuid.NewString()
	}
	res, err := c.SubmitUpdate(ctx, u)
	if err != nil {
		return err
	}
	return printJSON(out, map[string]interface{}{"taskId": u.TaskID, "success": res.Success, "updated": res.Updated, "message": res.Message})
}

type sampleLine struct {
	AppName         string    `json:"appName"`
	WindowTitle     string    `json:"windowTitle"`
	Timestamp       time.Time `json:"timestamp"`
	DurationSeconds float64   `json:"durationSeconds"`
}

func runSamples(ctx context.Context, c *client.Client, user, task string, in io.Reader, out io.Writer) error {
	var lines []sampleLine
	if err := json.NewDecoder(in).Decode(&lines); err != nil {
		return fmt.Errorf("decode samples: %w", err)
	}
	samples := make([]model.ActivitySample, 0, len(lines))
	for _, l := range lines {
		samples = append(samples, model.ActivitySample{
			AppName:     l.AppName,
			WindowTitle: l.WindowTitle,
			Timestamp:   l.Timestamp,
			Duration:    time.Duration(l.DurationSeconds * float64(time.Second)),
		})
	}
	if task == "" {
		task = uuid.NewString()
	}
	res, err := c.SubmitSamples(ctx, user, task, samples)
	if err != nil {
		return err
	}
	return printJSON(out, res)
}

func runReport(ctx context.Context, c *client.Client, user string, top int, out io.Writer) error {
	r, err := c.Report(ctx, user, top)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "%s  score %d%%  productive %d / %d min\n", r.Date, r.ProductivityScore, r.ProductiveTime, r.TotalTime)
	for _, a := range r.TopApps {
		_, _ = fmt.Fprintf(out, "  %-24s %5d min\n", a.AppName, a.Duration)
	}
	return nil
}

func runLeaderboard(ctx context.Context, c *client.Client, limit int, user string, out io.Writer) error {
	lb, err := c.Leaderboard(ctx, limit, user)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "Leaderboard %s\n", lb.Date)
	for _, e := range lb.Leaderboard {
		_, _ = fmt.Fprintf(out, "%3d. %-24s %5d / %5d min\n", e.Rank, e.DisplayName, e.ProductiveTime, e.TotalTime)
	}
	if lb.UserRank != nil {
		_, _ = fmt.Fprintf(out, "You: #%d with %d productive min\n", lb.UserRank.Rank, lb.UserRank.ProductiveTime)
	}
	return nil
}

// parseCategories turns name=minutes pairs into a map.
func parseCategories(pairs []string) (map[string]int, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]int, len(pairs))
	for _, p := range pairs {
		name, val, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid category %q, want name=minutes", p)
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return nil, fmt.Errorf("invalid minutes in %q: %w", p, err)
		}
		out[name] += n
	}
	return out, nil
}
