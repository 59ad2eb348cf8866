package cli

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"hilo-forecaster/internal/health"
	"hilo-forecaster/internal/models"
	"hilo-forecaster/internal/store"
	"hilo-forecaster/pkg/utils"
)

type statsView struct {
	Forecasts *models.ForecastStats   `json:"forecasts"`
	Meta      *models.MetaState       `json:"meta,omitempty"`
	Freshness *store.DataFreshness    `json:"freshness,omitempty"`
	Backtests []models.BacktestReport `json:"backtests,omitempty"`
}

func addDataCommands(root *cobra.Command, app *App) {
	root.AddCommand(newSyncCmd(app))
	root.AddCommand(newStatsCmd(app))
	root.AddCommand(newHealthCmd(app))
}

func newSyncCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Copy new rounds from the feed into the store",
		Long:  "Fetch the feed once, store unseen rounds and resolve pending forecasts.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			output := NewOutput(cmd)

			svc, err := app.Service(ctx)
			if err != nil {
				return err
			}
			result, err := svc.SyncRounds(ctx)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(result)
			}
			output.Success("✓ Synced %d rounds (%d new, %d forecasts resolved)", result.Fetched, result.New, result.Resolved)
			output.Dim("Latest round: #%d", result.Latest)
			return nil
		},
	}
}

func newStatsCmd(app *App) *cobra.Command {
	var since time.Duration
	var backtests int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show live forecast performance",
		Long:  "Summarize resolved forecasts, per-source accuracy and the meta-learner state.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			output := NewOutput(cmd)

			svc, err := app.Service(ctx)
			if err != nil {
				return err
			}

			var dr store.DateRange
			if since > 0 {
				dr.Start = time.Now().Add(-since)
			}
			st, err := svc.Forecaster.Stats(ctx, dr)
			if err != nil {
				return err
			}

			view := statsView{Forecasts: st, Meta: svc.Forecaster.MetaState()}
			if svc.Sync != nil {
				view.Freshness = svc.Sync.GetDataFreshness()
			}
			if backtests > 0 {
				view.Backtests, err = svc.Forecaster.Backtests(ctx, backtests)
				if err != nil {
					return err
				}
			}

			if output.IsJSON() {
				return output.JSON(view)
			}
			printStats(output, view)
			return nil
		},
	}

	cmd.Flags().DurationVar(&since, "since", 0, "only count forecasts newer than this (e.g. 24h)")
	cmd.Flags().IntVar(&backtests, "backtests", 0, "also list the N most recent saved backtests")
	return cmd
}

func printStats(output *Output, v statsView) {
	st := v.Forecasts
	output.Box("Forecast performance", []string{
		fmt.Sprintf("Forecasts:   %d (%d resolved)", st.Total, st.Resolved),
		fmt.Sprintf("Hit rate:    %s %s (%d hits)", Bar(st.HitRate, 20), utils.FormatRatio(st.HitRate), st.Hits),
		"Avg conf:    " + utils.FormatRatio(st.AvgConfidence),
	})

	if len(st.BySource) > 0 {
		names := make([]string, 0, len(st.BySource))
		for name := range st.BySource {
			names = append(names, name)
		}
		sort.Strings(names)

		output.Println()
		table := NewTable(output, "SOURCE", "CALLS", "CORRECT", "ACCURACY", "AVG CONF")
		for _, name := range names {
			s := st.BySource[name]
			table.AddRow(
				name,
				fmt.Sprintf("%d", s.TotalCalls),
				fmt.Sprintf("%d", s.CorrectCalls),
				utils.FormatRatio(s.Accuracy),
				fmt.Sprintf("%.2f", s.AvgConfidence),
			)
		}
		table.Render()
	}

	if v.Meta != nil {
		output.Println()
		state := "cold"
		if v.Meta.Warmed {
			state = "warmed"
		}
		output.Bold("Meta-learner")
		output.Printf("  %s, %d updates, bias %+.3f\n", state, v.Meta.Updates, v.Meta.Bias)
	}

	if v.Freshness != nil {
		output.Println()
		if v.Freshness.LastUpdated.IsZero() {
			output.Warning("Rounds have never been synced.")
		} else if v.Freshness.IsFresh {
			output.Success("Rounds synced %s ago", v.Freshness.Age.Round(time.Second))
		} else {
			output.Warning("Rounds are stale: last synced %s ago", v.Freshness.Age.Round(time.Second))
		}
	}

	if len(v.Backtests) > 0 {
		output.Println()
		table := NewTable(output, "WHEN", "LOOKBACK", "ACCURACY", "ROI", "MAX DD")
		for _, r := range v.Backtests {
			table.AddRow(
				r.CreatedAt.Local().Format("2006-01-02 15:04"),
				fmt.Sprintf("%d", r.Lookback),
				utils.FormatRatio(r.Accuracy),
				output.Signed(r.ROI, utils.FormatPercent(r.ROI)),
				utils.FormatRatio(r.MaxDrawdown),
			)
		}
		table.Render()
	}
}

func newHealthCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the store, cache and feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			output := NewOutput(cmd)

			svc, err := app.Service(ctx)
			if err != nil {
				return err
			}
			sh := svc.Health.Run(ctx)
			if output.IsJSON() {
				if err := output.JSON(sh); err != nil {
					return err
				}
				return sh.Error()
			}

			table := NewTable(output, "COMPONENT", "STATUS", "LATENCY", "MESSAGE")
			for _, c := range sh.Components {
				table.AddRow(c.Name, healthText(output, c.Status), c.Latency.Round(time.Microsecond).String(), c.Message)
			}
			table.Render()
			output.Println()
			output.Printf("Overall: %s\n", healthText(output, sh.Status))
			return sh.Error()
		},
	}
}

func healthText(output *Output, status health.Status) string {
	switch status {
	case health.StatusHealthy:
		return output.Green(string(status))
	case health.StatusDegraded:
		return output.Yellow(string(status))
	default:
		return output.Red(string(status))
	}
}
