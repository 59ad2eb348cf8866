package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"hilo-forecaster/internal/backtest"
	"hilo-forecaster/internal/models"
	"hilo-forecaster/internal/rationale"
	"hilo-forecaster/internal/risk"
	"hilo-forecaster/pkg/utils"
)

// forecastView is the JSON shape of the forecast command.
type forecastView struct {
	*models.Forecast
	Label     string                `json:"label"`
	Rationale []string              `json:"rationale"`
	Risk      models.RiskAssessment `json:"risk"`
	Rounds    int                   `json:"rounds"`
}

var riskComponents = []string{
	risk.ComponentSwitching,
	risk.ComponentStreak,
	risk.ComponentEntropy,
	risk.ComponentVariance,
	risk.ComponentConfidence,
}

type motifView struct {
	models.MotifDetection
	Label     string   `json:"label"`
	Rationale []string `json:"rationale"`
}

func addForecastCommands(root *cobra.Command, app *App) {
	root.AddCommand(newForecastCmd(app))
	root.AddCommand(newBacktestCmd(app))
	root.AddCommand(newMotifCmd(app))
	root.AddCommand(newRiskCmd(app))
}

func newForecastCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "forecast",
		Short: "Forecast the next round",
		Long:  "Fetch the recent history and forecast whether the next round totals High or Low.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			output := NewOutput(cmd)

			svc, err := app.Service(ctx)
			if err != nil {
				return err
			}
			h, err := svc.History(ctx)
			if err != nil {
				return err
			}
			fc, err := svc.Forecaster.ForecastNext(ctx, h)
			if err != nil {
				return err
			}

			lang := output.Lang()
			view := forecastView{
				Forecast:  fc,
				Label:     rationale.OutcomeLabel(fc.Predicted, lang),
				Rationale: rationale.RenderAll(fc.Reasons, lang),
				Risk:      svc.Forecaster.ClassifyRisk(fc.Confidence, h),
				Rounds:    len(h),
			}
			if output.IsJSON() {
				return output.JSON(view)
			}
			printForecast(output, view)
			return nil
		},
	}
}

func printForecast(output *Output, v forecastView) {
	fc := v.Forecast
	lines := []string{
		fmt.Sprintf("Next:        %s", output.OutcomeText(fc.Predicted)),
		"P(High):     " + utils.FormatRatio(fc.Probability),
		fmt.Sprintf("Confidence:  %s %s", Bar(fc.Confidence, 20), utils.FormatRatio(fc.Confidence)),
		fmt.Sprintf("Agreement:   %.0f%%", fc.Agreement*100),
		fmt.Sprintf("Risk:        %s (%.2f)", output.RiskText(v.Risk.Label), v.Risk.Score),
	}
	title := fmt.Sprintf("Forecast after round #%d (%d rounds)", fc.BasedOnIndex, v.Rounds)
	output.Box(title, lines)

	if fc.Fallback {
		output.Warning("Not enough history for the ensemble; showing the fallback guess.")
	}

	if len(fc.SubVotes) > 0 {
		output.Println()
		table := NewTable(output, "SOURCE", "VOTE", "CONF", "WEIGHT")
		for _, sv := range fc.SubVotes {
			table.AddRow(
				sv.Source,
				output.OutcomeText(sv.Predicted),
				fmt.Sprintf("%.2f", sv.Confidence),
				fmt.Sprintf("%.2f", sv.Weight),
			)
		}
		table.Render()
	}

	if len(v.Rationale) > 0 {
		output.Println()
		output.Bold("Rationale")
		for _, r := range v.Rationale {
			output.Printf("  • %s\n", r)
		}
	}
}

func newBacktestCmd(app *App) *cobra.Command {
	var lookback int
	var showSteps bool

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Walk-forward backtest over the recent history",
		Long: `Replay the last N rounds, forecasting each one from the rounds before it,
and size a Kelly bet on every call to track a simulated bankroll.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			output := NewOutput(cmd)

			svc, err := app.Service(ctx)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("lookback") {
				lookback = app.Config.Backtest.Lookback
			}
			h, err := svc.History(ctx)
			if err != nil {
				return err
			}
			report, err := svc.Forecaster.RunBacktest(ctx, h, lookback)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(report)
			}
			printBacktest(output, report, showSteps)
			return nil
		},
	}

	cmd.Flags().IntVarP(&lookback, "lookback", "n", 0, "number of trailing rounds to replay (default from config)")
	cmd.Flags().BoolVar(&showSteps, "steps", false, "print every walk-forward step")
	return cmd
}

func printBacktest(output *Output, report *models.BacktestReport, showSteps bool) {
	if report.SampleSize == 0 {
		output.Warning("Too few rounds to backtest a lookback of %d.", report.Lookback)
		return
	}

	pnl := report.FinalBankroll - report.InitialBankroll
	lines := []string{
		fmt.Sprintf("Samples:     %d", report.SampleSize),
		fmt.Sprintf("Accuracy:    %s %s (%d/%d)", Bar(report.Accuracy, 20), utils.FormatRatio(report.Accuracy), report.Correct, report.SampleSize),
		fmt.Sprintf("Bankroll:    %s → %s (%s)", utils.FormatAmount(report.InitialBankroll), utils.FormatAmount(report.FinalBankroll), output.Signed(pnl, utils.FormatPnL(pnl))),
		"ROI:         " + output.Signed(report.ROI, utils.FormatPercent(report.ROI)),
		"Max DD:      " + utils.FormatRatio(report.MaxDrawdown),
		fmt.Sprintf("Sharpe:      %.2f", report.Sharpe),
	}
	output.Box(fmt.Sprintf("Backtest (lookback %d)", report.Lookback), lines)

	if len(report.Steps) > 1 {
		curve := backtest.BankrollCurveASCII(report, 60, 10)
		output.Println()
		output.Bold("Bankroll")
		output.Println(strings.TrimRight(curve, "\n"))
	}

	if showSteps {
		output.Println()
		table := NewTable(output, "ROUND", "PREDICTED", "ACTUAL", "CONF", "BET", "BANKROLL")
		for _, s := range report.Steps {
			actual := output.OutcomeText(s.Actual)
			if !s.Correct() {
				actual += " " + output.Red("✗")
			}
			table.AddRow(
				fmt.Sprintf("#%d", s.Index),
				output.OutcomeText(s.Predicted),
				actual,
				fmt.Sprintf("%.2f", s.Confidence),
				fmt.Sprintf("%.2f", s.BetSize),
				utils.FormatAmount(s.BankrollAfter),
			)
		}
		table.Render()
	}
}

func newMotifCmd(app *App) *cobra.Command {
	var window int

	cmd := &cobra.Command{
		Use:   "motif",
		Short: "Detect the dominant bridge motif",
		Long:  "Match the trailing window against the named bridge motifs and report the strongest one.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			output := NewOutput(cmd)

			svc, err := app.Service(ctx)
			if err != nil {
				return err
			}
			h, err := svc.History(ctx)
			if err != nil {
				return err
			}

			lang := output.Lang()
			d := svc.Forecaster.DetectDominantMotif(h, window)
			view := motifView{
				MotifDetection: d,
				Label:          rationale.OutcomeLabel(d.Predicted, lang),
				Rationale:      rationale.RenderAll(d.Reasons, lang),
			}
			if output.IsJSON() {
				return output.JSON(view)
			}

			if d.MotifName == "" {
				output.Info("No dominant motif in the last rounds.")
				return nil
			}
			output.Box("Dominant motif", []string{
				fmt.Sprintf("Motif:       %s (×%d)", d.MotifName, d.Count),
				fmt.Sprintf("Next:        %s", output.OutcomeText(d.Predicted)),
				"Confidence:  " + utils.FormatRatio(d.Confidence),
			})
			for _, r := range view.Rationale {
				output.Printf("  • %s\n", r)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&window, "window", "w", 0, "trailing rounds to scan (default from config)")
	return cmd
}

func newRiskCmd(app *App) *cobra.Command {
	var confidence float64

	cmd := &cobra.Command{
		Use:   "risk",
		Short: "Classify the risk of betting on the next round",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			output := NewOutput(cmd)

			if confidence < 0 || confidence > 1 {
				return fmt.Errorf("--confidence must be between 0 and 1, got %g", confidence)
			}

			svc, err := app.Service(ctx)
			if err != nil {
				return err
			}
			h, err := svc.History(ctx)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("confidence") {
				fc, err := svc.Forecaster.ForecastNext(ctx, h)
				if err != nil {
					return err
				}
				confidence = fc.Confidence
			}

			ra := svc.Forecaster.ClassifyRisk(confidence, h)
			if output.IsJSON() {
				return output.JSON(ra)
			}

			output.Printf("Risk: %s (score %.3f, confidence %.2f)\n", output.RiskText(ra.Label), ra.Score, confidence)
			table := NewTable(output, "COMPONENT", "VALUE")
			for _, name := range riskComponents {
				if v, ok := ra.Components[name]; ok {
					table.AddRow(name, fmt.Sprintf("%.3f", v))
				}
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().Float64VarP(&confidence, "confidence", "c", 0, "forecast confidence to assess (default: current forecast)")
	return cmd
}
