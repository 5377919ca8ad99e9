package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Optimization Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Study: %s | Strategy: %s | Data: %s %s\n\n",
		r.StudyID, r.Strategy, r.Ticker, r.Interval))

	// Summary
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Total Trials | %d |\n", r.TotalTrials))
	sb.WriteString(fmt.Sprintf("| Completed | %d |\n", r.CompletedTrials))
	sb.WriteString(fmt.Sprintf("| Failed | %d |\n", r.FailedTrials))
	sb.WriteString("\n")

	// Best trial
	sb.WriteString("## Best Trial\n\n")
	if r.Best != nil {
		sb.WriteString(fmt.Sprintf("Trial %d: %s\n\n", r.Best.TrialIndex, r.Best.Parameters))
		sb.WriteString(fmt.Sprintf("Final value %.2f, absolute return %.2f (%.2f%%), Sharpe %s, max drawdown %.2f%%\n\n",
			r.Best.FinalValue, r.Best.AbsoluteReturn, r.Best.RelativeReturn*100,
			formatSharpe(r.Best.SharpeRatio), r.Best.MaxDrawdown))
	} else {
		sb.WriteString("No trial completed.\n\n")
	}

	// Ranked trials
	sb.WriteString(fmt.Sprintf("## Top Trials by %s\n\n", r.RankMetric))
	if len(r.Top) > 0 {
		sb.WriteString("| Rank | Trial | Parameters | Final | Return | Return% | Sharpe | MaxDD% | SQN | Trades |\n")
		sb.WriteString("|------|-------|------------|-------|--------|---------|--------|--------|-----|--------|\n")
		for _, t := range r.Top {
			sb.WriteString(fmt.Sprintf("| %d | %d | %s | %.2f | %.2f | %.2f | %s | %.2f | %.4f | %d |\n",
				t.Rank, t.TrialIndex, t.Parameters, t.FinalValue, t.AbsoluteReturn,
				t.RelativeReturn*100, formatSharpe(t.SharpeRatio), t.MaxDrawdown, t.SQN, t.Trades))
		}
	} else {
		sb.WriteString("No completed trials.\n")
	}
	sb.WriteString("\n")

	// Failures
	if len(r.Failures) > 0 {
		sb.WriteString("## Failed Trials\n\n")
		for _, f := range r.Failures {
			sb.WriteString(fmt.Sprintf("- trial %d (%s): %s\n", f.TrialIndex, f.Parameters, f.Error))
		}
		sb.WriteString("\n")
	}

	return sb.String()
}

func formatSharpe(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.4f", *v)
}
