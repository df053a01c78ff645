package commands

import (
	"context"
	"fmt"

	"github.com/ichi0g0y/alliance-bot/internal/types"
)

const msgInvalidTier = "Invalid tier. Please use `gamma` (monthly) or `beta` (quarterly)."

func (d *Dispatcher) runAwardCycle(ctx context.Context, req *Request) (string, error) {
	tier, err := types.ParseTier(req.Args.String("gamma|beta"))
	if err != nil {
		return msgInvalidTier, nil
	}

	req.Progress(ctx, fmt.Sprintf("⚙️ Running **%s (%s)** award cycle. This may take a moment...", tier.Title(), tier.Frequency()))
	report, err := d.svc.Awards.Run(ctx, tier)
	if err != nil {
		return "", err
	}
	if report.Header == "" {
		return report.String(), nil
	}
	return "✅ Award cycle finished. A detailed report has been sent to the log channel.", nil
}

func (d *Dispatcher) runAwardReset(ctx context.Context, req *Request) (string, error) {
	tier, err := types.ParseTier(req.Args.String("gamma|beta"))
	if err != nil {
		return msgInvalidTier, nil
	}

	req.Progress(ctx, fmt.Sprintf("🗑️ Deleting activity log data older than %d days... This may take a moment.", tier.Days()))
	deleted, err := d.svc.Awards.Purge(ctx, tier)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("✅ Data reset complete. Deleted %d old log entries.", deleted), nil
}
