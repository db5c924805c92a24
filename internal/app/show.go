package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"coverwatcher/internal/storage"
)

// Show prints recent cycles, or recent movements with --movements.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show history")
	}
	if closeStore != nil {
		defer closeStore()
	}

	if opts.Movements {
		return showMovements(ctx, store, opts.Limit)
	}
	return showCycles(ctx, store, opts.Limit)
}

func showCycles(ctx context.Context, store storage.CycleSampleStore, limit int) error {
	samples, err := store.ListRecentSamples(ctx, limit)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		fmt.Fprintln(os.Stdout, "no cycles found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tElevation\tForecastMax\tHot\tSunny\tMoved\tStatus\tMessage")

	for _, sample := range samples {
		message := ""
		if sample.Message != nil {
			message = sanitizeInline(*sample.Message)
		}
		fmt.Fprintf(
			writer,
			"%s\t%.1f\t%s\t%t\t%t\t%d/%d\t%s\t%s\n",
			sample.CycleTS.UTC().Format(time.RFC3339),
			sample.SunElevation,
			sample.ForecastMax.StringFixed(1),
			sample.TempHot,
			sample.WeatherSunny,
			sample.CoversMoved,
			sample.CoversTotal,
			sample.Status,
			message,
		)
	}

	writer.Flush()
	return nil
}

func showMovements(ctx context.Context, store storage.MovementStore, limit int) error {
	movements, err := store.ListRecentMovements(ctx, limit)
	if err != nil {
		return err
	}
	if len(movements) == 0 {
		fmt.Fprintln(os.Stdout, "no movements found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tCover\tReason\tFrom\tTo")

	for _, movement := range movements {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%d%%\t%d%%\n",
			movement.CycleTS.UTC().Format(time.RFC3339),
			movement.CoverID,
			movement.Reason,
			movement.FromPosition,
			movement.ToPosition,
		)
	}

	writer.Flush()
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
