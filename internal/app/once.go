package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
)

// Once runs a single decision cycle and prints the per-cover outcome. With
// Simulate set, no cover service call is issued; the would-be positions are
// still reported.
func (a *App) Once(ctx context.Context, opts OnceOptions) error {
	ha, err := a.newHAClient(opts.Simulate)
	if err != nil {
		return err
	}
	eng := a.newEngine(ha)

	resolved := eng.Config()
	if len(resolved.Covers) == 0 {
		return fmt.Errorf("no covers configured under automation.covers")
	}
	if resolved.SimulationMode {
		ha.SetSimulation(true)
	}

	ha.SetCutover(resolved.WeatherHotCutoverTime)
	coverStates := ha.CoverStates(ctx, resolved.Covers)

	result, err := eng.RunCycle(ctx, coverStates)
	if err != nil {
		return err
	}

	if result.HasSensorData {
		fmt.Fprintf(os.Stdout, "sun: azimuth %.1f° elevation %.1f°  forecast max: %.1f °C  hot: %t  sunny: %t\n",
			result.SunAzimuth, result.SunElevation, result.ForecastMax, result.TempHot, result.WeatherSunny)
	}
	if result.Message != "" {
		fmt.Fprintln(os.Stdout, result.Message)
	}
	if len(result.Covers) == 0 {
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Cover\tState\tCurrent\tDesired\tFinal\tOutcome")

	for _, coverID := range resolved.Covers {
		res, ok := result.Covers[coverID]
		if !ok {
			continue
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\n",
			coverID,
			orDash(res.State),
			formatPos(res.CurrentPos),
			formatPos(res.DesiredPos),
			formatPos(res.FinalPos),
			res.Message,
		)
	}

	writer.Flush()
	return nil
}

func formatPos(pos *int) string {
	if pos == nil {
		return "-"
	}
	return fmt.Sprintf("%d%%", *pos)
}

func orDash(v string) string {
	if v == "" {
		return "-"
	}
	return v
}
