package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"coverwatcher/internal/storage"
)

// Export renders recorded cycles as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-time.Duration(opts.MaxPoints) * a.Config.Scheduler.Interval)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	samples, err := store.ListSamplesBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		a.Logger.Info().Msg("no cycles found for export window")
		return nil
	}

	downsampled := downsampleSamples(samples, opts.MaxPoints)
	a.Logger.Info().Int("total", len(samples)).Int("exported", len(downsampled)).Msg("exporting cycles")

	if opts.CSVPath != "" {
		if err := writeSamplesCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeSamplesPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleSamples(samples []storage.CycleSample, max int) []storage.CycleSample {
	if max <= 0 || len(samples) <= max {
		return samples
	}

	result := make([]storage.CycleSample, 0, max)
	step := float64(len(samples)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(samples) {
			idx = len(samples) - 1
		}
		result = append(result, samples[idx])
	}
	return result
}

func writeSamplesCSV(path string, samples []storage.CycleSample) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"cycle_ts", "sun_azimuth", "sun_elevation", "forecast_max", "temp_hot", "weather_sunny", "covers_total", "covers_moved", "status", "message"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, sample := range samples {
		message := ""
		if sample.Message != nil {
			message = *sample.Message
		}
		record := []string{
			sample.CycleTS.Format(time.RFC3339),
			strconv.FormatFloat(sample.SunAzimuth, 'f', 1, 64),
			strconv.FormatFloat(sample.SunElevation, 'f', 1, 64),
			sample.ForecastMax.String(),
			strconv.FormatBool(sample.TempHot),
			strconv.FormatBool(sample.WeatherSunny),
			strconv.Itoa(sample.CoversTotal),
			strconv.Itoa(sample.CoversMoved),
			sample.Status,
			message,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeSamplesPNG(path string, samples []storage.CycleSample) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(samples))
	forecast := make([]float64, len(samples))
	elevation := make([]float64, len(samples))
	moved := make([]float64, len(samples))

	for i, sample := range samples {
		x[i] = sample.CycleTS
		forecast[i] = sample.ForecastMax.InexactFloat64()
		elevation[i] = sample.SunElevation
		moved[i] = float64(sample.CoversMoved)
	}

	degreeFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.1f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Forecast max (°C)",
			ValueFormatter: degreeFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Sun elevation (°)",
			ValueFormatter: degreeFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Forecast max",
				XValues: x,
				YValues: forecast,
			},
			chart.TimeSeries{
				Name:    "Covers moved",
				XValues: x,
				YValues: moved,
			},
			chart.TimeSeries{
				Name:    "Sun elevation",
				XValues: x,
				YValues: elevation,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
