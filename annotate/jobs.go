package main

import (
	"context"
	"fmt"
	"image/color"
	"log/slog"
	"strings"

	"github.com/DeafMist/news-annotator/internal/agency"
	"github.com/DeafMist/news-annotator/internal/batch"
	"github.com/DeafMist/news-annotator/internal/chart"
	"github.com/DeafMist/news-annotator/internal/entities"
	"github.com/DeafMist/news-annotator/internal/models"
	"github.com/DeafMist/news-annotator/internal/processing"
	"github.com/DeafMist/news-annotator/internal/sentiment"
	"github.com/DeafMist/news-annotator/internal/sheet"
)

const (
	agencySheet  = "analysis"
	summarySheet = "summary"
	resultSheet  = "results"

	chartTitle = "Sentiment Distribution in News (Headline + 3 Sentences)"
)

var labelColors = map[string]color.Color{
	sentiment.LabelPositive: chart.Green,
	sentiment.LabelNegative: chart.Red,
	sentiment.LabelNeutral:  chart.Blue,
}

func (a *app) options(description string) batch.Options {
	return batch.Options{Description: description, Progress: a.progress, Log: a.log}
}

func (a *app) publish(ctx context.Context, kind string, row models.Row, fields map[string]any, degraded bool, reason string) {
	if !a.sinks.Enabled() {
		return
	}
	a.sinks.Publish(ctx, models.Annotation{
		ID:          kind + "-" + processing.BuildDocumentID(row.Title(), row.Text()),
		RunID:       a.runID,
		Kind:        kind,
		Row:         row.Index,
		Title:       row.Title(),
		Text:        row.Text(),
		Fields:      fields,
		Degraded:    degraded,
		Reason:      reason,
		AnnotatedAt: a.now(),
	})
}

func appendColumns(base []string, extra []string) []string {
	out := make([]string, 0, len(base)+len(extra))
	out = append(out, base...)
	return append(out, extra...)
}

func runEntities(ctx context.Context, a *app) error {
	table, err := sheet.Load(a.cfg.InputPath, models.ColumnText)
	if err != nil {
		return fmt.Errorf("load input: %w", err)
	}
	loaded := len(table.Rows)
	table = table.Head(a.cfg.Limit)
	a.log.Info("rows loaded", slog.Int("rows", loaded), slog.Int("processing", len(table.Rows)))

	extractor := entities.NewExtractor(a.pipeline, a.log)
	outcomes, report, err := batch.Run(ctx, table.Rows, a.options("entities"),
		func(ctx context.Context, row models.Row) models.Outcome[[]entities.Group] {
			return extractor.Extract(ctx, row.Text())
		})
	if err != nil {
		return err
	}

	out := sheet.Sheet{
		Name:    resultSheet,
		Columns: appendColumns(table.Columns, entities.ColumnNames),
		Rows:    make([][]any, 0, len(outcomes)),
	}
	for i, o := range outcomes {
		row := table.Rows[i]
		cols := entities.Format(o.Value)
		out.Rows = append(out.Rows, append(row.Cells(table.Columns), cols.Cells()...))
		a.publish(ctx, models.KindEntities, row, cols.Fields(), o.Degraded, o.Reason)
	}

	if err := sheet.Write(a.cfg.EntitiesOutput, out); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	a.log.Info("entities written",
		slog.String("output", a.cfg.EntitiesOutput),
		slog.Int("rows", report.Rows),
		slog.Int("degraded", report.Degraded),
		slog.Duration("elapsed", report.Elapsed),
	)
	return nil
}

func runAgency(ctx context.Context, a *app) error {
	table, err := sheet.Load(a.cfg.InputPath, models.ColumnText, models.ColumnScientistNews)
	if err != nil {
		return fmt.Errorf("load input: %w", err)
	}
	table = table.Head(a.cfg.Limit)

	stats := agency.Stats{Loaded: len(table.Rows)}
	flagged := table.Filter(func(r models.Row) bool {
		return r.Flag(models.ColumnScientistNews) && strings.TrimSpace(r.Text()) != ""
	})
	stats.Flagged = len(flagged.Rows)
	a.log.Info("rows loaded", slog.Int("rows", stats.Loaded), slog.Int("flagged", stats.Flagged))

	analyzer := agency.NewAnalyzer(a.pipeline, a.cfg.WindowRadius, a.log)
	outcomes, report, err := batch.Run(ctx, flagged.Rows, a.options("agency"),
		func(ctx context.Context, row models.Row) models.Outcome[agency.Tally] {
			return analyzer.Analyze(ctx, row.Text())
		})
	if err != nil {
		return err
	}
	stats.Degraded = report.Degraded

	analysis := sheet.Sheet{Name: agencySheet, Columns: appendColumns(table.Columns, agency.ColumnNames)}
	for i, o := range outcomes {
		if o.Value.Total() == 0 {
			continue
		}
		row := flagged.Rows[i]
		sum := agency.Summarize(analyzer.Matcher(), row.Text(), o.Value)
		stats.Observe(sum)
		analysis.Rows = append(analysis.Rows, append(row.Cells(table.Columns), sum.Cells()...))
		a.publish(ctx, models.KindAgency, row, sum.Fields(), o.Degraded, o.Reason)
	}

	columns, values := stats.Sheet()
	summary := sheet.Sheet{Name: summarySheet, Columns: columns, Rows: [][]any{values}}
	if err := sheet.Write(a.cfg.AgencyOutput, analysis, summary); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	a.log.Info("agency written",
		slog.String("output", a.cfg.AgencyOutput),
		slog.Int("with_scientists", stats.Retained),
		slog.Int("with_quotes", stats.WithQuotes),
		slog.Float64("mean_agency_ratio", stats.MeanRatio()),
		slog.Int("degraded", stats.Degraded),
	)
	return nil
}

type scored struct {
	text   string
	result sentiment.Result
}

func runSentiment(ctx context.Context, a *app) error {
	table, err := sheet.Load(a.cfg.InputPath, models.ColumnTitle, models.ColumnText)
	if err != nil {
		return fmt.Errorf("load input: %w", err)
	}
	loaded := len(table.Rows)
	table = table.Filter(func(r models.Row) bool {
		return strings.TrimSpace(r.Text()) != "" && strings.TrimSpace(r.Title()) != ""
	}).Head(a.cfg.Limit)
	a.log.Info("rows loaded", slog.Int("rows", loaded), slog.Int("processing", len(table.Rows)))

	scorer := sentiment.NewScorer(a.pipeline, a.log)
	outcomes, report, err := batch.Run(ctx, table.Rows, a.options("sentiment"),
		func(ctx context.Context, row models.Row) models.Outcome[scored] {
			key := sentiment.KeyText(row.Title(), row.Text())
			o := scorer.Score(ctx, key)
			return models.Outcome[scored]{Value: scored{text: key, result: o.Value}, Degraded: o.Degraded, Reason: o.Reason}
		})
	if err != nil {
		return err
	}

	columns := appendColumns(table.Columns, sentiment.ColumnNames)
	rows := make([][]any, 0, len(outcomes))
	results := make([]sentiment.Result, 0, len(outcomes))
	for i, o := range outcomes {
		row := table.Rows[i]
		rows = append(rows, append(row.Cells(table.Columns), o.Value.result.Cells(o.Value.text)...))
		results = append(results, o.Value.result)
		a.publish(ctx, models.KindSentiment, row, o.Value.result.Fields(o.Value.text), o.Degraded, o.Reason)
	}

	if err := sheet.Write(a.cfg.SentimentOutput, sheet.Sheet{Name: resultSheet, Columns: columns, Rows: rows}); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if err := sheet.WriteCSV(a.cfg.SentimentCSV, columns, rows); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}

	dist := sentiment.Distribution(results)
	attrs := make([]any, 0, len(dist)+1)
	bars := make([]chart.Bar, 0, len(dist))
	for _, c := range dist {
		attrs = append(attrs, slog.Int(strings.ToLower(c.Label), c.N))
		bars = append(bars, chart.Bar{Label: c.Label, Value: float64(c.N), Color: labelColors[c.Label]})
	}
	a.log.Info("sentiment distribution", attrs...)

	if len(bars) > 0 {
		if err := chart.Bars(a.cfg.SentimentChart, chartTitle, "Sentiment", "Count", bars); err != nil {
			return fmt.Errorf("write chart: %w", err)
		}
	}

	a.log.Info("sentiment written",
		slog.String("output", a.cfg.SentimentOutput),
		slog.String("csv", a.cfg.SentimentCSV),
		slog.String("chart", a.cfg.SentimentChart),
		slog.Int("rows", report.Rows),
		slog.Int("degraded", report.Degraded),
	)
	return nil
}
