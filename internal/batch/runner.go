// Package batch drives one sequential pass of an annotation job over table rows.
package batch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/DeafMist/news-annotator/internal/logger"
	"github.com/DeafMist/news-annotator/internal/models"
	"github.com/schollz/progressbar/v3"
)

// Options tune a run. A nil Progress writer disables the progress bar.
type Options struct {
	Description string
	Progress    io.Writer
	Log         *slog.Logger
}

// Report summarises a finished run.
type Report struct {
	Rows     int
	Degraded int
	Elapsed  time.Duration
}

// Func annotates a single row.
type Func[T any] func(ctx context.Context, row models.Row) models.Outcome[T]

// Run applies fn to every row in order and returns the outcomes index-aligned with rows.
// Cancellation is checked between rows; on cancel the outcomes gathered so far are
// returned together with the context error.
func Run[T any](ctx context.Context, rows []models.Row, opts Options, fn Func[T]) ([]models.Outcome[T], Report, error) {
	log := opts.Log
	if log == nil {
		log = logger.Discard()
	}

	bar := newBar(len(rows), opts)
	start := time.Now()
	out := make([]models.Outcome[T], 0, len(rows))
	var report Report

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			report.Elapsed = time.Since(start)
			return out, report, fmt.Errorf("batch %s interrupted after %d rows: %w", opts.Description, report.Rows, err)
		}

		o := fn(ctx, row)
		out = append(out, o)
		report.Rows++
		if o.Degraded {
			report.Degraded++
			log.Debug("row degraded", slog.Int("row", row.Index), slog.String("reason", o.Reason))
		}

		if bar != nil {
			_ = bar.Add(1)
		}
	}

	if bar != nil {
		_ = bar.Finish()
	}
	report.Elapsed = time.Since(start)

	log.Info("batch finished",
		slog.String("job", opts.Description),
		slog.Int("rows", report.Rows),
		slog.Int("degraded", report.Degraded),
		slog.Duration("elapsed", report.Elapsed),
	)
	return out, report, nil
}

func newBar(total int, opts Options) *progressbar.ProgressBar {
	if opts.Progress == nil || total == 0 {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(opts.Progress),
		progressbar.OptionSetDescription(opts.Description),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(opts.Progress) }),
	)
}
