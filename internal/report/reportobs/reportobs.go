package reportobs

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"ai-trading-floor/internal/interfaces"
	"ai-trading-floor/internal/logger"
	"ai-trading-floor/internal/trace"
	"ai-trading-floor/internal/types"
)

type observableReporter struct {
	reporter interfaces.Reporter
}

var _ interfaces.Reporter = (*observableReporter)(nil)

func Wrap(reporter interfaces.Reporter) interfaces.Reporter {
	return &observableReporter{
		reporter: reporter,
	}
}

func (or *observableReporter) Record(report types.CycleReport) error {
	ctx, span := trace.StartSpan(context.Background(), "report.Record",
		oteltrace.WithAttributes(attribute.Int("cycle", report.Cycle)),
	)
	defer span.End()

	if err := or.reporter.Record(report); err != nil {
		logger.ErrorWithErrSkip(ctx, 1, "Failed to record cycle", err, "cycle", report.Cycle)
		return err
	}

	logger.InfoSkip(ctx, 1, "Cycle recorded",
		"cycle", report.Cycle,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
		"duration_ms", report.Finished.Sub(report.Started).Milliseconds(),
	)
	return nil
}

func (or *observableReporter) Flush() (string, error) {
	op := logger.StartOperation(context.Background(), "report.Flush")
	ctx := op.GetContext()

	csvPath, err := or.reporter.Flush()
	if err != nil {
		op.EndWithError(err)
		return "", err
	}
	op.End("csv_path", csvPath)

	if csvPath == "" {
		logger.InfoSkip(ctx, 1, "No cycles to report")
		return "", nil
	}

	logger.InfoSkip(ctx, 1, "Cycle report written", "csv_path", csvPath)
	return csvPath, nil
}
