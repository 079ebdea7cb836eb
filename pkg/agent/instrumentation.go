package agent

import (
	"context"

	"github.com/positive-doo/multitool/pkg/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "multitool.agent"

func truncateString(s string, maxLen int) string {
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}

func startTurnSpan(ctx context.Context, question string) (context.Context, trace.Span) {
	return observability.GetTracer(tracerName).Start(ctx, observability.SpanTurn,
		trace.WithAttributes(attribute.String("question_preview", truncateString(question, 100))))
}

func startToolSpan(ctx context.Context, toolName, input string) (context.Context, trace.Span) {
	return observability.GetTracer(tracerName).Start(ctx, observability.SpanToolExecution,
		trace.WithAttributes(
			attribute.String(observability.AttrToolName, toolName),
			attribute.String("input_preview", truncateString(input, 100)),
		))
}
