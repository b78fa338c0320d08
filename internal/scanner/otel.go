package scanner

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/RepairMe/extension/internal/scanner"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}
