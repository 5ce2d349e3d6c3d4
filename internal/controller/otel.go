package controller

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/autoeyes/compass/internal/controller"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}
