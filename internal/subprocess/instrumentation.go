package subprocess

import "go.opentelemetry.io/otel"

const scopeName = "github.com/levial/levial/internal/subprocess"

var tracer = otel.Tracer(scopeName)
