package miniaudio

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/levial/levial/core/audio/miniaudio"

var logger = otelslog.NewLogger(scopeName)
