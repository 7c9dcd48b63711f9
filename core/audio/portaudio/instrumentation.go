package portaudio

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/levial/levial/core/audio/portaudio"

var logger = otelslog.NewLogger(scopeName)
