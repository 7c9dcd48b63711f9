package playback

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const scopeName = "github.com/levial/levial/core/playback"

var logger = otelslog.NewLogger(scopeName)
