package log

import (
	"os"

	"github.com/rs/zerolog"

	pkgerrors "github.com/ensemblelab/ensemble/pkg/errors"
)

// InstallWarningSink routes pipeline warnings through zerolog on stderr.
// Warning types implementing zerolog.LogObjectMarshaler are emitted as
// structured objects; anything else falls back to the error field.
func InstallWarningSink(level zerolog.Level) {
	logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	pkgerrors.SetZerologWarnFunc(func(warning error) {
		event := logger.Warn()
		if obj, ok := warning.(zerolog.LogObjectMarshaler); ok {
			event.EmbedObject(obj).Msg("pipeline warning")
			return
		}
		event.Err(warning).Msg("pipeline warning")
	})
}
