package backend

import (
	"io"

	logger "github.com/PolarWolf314/rimu/internal/logging"
)

func loggerForTest() logger.Logger {
	return logger.Logger{Out: io.Discard, Err: io.Discard}
}
