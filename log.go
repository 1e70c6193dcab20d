package core

import "github.com/rs/zerolog"

// Log is the logging seam used by mutation and accrual paths.
type Log interface {
	Info() *zerolog.Event
	Debug() *zerolog.Event
	Warn() *zerolog.Event
	Error() *zerolog.Event
}
