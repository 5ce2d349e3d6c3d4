// Package status is the human-readable message sink shown to the device user.
package status

import (
	"io"
	"sync"

	"github.com/rs/zerolog"
)

// Reporter accepts status messages. Implementations must be safe for
// concurrent use because transmission failures are reported from sender
// goroutines.
type Reporter interface {
	Report(msg string)
}

// Surface writes each message as a console line and remembers the latest one.
type Surface struct {
	mu   sync.RWMutex
	last string
	out  zerolog.Logger
}

// New creates a Surface writing to w.
func New(w io.Writer) *Surface {
	cw := zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    true,
		TimeFormat: "15:04:05",
	}
	return &Surface{
		out: zerolog.New(zerolog.SyncWriter(cw)).With().Timestamp().Logger(),
	}
}

// Report shows msg and makes it the current status.
func (s *Surface) Report(msg string) {
	s.mu.Lock()
	s.last = msg
	s.mu.Unlock()

	s.out.Log().Msg(msg)
}

// Last returns the most recent message, or "" if none was reported.
func (s *Surface) Last() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}
