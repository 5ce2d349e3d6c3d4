// Package input turns the device's line-oriented event feed into dispatcher
// events. One line is one event:
//
//	orientation <alpha>
//	tare
//	actor <identity>
//	action <value>
//	direction <value|none>
//	urgency <value|none>
//
// Blank lines and lines starting with # are ignored.
package input

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/autoeyes/compass/internal/dispatcher"
	"github.com/autoeyes/compass/internal/sensor"
)

// Dispatcher commands.
const (
	CmdOrientation = ":ORIENTATION:"
	CmdTare        = ":TARE:"
	CmdActor       = ":ACTOR:"
	CmdAction      = ":ACTION:"
	CmdDirection   = ":DIRECTION:"
	CmdUrgency     = ":URGENCY:"
)

// ErrSkip marks a line that carries no event.
var ErrSkip = errors.New("no event")

var keywords = map[string]string{
	"orientation": CmdOrientation,
	"tare":        CmdTare,
	"actor":       CmdActor,
	"action":      CmdAction,
	"direction":   CmdDirection,
	"urgency":     CmdUrgency,
}

// Parse converts one feed line into an event stamped with now.
func Parse(line string, now time.Time) (dispatcher.Event, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return dispatcher.Event{}, ErrSkip
	}

	keyword, value, _ := strings.Cut(line, " ")
	keyword = strings.ToLower(keyword)
	value = strings.TrimSpace(value)

	cmd, ok := keywords[keyword]
	if !ok {
		return dispatcher.Event{}, fmt.Errorf("unknown event %q", keyword)
	}

	e := dispatcher.Event{Command: cmd, Timestamp: now}
	switch cmd {
	case CmdTare:
		if value != "" {
			return dispatcher.Event{}, fmt.Errorf("tare takes no value, got %q", value)
		}
		return e, nil
	case CmdOrientation:
		if _, err := ParseAlpha(value); err != nil {
			return dispatcher.Event{}, err
		}
	default:
		if value == "" {
			return dispatcher.Event{}, fmt.Errorf("%s needs a value", keyword)
		}
	}
	e.Args = []string{value}
	return e, nil
}

// ParseAlpha parses a raw orientation angle. Only finite numbers are accepted.
func ParseAlpha(s string) (float64, error) {
	alpha, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid orientation %q: %w", s, err)
	}
	if math.IsNaN(alpha) || math.IsInf(alpha, 0) {
		return 0, fmt.Errorf("invalid orientation %q: not finite", s)
	}
	return alpha, nil
}

// SampleEvent wraps a sensor sample as an orientation event.
func SampleEvent(s sensor.Sample) dispatcher.Event {
	return dispatcher.Event{
		Command:   CmdOrientation,
		Args:      []string{strconv.FormatFloat(s.Alpha, 'f', -1, 64)},
		Timestamp: s.Time,
	}
}

// Scan reads events from r and passes each to submit until r is exhausted
// or ctx is done. Malformed lines go to onError and scanning continues.
func Scan(ctx context.Context, r io.Reader, submit func(dispatcher.Event) error, onError func(line string, err error)) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		line := scanner.Text()
		e, err := Parse(line, time.Now())
		if errors.Is(err, ErrSkip) {
			continue
		}
		if err == nil {
			err = submit(e)
		}
		if err != nil && onError != nil {
			onError(line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading events: %w", err)
	}
	return nil
}
