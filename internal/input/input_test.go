package input

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoeyes/compass/internal/dispatcher"
	"github.com/autoeyes/compass/internal/sensor"
)

func TestParse(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		line    string
		command string
		args    []string
	}{
		{"orientation 350.5", CmdOrientation, []string{"350.5"}},
		{"  ORIENTATION 0  ", CmdOrientation, []string{"0"}},
		{"tare", CmdTare, nil},
		{"actor pedestrian-1", CmdActor, []string{"pedestrian-1"}},
		{"actor two words", CmdActor, []string{"two words"}},
		{"action run", CmdAction, []string{"run"}},
		{"direction none", CmdDirection, []string{"none"}},
		{"urgency demand", CmdUrgency, []string{"demand"}},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			e, err := Parse(tt.line, now)
			require.NoError(t, err)
			assert.Equal(t, tt.command, e.Command)
			assert.Equal(t, tt.args, e.Args)
			assert.Equal(t, now, e.Timestamp)
		})
	}
}

func TestParse_Skips(t *testing.T) {
	for _, line := range []string{"", "   ", "# comment"} {
		_, err := Parse(line, time.Now())
		assert.ErrorIs(t, err, ErrSkip, "line %q", line)
	}
}

func TestParse_Errors(t *testing.T) {
	for _, line := range []string{
		"jump high",
		"orientation",
		"orientation north",
		"orientation NaN",
		"orientation +Inf",
		"tare now",
		"actor",
		"urgency   ",
	} {
		_, err := Parse(line, time.Now())
		require.Error(t, err, "line %q", line)
		assert.False(t, errors.Is(err, ErrSkip), "line %q", line)
	}
}

func TestSampleEvent(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e := SampleEvent(sensor.Sample{Alpha: 12.25, Time: at})

	assert.Equal(t, CmdOrientation, e.Command)
	assert.Equal(t, []string{"12.25"}, e.Args)
	assert.Equal(t, at, e.Timestamp)

	alpha, err := ParseAlpha(e.Args[0])
	require.NoError(t, err)
	assert.Equal(t, 12.25, alpha)
}

func TestScan(t *testing.T) {
	feed := strings.NewReader(`# session
actor A
orientation 10

bogus line
action run
`)

	var got []dispatcher.Event
	var bad []string
	err := Scan(context.Background(), feed,
		func(e dispatcher.Event) error {
			got = append(got, e)
			return nil
		},
		func(line string, err error) {
			bad = append(bad, line)
		},
	)
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, CmdActor, got[0].Command)
	assert.Equal(t, CmdOrientation, got[1].Command)
	assert.Equal(t, CmdAction, got[2].Command)
	assert.Equal(t, []string{"bogus line"}, bad)
}

func TestScan_SubmitErrorReported(t *testing.T) {
	var bad []error
	err := Scan(context.Background(), strings.NewReader("orientation 1\n"),
		func(dispatcher.Event) error { return errors.New("queue full: :ORIENTATION:") },
		func(_ string, err error) { bad = append(bad, err) },
	)
	require.NoError(t, err)
	require.Len(t, bad, 1)
	assert.Contains(t, bad[0].Error(), "queue full")
}

func TestScan_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Scan(ctx, strings.NewReader("actor A\n"), func(dispatcher.Event) error {
		t.Error("submit called after cancel")
		return nil
	}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
