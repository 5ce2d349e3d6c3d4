// Package handlers bridges dispatcher events into the heading processor and
// the sync controller. Every handler runs on the dispatcher's Run goroutine.
package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/autoeyes/compass/internal/controller"
	"github.com/autoeyes/compass/internal/dispatcher"
	"github.com/autoeyes/compass/internal/heading"
	"github.com/autoeyes/compass/internal/input"
	"github.com/autoeyes/compass/internal/status"
)

// Dependencies holds everything the handlers act on.
type Dependencies struct {
	Heading    *heading.Processor
	Controller *controller.Controller
	Status     status.Reporter
	Logger     *slog.Logger
}

// Service provides one handler per input command.
type Service struct {
	deps Dependencies
}

// NewService creates a new handler service.
func NewService(deps Dependencies) (*Service, error) {
	if deps.Heading == nil || deps.Controller == nil {
		return nil, errors.New("handlers: heading processor and controller are required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{deps: deps}, nil
}

// Register wires every command into d. Orientation samples may be dropped
// under load; user selections never are.
func (s *Service) Register(d *dispatcher.Dispatcher) {
	d.Register(input.CmdOrientation, s.HandleOrientation)
	d.Register(input.CmdTare, s.HandleTare, dispatcher.Blocking(), dispatcher.Logged())
	d.Register(input.CmdActor, s.HandleActor, dispatcher.Blocking(), dispatcher.Logged())
	d.Register(input.CmdAction, s.HandleAction, dispatcher.Blocking(), dispatcher.Logged())
	d.Register(input.CmdDirection, s.HandleDirection, dispatcher.Blocking(), dispatcher.Logged())
	d.Register(input.CmdUrgency, s.HandleUrgency, dispatcher.Blocking(), dispatcher.Logged())
}

// HandleOrientation computes the tared bearing for a raw sample and hands it
// to the controller. It returns the bearing.
func (s *Service) HandleOrientation(e dispatcher.Event) (any, error) {
	value, err := single(e)
	if err != nil {
		return nil, err
	}
	alpha, err := input.ParseAlpha(value)
	if err != nil {
		return nil, err
	}

	bearing := s.deps.Heading.Compute(alpha)
	s.deps.Controller.SetBearing(bearing)
	return bearing, nil
}

// HandleTare makes the current heading the forward reference. Without a
// heading yet it only reports a warning.
func (s *Service) HandleTare(dispatcher.Event) (any, error) {
	offset, err := s.deps.Heading.Tare()
	if errors.Is(err, heading.ErrNoHeading) {
		s.deps.Logger.Warn("tare ignored", "error", err)
		s.report("Cannot set forward bearing: " + err.Error())
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	s.report(fmt.Sprintf("Forward bearing set to heading %d", int(math.Floor(offset))))
	return offset, nil
}

// HandleActor selects the identity the device reports as.
func (s *Service) HandleActor(e dispatcher.Event) (any, error) {
	return s.set(e, s.deps.Controller.SetIdentity)
}

// HandleAction selects the action tag.
func (s *Service) HandleAction(e dispatcher.Event) (any, error) {
	return s.set(e, s.deps.Controller.SetAction)
}

// HandleDirection selects the direction tag. "none" clears it.
func (s *Service) HandleDirection(e dispatcher.Event) (any, error) {
	return s.set(e, s.deps.Controller.SetDirection)
}

// HandleUrgency selects the urgency tag. "none" clears it.
func (s *Service) HandleUrgency(e dispatcher.Event) (any, error) {
	return s.set(e, s.deps.Controller.SetUrgency)
}

func (s *Service) set(e dispatcher.Event, apply func(string)) (any, error) {
	value, err := single(e)
	if err != nil {
		return nil, err
	}
	apply(value)
	return nil, nil
}

func (s *Service) report(msg string) {
	if s.deps.Status != nil {
		s.deps.Status.Report(msg)
	}
}

func single(e dispatcher.Event) (string, error) {
	if len(e.Args) != 1 {
		return "", fmt.Errorf("%s: expected 1 argument, got %d", e.Command, len(e.Args))
	}
	return e.Args[0], nil
}
