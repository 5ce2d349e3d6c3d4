package actors

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
)

type server struct {
	store  *Store
	logger *slog.Logger
}

// NewRouter serves the actor API under /v{version}.
func NewRouter(store *Store, version string, logger *slog.Logger) *mux.Router {
	if logger == nil {
		logger = slog.Default()
	}
	s := &server{store: store, logger: logger}

	r := mux.NewRouter()
	r.Use(func(handler http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			m := httpsnoop.CaptureMetrics(handler, writer, request)
			logger.Debug("handled", "method", request.Method, "url", request.URL, "duration", m.Duration, "status", m.Code)
		})
	})

	r.Methods(http.MethodGet).Path("/healthcheck").HandlerFunc(s.healthcheck)

	api := r.PathPrefix("/v" + version).Subrouter()
	api.Methods(http.MethodGet).Path("/actors").HandlerFunc(s.list)
	api.Methods(http.MethodDelete).Path("/actors").HandlerFunc(s.clear)
	api.Methods(http.MethodGet).Path("/actors/{id}").HandlerFunc(s.get)
	api.Methods(http.MethodPut).Path("/actors/{id}").HandlerFunc(s.put)
	api.Methods(http.MethodDelete).Path("/actors/{id}").HandlerFunc(s.delete)

	return r
}

func (s *server) healthcheck(writer http.ResponseWriter, _ *http.Request) {
	writer.Header().Set("Content-Type", "text/plain")
	_, _ = writer.Write([]byte("ok"))
}

func (s *server) list(writer http.ResponseWriter, request *http.Request) {
	actors, err := s.store.Actors(request.Context())
	if err != nil {
		s.fail(writer, err)
		return
	}
	if actors == nil {
		actors = []Actor{}
	}
	writeJSON(writer, actors)
}

func (s *server) clear(writer http.ResponseWriter, request *http.Request) {
	if err := s.store.Clear(request.Context()); err != nil {
		s.fail(writer, err)
		return
	}
	s.logger.Info("cleared actors")
	writer.WriteHeader(http.StatusNoContent)
}

func (s *server) get(writer http.ResponseWriter, request *http.Request) {
	a, err := s.store.Get(request.Context(), mux.Vars(request)["id"])
	if err != nil {
		s.fail(writer, err)
		return
	}
	writeJSON(writer, a)
}

func (s *server) put(writer http.ResponseWriter, request *http.Request) {
	a, err := parseActor(mux.Vars(request)["id"], request.URL.Query())
	if err != nil {
		http.Error(writer, err.Error(), http.StatusBadRequest)
		return
	}

	previous, err := s.store.Sees(request.Context(), a)
	if err != nil {
		s.fail(writer, err)
		return
	}
	if previous == nil {
		s.logger.Info("sees actor", "actor", a.ID)
	}
	writer.WriteHeader(http.StatusNoContent)
}

func (s *server) delete(writer http.ResponseWriter, request *http.Request) {
	id := mux.Vars(request)["id"]
	q := request.URL.Query()

	seq, err := parseSeq(q)
	if err != nil {
		http.Error(writer, err.Error(), http.StatusBadRequest)
		return
	}
	timeSeen, err := parseTime(q)
	if err != nil {
		http.Error(writer, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.store.NoLongerSees(request.Context(), id, seq, timeSeen); err != nil {
		s.fail(writer, err)
		return
	}
	s.logger.Info("no longer sees actor", "actor", id)
	writer.WriteHeader(http.StatusNoContent)
}

func (s *server) fail(writer http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(writer, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrStale), errors.Is(err, ErrOutOfSync):
		s.logger.Debug("rejected update", "error", err)
		http.Error(writer, err.Error(), http.StatusConflict)
	default:
		s.logger.Error("request failed", "error", err)
		http.Error(writer, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(writer http.ResponseWriter, v any) {
	writer.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(writer).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

func parseActor(id string, q url.Values) (Actor, error) {
	a := Actor{
		ID:        id,
		Action:    q.Get("action"),
		Direction: q.Get("direction"),
		Urgency:   q.Get("urgency"),
	}

	if raw := q.Get("bearing"); raw != "" {
		b, err := strconv.Atoi(raw)
		if err != nil {
			return Actor{}, fmt.Errorf("invalid bearing %q", raw)
		}
		if b < 0 || b >= 360 {
			return Actor{}, fmt.Errorf("bearing %d out of range [0, 360)", b)
		}
		a.Bearing = &b
	}

	var err error
	if a.Seq, err = parseSeq(q); err != nil {
		return Actor{}, err
	}
	if a.TimeSeen, err = parseTime(q); err != nil {
		return Actor{}, err
	}
	return a, nil
}

func parseSeq(q url.Values) (uint64, error) {
	raw := q.Get("seq")
	if raw == "" {
		return 0, nil
	}
	seq, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid seq %q", raw)
	}
	return seq, nil
}

func parseTime(q url.Values) (*time.Time, error) {
	raw := q.Get("timeSeen")
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid timeSeen %q", raw)
	}
	t = t.UTC()
	return &t, nil
}
