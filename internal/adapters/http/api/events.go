package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/okian/lighttrace/internal/domain/model"
)

// maxEventBody caps POST /events payloads.
const maxEventBody = 64 << 10

// eventRequest mirrors the OpenAPI schema for POST /events.
type eventRequest struct {
	Category   string            `json:"category" validate:"required,max=128"`
	Operation  string            `json:"operation" validate:"required,max=512"`
	Status     string            `json:"status" validate:"max=64"`
	DurationMS float64           `json:"duration_ms" validate:"gte=0"`
	Message    string            `json:"message" validate:"max=4096"`
	Attributes map[string]string `json:"attributes" validate:"max=64,dive,keys,required,max=128,endkeys,max=1024"`
	TS         string            `json:"ts" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

var eventValidator = newValidator() //nolint:gochecknoglobals // validator caches struct metadata

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validate trims the identifying fields and checks the request against its tags.
func (e *eventRequest) validate() error {
	e.Category = strings.TrimSpace(e.Category)
	e.Operation = strings.TrimSpace(e.Operation)
	if err := eventValidator.Struct(e); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		msgs := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			msgs = append(msgs, fe.Field()+": "+fieldMessage(fe))
		}
		return errors.New(strings.Join(msgs, "; "))
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param()
	case "gte":
		return "must not be negative"
	case "datetime":
		return "must be RFC3339"
	default:
		return "failed " + fe.Tag()
	}
}

// entry converts a validated request into a trace entry.
func (e *eventRequest) entry() model.Entry {
	out := model.NewEntry(e.Category, e.Operation)
	if e.TS != "" {
		if ts, err := time.Parse(time.RFC3339, e.TS); err == nil {
			out.Timestamp = ts.UTC()
		}
	}
	if e.Status != "" {
		out.Status = e.Status
	}
	out.Duration = time.Duration(e.DurationMS * float64(time.Millisecond))
	out.Message = e.Message
	for k, v := range e.Attributes {
		out = out.WithAttribute(k, v)
	}
	return out
}

type ackResponse struct {
	Status string `json:"status"`
	ID     string `json:"id"`
}

// EventsHandler accepts trace entries from processes outside the host.
type EventsHandler struct {
	tracer Tracer
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(tracer Tracer) *EventsHandler {
	return &EventsHandler{tracer: tracer}
}

// HandlePostEvent handles POST /events requests.
func (h *EventsHandler) HandlePostEvent(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_event"
	var req eventRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", wrapKind(op, ErrBadRequest, err))
		return
	}

	e := req.entry()
	if ok := h.tracer.Record(r.Context(), e); !ok {
		writeError(w, http.StatusTooManyRequests, "backpressure", newKind(op, ErrBackpressure))
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", ID: e.ID})
}
