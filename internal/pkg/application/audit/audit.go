// Package audit posts best effort audit events about entity mutations
// to a configured endpoint. Failures are logged, never propagated to
// the mutating request.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/bouttier/mapentity/pkg/mapentity/entities"
	"github.com/bouttier/mapentity/pkg/mapentity/policy"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
)

type Recorder interface {
	Start() error
	Stop() error

	EntityCreated(ctx context.Context, p policy.Principal, e entities.Entity)
	EntityChanged(ctx context.Context, p policy.Principal, e entities.Entity)
	EntityDeleted(ctx context.Context, p policy.Principal, kind, id string)
}

var tracer = otel.Tracer("mapentity/audit")

type Event struct {
	Action     string    `json:"action"`
	Kind       string    `json:"kind"`
	EntityID   string    `json:"entityId"`
	Principal  string    `json:"principal"`
	RecordedAt time.Time `json:"recordedAt"`
}

type action func()

type recorder struct {
	started  bool
	endpoint string

	queue chan action
}

func NewRecorder(ctx context.Context, endpoint string) (Recorder, error) {
	return &recorder{
		endpoint: endpoint,
		queue:    make(chan action, 32),
	}, nil
}

func (r *recorder) Start() error {
	if r.started {
		return fmt.Errorf("already started")
	}

	r.started = true

	go r.run()

	return nil
}

func (r *recorder) Stop() error {
	if r.started {
		// Create a result channel so that we can wait for completion
		resultChan := make(chan bool)

		r.queue <- func() {
			// close the queue to signal the consumer that we are going out of business
			close(r.queue)
			resultChan <- true
		}

		// blocking read until our action has been processed
		<-resultChan
	}

	return nil
}

func (r *recorder) EntityCreated(ctx context.Context, p policy.Principal, e entities.Entity) {
	r.enqueue(ctx, Event{Action: "add", Kind: e.Kind(), EntityID: e.ID(), Principal: p.ID})
}

func (r *recorder) EntityChanged(ctx context.Context, p policy.Principal, e entities.Entity) {
	r.enqueue(ctx, Event{Action: "change", Kind: e.Kind(), EntityID: e.ID(), Principal: p.ID})
}

func (r *recorder) EntityDeleted(ctx context.Context, p policy.Principal, kind, id string) {
	r.enqueue(ctx, Event{Action: "delete", Kind: kind, EntityID: id, Principal: p.ID})
}

func (r *recorder) enqueue(ctx context.Context, evt Event) {
	if !r.started {
		return
	}

	var err error

	evt.RecordedAt = time.Now().UTC()
	logger := logging.GetFromContext(ctx)

	ctx, span := tracer.Start(
		tracing.ExtractHeaders(context.Background(), tracing.InjectHeaders(ctx)),
		"post-audit-event",
	)

	r.queue <- func() {
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

		err = postEvent(ctx, evt, r.endpoint)
		if err != nil {
			logger.Error("failed to post audit event", "err", err.Error())
		}
	}
}

func postEvent(ctx context.Context, evt Event, endpoint string) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshalling error (%w)", err)
	}

	httpClient := http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("unable to create new request (%w)", err)
	}

	req.Header.Add("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request (%w)", err)
	}

	defer resp.Body.Close()

	return nil
}

func (r *recorder) run() {
	// repeat until the queue is closed
	for action := range r.queue {
		if action == nil {
			return
		}

		action()
	}
}
