package qpu

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/teranos/sentinel/logger"
)

// DefaultProgramID is the runtime primitive jobs are submitted to.
const DefaultProgramID = "sampler"

// DefaultOptions are the runtime options sent with every job.
func DefaultOptions() map[string]any {
	return map[string]any{
		"optimization_level": 3,
		"resilience_level":   1,
		"transpilation": map[string]any{
			"skip_transpilation": false,
		},
	}
}

// Dispatcher keeps one session open on a backend and submits jobs into it.
// The session is opened on first use and dropped after a failed submission
// so the next one starts from a fresh session.
type Dispatcher struct {
	client    *Client
	backend   string
	programID string
	logger    *zap.SugaredLogger

	mu        sync.Mutex
	sessionID string
}

// NewDispatcher creates a dispatcher for programID on the client's backend.
func NewDispatcher(client *Client, programID string, log *zap.SugaredLogger) *Dispatcher {
	if programID == "" {
		programID = DefaultProgramID
	}
	return &Dispatcher{
		client:    client,
		backend:   client.Backend(),
		programID: programID,
		logger:    logger.OrNop(log, "qpu"),
	}
}

// Submit sends params with options, opening a session first if needed.
// A failure to open aborts the submission.
func (d *Dispatcher) Submit(ctx context.Context, params, options map[string]any) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.sessionID == "" {
		id, err := d.client.OpenSession(ctx, d.backend)
		if err != nil {
			return "", err
		}
		d.sessionID = id
	}

	jobID, err := d.client.SubmitJob(ctx, d.programID, d.sessionID, params, options)
	if err != nil {
		d.dropSession(ctx)
		return "", err
	}
	return jobID, nil
}

// SessionID returns the open session, or "" if none.
func (d *Dispatcher) SessionID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessionID
}

// Close closes the open session, if any.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.sessionID
	d.sessionID = ""
	return d.client.CloseSession(ctx, id)
}

// dropSession forgets the session after closing it best-effort. Must be called with lock held.
func (d *Dispatcher) dropSession(ctx context.Context) {
	id := d.sessionID
	d.sessionID = ""
	if err := d.client.CloseSession(ctx, id); err != nil {
		d.logger.Debugw("Failed to close session after submit failure",
			logger.FieldSessionID, id, logger.FieldError, err)
	}
}
