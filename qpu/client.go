// Package qpu is the session-oriented client for the remote execution backend.
//
// A session must be open before any job is submitted and closed when no
// longer needed. Without an access token the client runs as a digital twin:
// every call succeeds locally with generated ids and nothing leaves the
// process.
package qpu

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/sentinel/db"
	"github.com/teranos/sentinel/errors"
	"github.com/teranos/sentinel/internal/httpclient"
	"github.com/teranos/sentinel/logger"
)

// Client modes.
const (
	ModeLive = "live"
	ModeTwin = "twin"
)

// Defaults for the hosted runtime.
const (
	DefaultURL      = "https://api.quantum-computing.ibm.com/runtime"
	DefaultInstance = "ibm-q/open/main"
	DefaultBackend  = "ibm_fez"
	DefaultTimeout  = 10 * time.Second
)

// Config configures the backend client.
type Config struct {
	URL                 string        `mapstructure:"url"`
	Token               string        `mapstructure:"token"`
	Instance            string        `mapstructure:"instance"`
	Name                string        `mapstructure:"name"` // backend device name
	Timeout             time.Duration `mapstructure:"timeout"`
	MaxSubmitsPerMinute int           `mapstructure:"max_submits_per_minute"`
	AllowPrivate        bool          `mapstructure:"allow_private"`
}

// DefaultConfig returns a twin-mode configuration for the hosted runtime.
func DefaultConfig() Config {
	return Config{
		URL:                 DefaultURL,
		Instance:            DefaultInstance,
		Name:                DefaultBackend,
		Timeout:             DefaultTimeout,
		MaxSubmitsPerMinute: 30,
	}
}

// Client talks to the execution backend.
type Client struct {
	cfg     Config
	http    *httpclient.SaferClient
	limiter *Limiter
	store   *Store
	logger  *zap.SugaredLogger
	timeNow func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithStore records every accepted submission in store.
func WithStore(store *Store) Option {
	return func(c *Client) { c.store = store }
}

// WithHTTPClient replaces the transport (tests use httpclient.WrapClient).
func WithHTTPClient(hc *httpclient.SaferClient) Option {
	return func(c *Client) { c.http = hc }
}

// WithClock injects the time source used for limiting and job timestamps.
func WithClock(timeNow func() time.Time) Option {
	return func(c *Client) { c.timeNow = timeNow }
}

// NewClient creates a backend client. An empty token selects twin mode.
func NewClient(cfg Config, log *zap.SugaredLogger, opts ...Option) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")

	c := &Client{
		cfg:     cfg,
		logger:  logger.OrNop(log, "qpu"),
		timeNow: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = httpclient.NewSaferClientWithOptions(cfg.Timeout, httpclient.SaferClientOptions{
			AllowPrivate: cfg.AllowPrivate,
		})
	}
	c.limiter = NewLimiterWithClock(cfg.MaxSubmitsPerMinute, c.timeNow)

	if c.Mode() == ModeTwin {
		c.logger.Infow("Backend token not set, switching to digital twin mode",
			logger.FieldMode, ModeTwin)
	}
	return c
}

// Mode reports ModeLive or ModeTwin.
func (c *Client) Mode() string {
	if c.cfg.Token == "" {
		return ModeTwin
	}
	return ModeLive
}

// Backend returns the configured device name.
func (c *Client) Backend() string {
	return c.cfg.Name
}

type idResponse struct {
	ID string `json:"id"`
}

// OpenSession opens a session on backend and returns its id.
func (c *Client) OpenSession(ctx context.Context, backend string) (string, error) {
	if c.Mode() == ModeTwin {
		id := "twin-session-" + uuid.NewString()
		c.logger.Infow("Session established", logger.FieldSessionID, id, logger.FieldBackend, backend, logger.FieldMode, ModeTwin)
		return id, nil
	}

	body := map[string]string{
		"backend":  backend,
		"instance": c.cfg.Instance,
	}
	var resp idResponse
	if err := c.http.DoJSON(ctx, http.MethodPost, c.cfg.URL+"/sessions", c.cfg.Token, body, &resp); err != nil {
		return "", errors.External(errors.Wrapf(err, "failed to open session on %s", backend), "backend")
	}
	if resp.ID == "" {
		return "", errors.External(errors.New("session created but id missing"), "backend")
	}

	c.logger.Infow("Session established", logger.FieldSessionID, resp.ID, logger.FieldBackend, backend)
	return resp.ID, nil
}

// SubmitJob submits programID with params and options inside sessionID.
func (c *Client) SubmitJob(ctx context.Context, programID, sessionID string, params, options map[string]any) (string, error) {
	if sessionID == "" {
		return "", errors.WithStack(errors.ErrNoSession)
	}
	if err := c.limiter.Allow(); err != nil {
		return "", err
	}

	var jobID string
	if c.Mode() == ModeTwin {
		jobID = "twin-job-" + uuid.NewString()
	} else {
		body := map[string]any{
			"program_id": programID,
			"session_id": sessionID,
			"params":     params,
			"options":    options,
		}
		var resp idResponse
		if err := c.http.DoJSON(ctx, http.MethodPost, c.cfg.URL+"/jobs", c.cfg.Token, body, &resp); err != nil {
			return "", errors.External(errors.Wrapf(err, "failed to submit %s", programID), "backend")
		}
		jobID = resp.ID
		if jobID == "" {
			jobID = "unknown"
		}
	}

	c.logger.Infow("Job submitted",
		logger.FieldJobID, jobID,
		logger.FieldSessionID, sessionID,
		logger.FieldProgramID, programID,
		logger.FieldMode, c.Mode())

	c.record(ctx, Job{
		ID:          jobID,
		SessionID:   sessionID,
		ProgramID:   programID,
		Backend:     c.cfg.Name,
		Params:      params,
		Mode:        c.Mode(),
		SubmittedAt: c.timeNow(),
	})
	return jobID, nil
}

// record persists job; failures are logged and never fail the submission.
func (c *Client) record(ctx context.Context, job Job) {
	if c.store == nil {
		return
	}
	if err := c.store.Record(ctx, job); err != nil {
		if db.IsDatabaseClosed(err) {
			c.logger.Debugw("Job store closed, submission not recorded", logger.FieldJobID, job.ID)
			return
		}
		c.logger.Warnw("Failed to record job", logger.FieldJobID, job.ID, logger.FieldError, err)
	}
}

// CloseSession closes sessionID.
func (c *Client) CloseSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if c.Mode() == ModeTwin {
		c.logger.Infow("Session closed", logger.FieldSessionID, sessionID, logger.FieldMode, ModeTwin)
		return nil
	}

	u := c.cfg.URL + "/sessions/" + url.PathEscape(sessionID)
	if err := c.http.DoJSON(ctx, http.MethodDelete, u, c.cfg.Token, nil, nil); err != nil {
		return errors.External(errors.Wrapf(err, "failed to close session %s", sessionID), "backend")
	}
	c.logger.Infow("Session closed", logger.FieldSessionID, sessionID)
	return nil
}
