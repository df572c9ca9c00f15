package synth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/sentinel/errors"
	"github.com/teranos/sentinel/internal/httpclient"
	"github.com/teranos/sentinel/logger"
)

// SynthesizeRequest is the request format for /api/synthesize
type SynthesizeRequest struct {
	Depth int  `json:"depth"`
	DD    bool `json:"dynamical_decoupling"`
}

// SynthesizeResponse is the response format from /api/synthesize
type SynthesizeResponse struct {
	Success bool   `json:"success"`
	Circuit string `json:"circuit,omitempty"`
	Format  string `json:"format,omitempty"`
	Error   string `json:"error,omitempty"`
	Stderr  string `json:"stderr,omitempty"`
}

// CalibrateRequest is the request format for /api/calibrate. The response is
// a Calibration.
type CalibrateRequest struct {
	Backend string  `json:"backend"`
	EPLG    float64 `json:"eplg"`
	Qubits  int     `json:"qubits"`
}

// HTTP delegates synthesis, calibration and pricing to a service at baseURL.
type HTTP struct {
	baseURL string
	dd      bool
	client  *httpclient.SaferClient
	logger  *zap.SugaredLogger
}

// NewHTTP creates an HTTP synthesizer. Services on localhost need allowPrivate.
func NewHTTP(baseURL string, timeout time.Duration, allowPrivate bool, log *zap.SugaredLogger) (*HTTP, error) {
	client := httpclient.NewSaferClientWithOptions(timeout, httpclient.SaferClientOptions{
		AllowPrivate: allowPrivate,
	})
	return NewHTTPWithClient(baseURL, client, log)
}

// NewHTTPWithClient creates an HTTP synthesizer on an existing client.
func NewHTTPWithClient(baseURL string, client *httpclient.SaferClient, log *zap.SugaredLogger) (*HTTP, error) {
	if baseURL == "" {
		return nil, errors.New("synth url is required for http mode")
	}
	if _, err := client.ValidateURL(baseURL); err != nil {
		return nil, errors.Wrapf(err, "invalid synth url %q", baseURL)
	}
	return &HTTP{
		baseURL: strings.TrimRight(baseURL, "/"),
		dd:      true,
		client:  client,
		logger:  logger.OrNop(log, "synth"),
	}, nil
}

// WithDecoupling sets whether synthesis requests ask for dynamical decoupling.
func (h *HTTP) WithDecoupling(dd bool) *HTTP {
	h.dd = dd
	return h
}

// Synthesize posts depth to the service.
func (h *HTTP) Synthesize(ctx context.Context, depth int) (Workload, error) {
	if err := checkDepth(depth); err != nil {
		return Workload{}, err
	}

	url := h.baseURL + "/api/synthesize"
	w, err := h.postCircuit(ctx, url, SynthesizeRequest{Depth: depth, DD: h.dd}, fmt.Sprintf("depth %d", depth))
	if err != nil {
		return Workload{}, err
	}
	w.Depth = depth

	h.logger.Debugw("Synthesized workload", logger.FieldDepth, depth, logger.FieldURL, url)
	return w, nil
}

// Calibrate posts the device parameters to /api/calibrate.
func (h *HTTP) Calibrate(ctx context.Context, backend string, eplg float64, qubits int) (Calibration, error) {
	if err := checkCalibrationInput(eplg, qubits); err != nil {
		return Calibration{}, err
	}

	var cal Calibration
	url := h.baseURL + "/api/calibrate"
	req := CalibrateRequest{Backend: backend, EPLG: eplg, Qubits: qubits}
	if err := h.client.DoJSON(ctx, http.MethodPost, url, "", req, &cal); err != nil {
		return Calibration{}, errors.External(err, "synth")
	}
	if len(cal.Qubits) == 0 {
		return Calibration{}, errors.External(errors.Newf("calibration service reported no qubits for %s", backend), "synth")
	}
	return cal, nil
}

// Price posts the contract to /api/price and reads the pricing circuit.
func (h *HTTP) Price(ctx context.Context, oc OptionContract) (Pricing, error) {
	if err := oc.Validate(); err != nil {
		return Pricing{}, err
	}
	w, err := h.postCircuit(ctx, h.baseURL+"/api/price", oc, fmt.Sprintf("spot %g", oc.Spot))
	if err != nil {
		return Pricing{}, err
	}
	return pricingFor(oc, w), nil
}

// postCircuit posts in to url and expects a SynthesizeResponse carrying a circuit.
func (h *HTTP) postCircuit(ctx context.Context, url string, in any, what string) (Workload, error) {
	var resp SynthesizeResponse
	if err := h.client.DoJSON(ctx, http.MethodPost, url, "", in, &resp); err != nil {
		return Workload{}, errors.External(err, "synth")
	}

	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "synthesis failed (no error message)"
		}
		err := errors.Newf("synthesis service rejected %s: %s", what, msg)
		if resp.Stderr != "" {
			err = errors.WithDetail(err, "stderr: "+resp.Stderr)
		}
		return Workload{}, errors.External(err, "synth")
	}
	if resp.Circuit == "" {
		return Workload{}, errors.External(errors.New("synthesis service returned an empty circuit"), "synth")
	}

	format := resp.Format
	if format == "" {
		format = detectFormat(resp.Circuit)
	}
	return Workload{
		Format:  format,
		Circuit: resp.Circuit,
		Source:  ModeHTTP,
	}, nil
}
