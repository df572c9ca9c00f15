package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	"go.uber.org/zap"

	"github.com/teranos/sentinel/errors"
	"github.com/teranos/sentinel/logger"
)

// Command runs an external tool. Each operation appends its inputs as the
// last arguments and reads the result from stdout.
type Command struct {
	argv    []string
	timeout time.Duration
	logger  *zap.SugaredLogger
}

// NewCommand parses commandLine with shell quoting rules.
func NewCommand(commandLine string, timeout time.Duration, log *zap.SugaredLogger) (*Command, error) {
	argv, err := shellquote.Split(commandLine)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid synth command %q", commandLine)
	}
	if len(argv) == 0 {
		return nil, errors.New("synth command is empty")
	}
	return &Command{
		argv:    argv,
		timeout: timeout,
		logger:  logger.OrNop(log, "synth"),
	}, nil
}

// Synthesize runs the tool for depth.
func (c *Command) Synthesize(ctx context.Context, depth int) (Workload, error) {
	if err := checkDepth(depth); err != nil {
		return Workload{}, err
	}

	circuit, err := c.run(ctx, strconv.Itoa(depth))
	if err != nil {
		return Workload{}, err
	}
	c.logger.Debugw("Synthesized workload", logger.FieldDepth, depth, "bytes", len(circuit))

	return Workload{
		Depth:   depth,
		Format:  detectFormat(circuit),
		Circuit: circuit,
		Source:  ModeCommand,
	}, nil
}

// Calibrate runs the tool with backend, eplg and qubit count appended and
// decodes the calibration JSON it prints.
func (c *Command) Calibrate(ctx context.Context, backend string, eplg float64, qubits int) (Calibration, error) {
	if err := checkCalibrationInput(eplg, qubits); err != nil {
		return Calibration{}, err
	}

	out, err := c.run(ctx, backend, strconv.FormatFloat(eplg, 'g', -1, 64), strconv.Itoa(qubits))
	if err != nil {
		return Calibration{}, err
	}
	var cal Calibration
	if err := json.Unmarshal([]byte(out), &cal); err != nil {
		return Calibration{}, errors.External(errors.Wrap(err, "calibration command printed invalid JSON"), "synth")
	}
	if len(cal.Qubits) == 0 {
		return Calibration{}, errors.External(errors.New("calibration command reported no qubits"), "synth")
	}
	return cal, nil
}

// Price runs the tool with spot, strike, vol, rate and maturity appended and
// reads the pricing circuit from stdout.
func (c *Command) Price(ctx context.Context, oc OptionContract) (Pricing, error) {
	if err := oc.Validate(); err != nil {
		return Pricing{}, err
	}

	args := make([]string, 0, 5)
	for _, f := range []float64{oc.Spot, oc.Strike, oc.Vol, oc.Rate, oc.Maturity} {
		args = append(args, strconv.FormatFloat(f, 'g', -1, 64))
	}
	circuit, err := c.run(ctx, args...)
	if err != nil {
		return Pricing{}, err
	}
	return pricingFor(oc, Workload{
		Format:  detectFormat(circuit),
		Circuit: circuit,
		Source:  ModeCommand,
	}), nil
}

// run executes the tool with extra appended and returns its trimmed stdout.
func (c *Command) run(ctx context.Context, extra ...string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args := append(append([]string{}, c.argv[1:]...), extra...)
	cmd := exec.CommandContext(ctx, c.argv[0], args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		err = errors.Wrapf(err, "synth command %s failed", shellquote.Join(cmd.Args...))
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = errors.WithDetail(err, "stderr: "+msg)
		}
		return "", errors.External(err, "synth")
	}

	out := strings.TrimSpace(stdout.String())
	if out == "" {
		return "", errors.External(errors.New("synth command produced no output"), "synth")
	}
	c.logger.Debugw("Synth command finished",
		"command", c.argv[0],
		logger.FieldDurationMS, time.Since(start).Milliseconds())
	return out, nil
}

func detectFormat(circuit string) string {
	switch {
	case strings.HasPrefix(circuit, "OPENQASM 2"):
		return FormatQASM2
	case strings.HasPrefix(circuit, "OPENQASM 3"):
		return "openqasm3"
	default:
		return "unknown"
	}
}
