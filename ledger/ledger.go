// Package ledger appends signed decision records to a local log file.
//
// Each line is `timestamp|price|auxiliary|jobId|signatureHex`, where the
// signature is ed25519 over everything before the last separator. Appends
// are best-effort: a failed write is reported to the caller and logged, and
// never retried.
package ledger

import (
	"bufio"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/sentinel/errors"
	"github.com/teranos/sentinel/logger"
)

const separator = "|"

// Ledger is an append-only signed log.
type Ledger struct {
	path    string
	signer  *Signer
	logger  *zap.SugaredLogger
	timeNow func() time.Time

	mu sync.Mutex
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock injects the timestamp source.
func WithClock(timeNow func() time.Time) Option {
	return func(l *Ledger) { l.timeNow = timeNow }
}

// New creates a ledger writing to path with signer.
func New(path string, signer *Signer, log *zap.SugaredLogger, opts ...Option) *Ledger {
	l := &Ledger{
		path:    path,
		signer:  signer,
		logger:  logger.OrNop(log, "ledger"),
		timeNow: time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger.Infow("Ledger signing identity ready",
		"did", signer.DID,
		"public_key", signer.PublicKeyHex(),
		logger.FieldPath, path)
	return l
}

// Path returns the log file path.
func (l *Ledger) Path() string {
	return l.path
}

// Signer returns the signing identity.
func (l *Ledger) Signer() *Signer {
	return l.signer
}

// RecordTransaction signs and appends one record.
func (l *Ledger) RecordTransaction(price, auxiliary float64, jobID string) error {
	if strings.ContainsAny(jobID, separator+"\n") {
		return errors.Newf("job id %q contains a reserved character", jobID)
	}

	payload := FormatPayload(l.timeNow(), price, auxiliary, jobID)
	sig := l.signer.Sign([]byte(payload))

	if !ed25519.Verify(l.signer.PublicKey(), []byte(payload), sig) {
		err := errors.Mark(errors.Newf("self-verification failed for job %s", jobID), errors.ErrSigning)
		l.logger.Errorw("Ledger signature did not verify", logger.FieldJobID, jobID, logger.FieldError, err)
		return err
	}

	entry := payload + separator + hex.EncodeToString(sig) + "\n"

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		l.logger.Errorw("Failed to open ledger", logger.FieldPath, l.path, logger.FieldError, err)
		return errors.Wrapf(err, "failed to open ledger %s", l.path)
	}
	defer f.Close()

	if _, err := f.WriteString(entry); err != nil {
		l.logger.Errorw("Failed to write ledger entry", logger.FieldPath, l.path, logger.FieldError, err)
		return errors.Wrapf(err, "failed to append to ledger %s", l.path)
	}

	l.logger.Debugw("Ledger entry appended", logger.FieldJobID, jobID, logger.FieldPrice, price)
	return nil
}

// FormatPayload renders the signed part of a record.
func FormatPayload(ts time.Time, price, auxiliary float64, jobID string) string {
	return strings.Join([]string{
		ts.UTC().Format(time.RFC3339Nano),
		strconv.FormatFloat(price, 'f', -1, 64),
		strconv.FormatFloat(auxiliary, 'f', -1, 64),
		jobID,
	}, separator)
}

// Entry is a parsed ledger line.
type Entry struct {
	Timestamp time.Time
	Price     float64
	Auxiliary float64
	JobID     string
	Payload   string
	Signature []byte
}

// ParseEntry splits a line into its fields.
func ParseEntry(line string) (Entry, error) {
	cut := strings.LastIndex(line, separator)
	if cut < 0 {
		return Entry{}, errors.New("missing signature field")
	}
	payload, sigHex := line[:cut], line[cut+1:]

	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return Entry{}, errors.Wrap(err, "signature is not hex")
	}

	fields := strings.Split(payload, separator)
	if len(fields) != 4 {
		return Entry{}, errors.Newf("expected 4 payload fields, got %d", len(fields))
	}

	ts, err := time.Parse(time.RFC3339Nano, fields[0])
	if err != nil {
		return Entry{}, errors.Wrap(err, "invalid timestamp")
	}
	price, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return Entry{}, errors.Wrap(err, "invalid price")
	}
	aux, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return Entry{}, errors.Wrap(err, "invalid auxiliary value")
	}

	return Entry{
		Timestamp: ts,
		Price:     price,
		Auxiliary: aux,
		JobID:     fields[3],
		Payload:   payload,
		Signature: sig,
	}, nil
}

// Verify checks the entry's signature against pub.
func (e Entry) Verify(pub ed25519.PublicKey) bool {
	return ed25519.Verify(pub, []byte(e.Payload), e.Signature)
}

// VerifyFile checks every line of path against pub and returns the number of
// valid entries. The first malformed or forged line stops verification.
func VerifyFile(path string, pub ed25519.PublicKey) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to open ledger %s", path)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	n := 0
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}
		entry, err := ParseEntry(line)
		if err != nil {
			return n, errors.WithDetail(errors.Wrapf(err, "line %d is malformed", lineNo), fmt.Sprintf("file: %s", path))
		}
		if !entry.Verify(pub) {
			return n, errors.Mark(errors.Newf("line %d: signature does not verify (job %s)", lineNo, entry.JobID), errors.ErrSigning)
		}
		n++
	}
	if err := scanner.Err(); err != nil {
		return n, errors.Wrapf(err, "failed to read ledger %s", path)
	}
	return n, nil
}
