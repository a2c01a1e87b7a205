// Package reports builds report-action payloads and posts them to the
// external reporting API of an environment.
package reports

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/foxzi/techsupport/internal/metrics"
)

// ErrInvalidPayload is returned when an edited payload is not valid JSON
var ErrInvalidPayload = errors.New("payload is not valid JSON")

// Preview is the payload and target shown before a request is sent
type Preview struct {
	Operation Operation `json:"operation"`
	Payload   string    `json:"payload"`
	// URL is empty when the target cannot be resolved yet
	URL   string `json:"url"`
	Error string `json:"error,omitempty"`
}

// Service runs report actions against the records in a Directory
type Service struct {
	dir    Directory
	client *Client
	logger *slog.Logger
}

// NewService creates a report service
func NewService(dir Directory, client *Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{dir: dir, client: client, logger: logger}
}

// Preview builds the payload for sel. A payload error is returned; a
// missing target only leaves the URL empty with the reason in Error.
func (s *Service) Preview(op Operation, sel Selection) (Preview, error) {
	p, err := BuildPayload(op, payloadInput(s.dir, sel))
	if err != nil {
		return Preview{}, err
	}
	text, err := p.Indented()
	if err != nil {
		return Preview{}, err
	}

	out := Preview{Operation: op, Payload: text}
	target, err := ResolveTarget(s.dir, op, sel)
	if err != nil {
		out.Error = err.Error()
	} else {
		out.URL = target.URL
	}
	return out, nil
}

// Send posts the report request. When edited is non-empty it is sent as is
// instead of the generated payload. Resolution and payload errors are
// returned; remote failures are reported in the Response.
func (s *Service) Send(ctx context.Context, op Operation, sel Selection, edited string) (Response, error) {
	target, err := ResolveTarget(s.dir, op, sel)
	if err != nil {
		metrics.ObserveReportRequest(string(op), "rejected", 0)
		return Response{}, err
	}

	var body []byte
	if edited != "" {
		if !json.Valid([]byte(edited)) {
			metrics.ObserveReportRequest(string(op), "rejected", 0)
			return Response{}, ErrInvalidPayload
		}
		body = []byte(edited)
	} else {
		p, err := BuildPayload(op, payloadInput(s.dir, sel))
		if err != nil {
			metrics.ObserveReportRequest(string(op), "rejected", 0)
			return Response{}, err
		}
		if body, err = json.Marshal(p); err != nil {
			return Response{}, err
		}
	}

	start := time.Now()
	resp := s.client.Post(ctx, target.URL, target.Token, body)
	elapsed := time.Since(start).Seconds()

	switch {
	case resp.Error != "":
		metrics.ObserveReportRequest(string(op), "error", elapsed)
		s.logger.Warn("report request failed", "operation", op, "url", target.URL, "error", resp.Error)
	case resp.OK():
		metrics.ObserveReportRequest(string(op), "success", elapsed)
		s.logger.Info("report request sent", "operation", op, "url", target.URL, "status", resp.StatusCode)
	default:
		metrics.ObserveReportRequest(string(op), "failure", elapsed)
		s.logger.Warn("report request rejected by remote", "operation", op, "url", target.URL, "status", resp.StatusCode)
	}
	return resp, nil
}
