// Package control exposes the annotator to a front end process as a line
// oriented JSON-RPC server on a pair of streams, usually stdin and stdout.
package control

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/fankserver/wordpool-annotator/internal/audio"
	"github.com/fankserver/wordpool-annotator/internal/feedback"
	"github.com/fankserver/wordpool-annotator/internal/observe"
	"github.com/fankserver/wordpool-annotator/internal/session"
	"github.com/fankserver/wordpool-annotator/internal/workflow"
	"github.com/fankserver/wordpool-annotator/internal/wordpool"
	"github.com/fankserver/wordpool-annotator/pkg/annotation"
	"github.com/fankserver/wordpool-annotator/pkg/transcriber"
	"github.com/sirupsen/logrus"
)

const (
	protocolVersion = "0.1.0"
	serverName      = "wordpool-annotator"
)

// Request is one line sent by the front end.
type Request struct {
	JSONRPC string          `json:"jsonrpc,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response answers a Request that carried an ID.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error describes a failed request. Message is the text shown to the user.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// Notification carries an engine event to the front end.
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

// Options configures a Server.
type Options struct {
	// DefaultAnnotator answers the annotator prompt when a commit does not
	// name one.
	DefaultAnnotator string

	// SnapToWordpool maps imported suggestions onto their closest
	// wordpool word.
	SnapToWordpool bool

	// Language is passed to the transcriber as a hint.
	Language string
}

// Server implements the control protocol
type Server struct {
	sessions    *session.Manager
	vocab       *wordpool.Index
	player      *audio.WavPlayer
	transcriber transcriber.Transcriber
	bus         *feedback.EventBus
	metrics     *observe.Metrics
	opts        Options

	scanner *bufio.Scanner
	closer  io.Closer
	writer  *bufio.Writer
	writeMu sync.Mutex

	active    *workflow.Committer
	input     workflow.TextInput
	annotator string
	reports   []string
}

// NewServer creates a control server reading requests from in and writing
// responses and notifications to out. Events published on bus are
// forwarded as notifications.
func NewServer(sessions *session.Manager, vocab *wordpool.Index, player *audio.WavPlayer, trans transcriber.Transcriber, bus *feedback.EventBus, in io.Reader, out io.Writer, opts Options) *Server {
	s := &Server{
		sessions:    sessions,
		vocab:       vocab,
		player:      player,
		transcriber: trans,
		bus:         bus,
		metrics:     observe.DefaultMetrics(),
		opts:        opts,
		scanner:     bufio.NewScanner(in),
		writer:      bufio.NewWriter(out),
	}
	s.scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	if c, ok := in.(io.Closer); ok {
		s.closer = c
	}
	bus.SubscribeAll(s.forwardEvent)
	return s
}

// SetMetrics replaces the metrics instance, for tests.
func (s *Server) SetMetrics(m *observe.Metrics) { s.metrics = m }

// Serve processes requests until in is exhausted or ctx is cancelled. On
// cancellation in is closed when it is an io.Closer, which releases the
// reader goroutine. The open session, if any, is closed before returning.
func (s *Server) Serve(ctx context.Context) error {
	logrus.Info("Control server started")
	defer s.shutdown(ctx)

	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		for s.scanner.Scan() {
			select {
			case lines <- s.scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- s.scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			if s.closer != nil {
				if err := s.closer.Close(); err != nil {
					logrus.WithError(err).Debug("Error closing control input")
				}
			}
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-errc:
					return err
				default:
					return nil
				}
			}
			s.handleLine(ctx, line)
		}
	}
}

func (s *Server) handleLine(ctx context.Context, line string) {
	if line == "" {
		return
	}
	var req Request
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		logrus.WithError(err).Debug("Error parsing control message")
		return
	}
	if req.Method == "" {
		return
	}

	result, err := s.dispatch(ctx, req)
	status := observe.StatusOK
	if err != nil {
		status = observe.StatusError
		logrus.WithError(err).WithField("method", req.Method).Debug("Control request failed")
	}
	s.metrics.RecordControlRequest(ctx, req.Method, status)

	if len(req.ID) == 0 {
		return
	}
	resp := Response{JSONRPC: "2.0", ID: req.ID}
	if err != nil {
		resp.Error = s.toError(err)
	} else {
		resp.Result = result
	}
	s.send(resp)
}

// dispatch runs one request. Every request counts as user activity for the
// open session.
func (s *Server) dispatch(ctx context.Context, req Request) (any, error) {
	s.reports = s.reports[:0]
	s.annotator = ""
	if s.active != nil {
		s.active.Stamp()
	}

	h, ok := handlers[req.Method]
	if !ok {
		return nil, &requestError{code: "unknown_method", msg: "unknown method: " + req.Method}
	}
	return h(s, ctx, req.Params)
}

// AnnotatorName answers the workflow prompt with the name given in the
// current request or the configured default.
func (s *Server) AnnotatorName() string {
	if s.annotator != "" {
		return s.annotator
	}
	return s.opts.DefaultAnnotator
}

// ReportError keeps the user-facing message for the current response.
func (s *Server) ReportError(message string, err error) {
	logrus.WithError(err).Warn(message)
	s.reports = append(s.reports, message)
}

type requestError struct {
	code string
	msg  string
}

func (e *requestError) Error() string { return e.msg }

var errNoSession = &requestError{code: "no_session", msg: "no audio file is open"}

func (s *Server) toError(err error) *Error {
	out := &Error{Code: "internal", Message: err.Error()}

	var reqErr *requestError
	switch {
	case errors.As(err, &reqErr):
		out.Code = reqErr.code
	case errors.Is(err, annotation.ErrUserCancelled):
		out.Code = "cancelled"
	case errors.Is(err, annotation.ErrOutOfRange), errors.Is(err, audio.ErrSeekRange):
		out.Code = "out_of_range"
	case errors.Is(err, annotation.ErrInvalidArgument):
		out.Code = "invalid_argument"
	case errors.Is(err, annotation.ErrFileIO):
		out.Code = "file_io"
	case errors.Is(err, annotation.ErrInvariant):
		out.Code = "invariant"
	case errors.Is(err, transcriber.ErrNoTranscript):
		out.Code = "no_transcript"
	}

	if len(s.reports) > 0 {
		out.Detail = out.Message
		out.Message = s.reports[len(s.reports)-1]
	}
	return out
}

func (s *Server) forwardEvent(event feedback.Event) {
	params := map[string]any{
		"type":      event.Type,
		"timestamp": event.Timestamp,
	}
	if event.SessionID != "" {
		params["sessionId"] = event.SessionID
	}
	if event.Source != "" {
		params["source"] = event.Source
	}
	if event.Data != nil {
		params["data"] = event.Data
	}
	if data, ok := event.Data.(feedback.CommitData); ok && data.Err != nil {
		params["error"] = data.Err.Error()
	}
	s.send(Notification{JSONRPC: "2.0", Method: "event", Params: params})
}

func (s *Server) send(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		logrus.WithError(err).Error("Failed to marshal control message")
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err = s.writer.Write(data)
	if err == nil {
		err = s.writer.WriteByte('\n')
	}
	if err == nil {
		err = s.writer.Flush()
	}
	if err != nil {
		logrus.WithError(err).Warn("Failed to write control message")
	}
}

func (s *Server) shutdown(ctx context.Context) {
	if s.active == nil {
		return
	}
	if err := s.closeActive(ctx); err != nil {
		logrus.WithError(err).Warn("Failed to close session on shutdown")
	}
}
