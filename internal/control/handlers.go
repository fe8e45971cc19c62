package control

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fankserver/wordpool-annotator/internal/audio"
	"github.com/fankserver/wordpool-annotator/internal/workflow"
	"github.com/fankserver/wordpool-annotator/internal/wordpool"
	"github.com/fankserver/wordpool-annotator/pkg/annotation"
	"github.com/fankserver/wordpool-annotator/pkg/transcriber"
	"github.com/sirupsen/logrus"
)

type handler func(s *Server, ctx context.Context, params json.RawMessage) (any, error)

var handlers map[string]handler

func init() {
	handlers = map[string]handler{
		"initialize":         (*Server).handleInitialize,
		"open":               (*Server).handleOpen,
		"close":              (*Server).handleClose,
		"status":             (*Server).handleStatus,
		"seek":               (*Server).handleSeek,
		"play":               transport(audio.StatusPlaying),
		"pause":              transport(audio.StatusPaused),
		"stop":               transport(audio.StatusStopped),
		"commit":             (*Server).handleCommit,
		"list_annotations":   (*Server).handleListAnnotations,
		"list_suggestions":   (*Server).handleListSuggestions,
		"delete_annotation":  rowHandler((*workflow.Committer).DeleteAnnotation),
		"delete_suggestion":  rowHandler((*workflow.Committer).DeleteSuggestion),
		"jump_to_suggestion": rowHandler((*workflow.Committer).JumpToSuggestion),
		"convert_suggestion": (*Server).handleConvertSuggestion,
		"import_suggestions": (*Server).handleImportSuggestions,
		"list_words":         (*Server).handleListWords,
		"hide_words":         (*Server).handleHideWords,
		"restore_words":      (*Server).handleRestoreWords,
		"nearest_word":       (*Server).handleNearestWord,
		"write_spans":        (*Server).handleWriteSpans,
	}
}

// Methods lists the supported request methods.
func Methods() []string {
	out := make([]string, 0, len(handlers))
	for name := range handlers {
		out = append(out, name)
	}
	return out
}

func decode(params json.RawMessage, v any) error {
	if len(params) == 0 {
		params = []byte("{}")
	}
	if err := json.Unmarshal(params, v); err != nil {
		return &requestError{code: "invalid_params", msg: fmt.Sprintf("invalid params: %v", err)}
	}
	return nil
}

func (s *Server) committer() (*workflow.Committer, error) {
	if s.active == nil {
		return nil, errNoSession
	}
	return s.active, nil
}

func (s *Server) handleInitialize(ctx context.Context, _ json.RawMessage) (any, error) {
	return map[string]any{
		"protocolVersion": protocolVersion,
		"serverInfo": map[string]any{
			"name":    serverName,
			"version": protocolVersion,
		},
		"methods": Methods(),
	}, nil
}

type openParams struct {
	AudioPath string `json:"audioPath"`
}

func (s *Server) handleOpen(ctx context.Context, params json.RawMessage) (any, error) {
	var p openParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	if p.AudioPath == "" {
		return nil, &requestError{code: "invalid_params", msg: "missing 'audioPath' parameter"}
	}
	if s.active != nil {
		if err := s.closeActive(ctx); err != nil {
			logrus.WithError(err).Warn("Failed to close previous session")
		}
	}

	if err := s.player.Open(p.AudioPath); err != nil {
		return nil, err
	}
	sess, err := s.sessions.Open(p.AudioPath)
	if err != nil {
		s.player.Close()
		return nil, err
	}
	if sess.Annotator() == "" && s.opts.DefaultAnnotator != "" {
		sess.SetAnnotator(s.opts.DefaultAnnotator)
	}

	s.active = workflow.New(sess, s.vocab, s.sessions.Store(), s.player,
		workflow.WithPrompter(s),
		workflow.WithReporter(s),
		workflow.WithInput(&s.input),
		workflow.WithEvents(s.bus),
		workflow.WithMetrics(s.metrics),
	)
	s.active.Stamp()
	s.metrics.ActiveSessions.Add(ctx, 1)

	return map[string]any{
		"session":        sess.Info(),
		"sampleRate":     s.player.SampleRate(),
		"durationFrames": s.player.DurationFrames(),
	}, nil
}

func (s *Server) handleClose(ctx context.Context, _ json.RawMessage) (any, error) {
	if s.active == nil {
		return nil, errNoSession
	}
	if err := s.closeActive(ctx); err != nil {
		return nil, err
	}
	return map[string]any{"success": true}, nil
}

func (s *Server) closeActive(ctx context.Context) error {
	sess := s.active.Session()
	s.active = nil
	s.player.Close()
	s.metrics.ActiveSessions.Add(ctx, -1)
	return s.sessions.Close(sess.ID)
}

func (s *Server) handleStatus(ctx context.Context, _ json.RawMessage) (any, error) {
	out := map[string]any{
		"open":   s.player.IsOpen(),
		"status": s.player.Status().String(),
	}
	if s.active != nil {
		pos := s.player.Position()
		out["position"] = pos
		out["positionMs"] = s.player.FramesToMillis(pos)
		out["durationFrames"] = s.player.DurationFrames()
		out["enabled"] = s.active.Enabled()
		out["session"] = s.active.Session().Info()
	}
	return out, nil
}

type seekParams struct {
	Frame *int64   `json:"frame,omitempty"`
	Ms    *float64 `json:"ms,omitempty"`
}

func (s *Server) handleSeek(ctx context.Context, params json.RawMessage) (any, error) {
	if _, err := s.committer(); err != nil {
		return nil, err
	}
	var p seekParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	var frame int64
	switch {
	case p.Frame != nil:
		frame = *p.Frame
	case p.Ms != nil:
		frame = s.player.MillisToFrames(*p.Ms)
	default:
		return nil, &requestError{code: "invalid_params", msg: "one of 'frame' or 'ms' is required"}
	}
	if err := s.player.Seek(frame); err != nil {
		return nil, err
	}
	return map[string]any{"position": frame, "positionMs": s.player.FramesToMillis(frame)}, nil
}

func transport(status audio.Status) handler {
	return func(s *Server, ctx context.Context, _ json.RawMessage) (any, error) {
		if err := s.player.SetStatus(status); err != nil {
			return nil, &requestError{code: "no_session", msg: err.Error()}
		}
		return map[string]any{"status": status.String()}, nil
	}
}

type commitParams struct {
	Text      string `json:"text"`
	Mode      string `json:"mode"`
	Annotator string `json:"annotator,omitempty"`
}

func (s *Server) handleCommit(ctx context.Context, params json.RawMessage) (any, error) {
	c, err := s.committer()
	if err != nil {
		return nil, err
	}
	var p commitParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	mode := workflow.ModeRegular
	switch p.Mode {
	case "", "regular":
	case "intrusion":
		mode = workflow.ModeIntrusion
	default:
		return nil, &requestError{code: "invalid_params", msg: fmt.Sprintf("unknown mode %q", p.Mode)}
	}

	s.annotator = p.Annotator
	s.input.Set(p.Text)
	if err := c.Commit(ctx, mode); err != nil {
		return nil, err
	}
	return map[string]any{
		"state":       c.State().String(),
		"annotations": c.Session().Annotations.Len(),
	}, nil
}

type recordRow struct {
	Row int `json:"row"`
	annotation.Record
}

func rows(recs []annotation.Record) []recordRow {
	out := make([]recordRow, len(recs))
	for i, r := range recs {
		out[i] = recordRow{Row: i, Record: r}
	}
	return out
}

func (s *Server) handleListAnnotations(ctx context.Context, _ json.RawMessage) (any, error) {
	c, err := s.committer()
	if err != nil {
		return nil, err
	}
	return map[string]any{"annotations": rows(c.Session().Annotations.Snapshot())}, nil
}

func (s *Server) handleListSuggestions(ctx context.Context, _ json.RawMessage) (any, error) {
	c, err := s.committer()
	if err != nil {
		return nil, err
	}
	return map[string]any{"suggestions": rows(c.Session().Suggestions.Snapshot())}, nil
}

type rowParams struct {
	Row *int `json:"row"`
}

func decodeRow(params json.RawMessage) (int, error) {
	var p rowParams
	if err := decode(params, &p); err != nil {
		return 0, err
	}
	if p.Row == nil {
		return 0, &requestError{code: "invalid_params", msg: "missing 'row' parameter"}
	}
	return *p.Row, nil
}

func rowHandler(op func(*workflow.Committer, int) error) handler {
	return func(s *Server, ctx context.Context, params json.RawMessage) (any, error) {
		c, err := s.committer()
		if err != nil {
			return nil, err
		}
		row, err := decodeRow(params)
		if err != nil {
			return nil, err
		}
		if err := op(c, row); err != nil {
			return nil, err
		}
		return map[string]any{"success": true}, nil
	}
}

func (s *Server) handleConvertSuggestion(ctx context.Context, params json.RawMessage) (any, error) {
	c, err := s.committer()
	if err != nil {
		return nil, err
	}
	row, err := decodeRow(params)
	if err != nil {
		return nil, err
	}
	if err := c.ConvertSuggestion(ctx, row); err != nil {
		return nil, err
	}
	return map[string]any{"success": true}, nil
}

func (s *Server) handleImportSuggestions(ctx context.Context, _ json.RawMessage) (any, error) {
	c, err := s.committer()
	if err != nil {
		return nil, err
	}

	var vocabulary []string
	for _, w := range s.vocab.Displayed() {
		vocabulary = append(vocabulary, w.Text)
	}
	result, err := s.transcriber.Transcribe(ctx, c.Session().AudioPath, transcriber.TranscriptionOptions{
		Language:         s.opts.Language,
		CustomVocabulary: vocabulary,
	})
	if err != nil {
		return nil, err
	}

	var snap transcriber.Snapper
	if s.opts.SnapToWordpool {
		snap = func(text string) (string, bool) {
			w, _, ok := s.vocab.Nearest(text)
			return w.Text, ok
		}
	}
	recs := transcriber.Suggestions(result, snap)
	if len(recs) == 0 {
		return map[string]any{"imported": 0, "prompt": result.Prompt}, nil
	}
	added, err := c.ImportSuggestions(ctx, recs)
	if err != nil {
		return nil, err
	}
	return map[string]any{"imported": added, "prompt": result.Prompt}, nil
}

func wordsResult(words []wordpool.Word) map[string]any {
	return map[string]any{"words": words}
}

func (s *Server) handleListWords(ctx context.Context, _ json.RawMessage) (any, error) {
	return wordsResult(s.vocab.Displayed()), nil
}

type prefixParams struct {
	Prefix string `json:"prefix"`
}

func (s *Server) handleHideWords(ctx context.Context, params json.RawMessage) (any, error) {
	var p prefixParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	s.vocab.HideNotStartingWith(p.Prefix)
	return wordsResult(s.vocab.Displayed()), nil
}

func (s *Server) handleRestoreWords(ctx context.Context, params json.RawMessage) (any, error) {
	var p prefixParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	s.vocab.RestoreStartingWith(p.Prefix)
	return wordsResult(s.vocab.Displayed()), nil
}

type textParams struct {
	Text string `json:"text"`
}

func (s *Server) handleNearestWord(ctx context.Context, params json.RawMessage) (any, error) {
	var p textParams
	if err := decode(params, &p); err != nil {
		return nil, err
	}
	w, score, ok := s.vocab.Nearest(p.Text)
	if !ok {
		return map[string]any{"found": false}, nil
	}
	return map[string]any{"found": true, "word": w, "score": score}, nil
}

func (s *Server) handleWriteSpans(ctx context.Context, _ json.RawMessage) (any, error) {
	c, err := s.committer()
	if err != nil {
		return nil, err
	}
	n, err := c.WriteSpans(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"spans": n}, nil
}
