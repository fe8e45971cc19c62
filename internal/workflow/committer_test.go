package workflow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fankserver/wordpool-annotator/internal/audio"
	"github.com/fankserver/wordpool-annotator/internal/feedback"
	"github.com/fankserver/wordpool-annotator/internal/observe"
	"github.com/fankserver/wordpool-annotator/internal/session"
	"github.com/fankserver/wordpool-annotator/internal/store"
	"github.com/fankserver/wordpool-annotator/internal/wordpool"
	"github.com/fankserver/wordpool-annotator/pkg/annotation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// fakePlayer runs at 1000 frames per second so frames equal milliseconds.
type fakePlayer struct {
	open     bool
	status   audio.Status
	position int64
	duration int64
}

func (p *fakePlayer) IsOpen() bool                        { return p.open }
func (p *fakePlayer) Position() int64                     { return p.position }
func (p *fakePlayer) Status() audio.Status                { return p.status }
func (p *fakePlayer) FramesToMillis(frames int64) float64 { return float64(frames) }
func (p *fakePlayer) MillisToFrames(ms float64) int64     { return int64(ms) }
func (p *fakePlayer) DurationFrames() int64               { return p.duration }

func (p *fakePlayer) Seek(frame int64) error {
	if frame < 0 || frame >= p.duration {
		return audio.ErrSeekRange
	}
	p.position = frame
	return nil
}

type mockPrompter struct {
	mock.Mock
}

func (m *mockPrompter) AnnotatorName() string {
	return m.Called().String(0)
}

type mockReporter struct {
	mock.Mock
}

func (m *mockReporter) ReportError(message string, err error) {
	m.Called(message, err)
}

type fixture struct {
	dir      string
	wordpool string
	session  *session.Session
	vocab    *wordpool.Index
	player   *fakePlayer
	prompter *mockPrompter
	reporter *mockReporter
	input    *TextInput
	bus      *feedback.EventBus
	c        *Committer
}

func newFixture(t *testing.T, opts ...store.Option) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		dir:      dir,
		wordpool: filepath.Join(dir, "wordpool.txt"),
		player:   &fakePlayer{open: true, duration: 60_000},
		prompter: &mockPrompter{},
		reporter: &mockReporter{},
		input:    &TextInput{},
		bus:      feedback.NewEventBus(),
	}
	require.NoError(t, os.WriteFile(f.wordpool, []byte("apple\nbanana\ncat\ndog\nzebra\n"), 0o640))

	var err error
	f.vocab, err = wordpool.Load(f.wordpool, wordpool.WithEvents(f.bus))
	require.NoError(t, err)

	st := store.New(opts...)
	f.session, err = session.NewManager(st, f.bus, 0).Open(filepath.Join(dir, "rec.wav"))
	require.NoError(t, err)

	f.c = New(f.session, f.vocab, st, f.player,
		WithPrompter(f.prompter),
		WithReporter(f.reporter),
		WithInput(f.input),
		WithEvents(f.bus),
	)
	return f
}

func (f *fixture) commit(t *testing.T, mode Mode, text string, atMs int64) error {
	t.Helper()
	f.player.position = atMs
	f.input.Set(text)
	return f.c.Commit(context.Background(), mode)
}

func (f *fixture) annotationFile(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(f.session.AnnotationPath())
	require.NoError(t, err)
	return string(data)
}

func TestCommitWithoutAudioClearsInput(t *testing.T) {
	f := newFixture(t)
	f.player.open = false
	f.input.Set("cat")

	require.NoError(t, f.c.Commit(context.Background(), ModeRegular))
	assert.Empty(t, f.input.Text())
	assert.Equal(t, StateAborted, f.c.State())
	assert.NoFileExists(t, f.session.AnnotationPath())
	f.prompter.AssertNotCalled(t, "AnnotatorName")
}

func TestCommitEmptyRegularIsNoop(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.commit(t, ModeRegular, "", 1000))
	assert.Equal(t, StateAborted, f.c.State())
	assert.NoFileExists(t, f.session.AnnotationPath())
	assert.Zero(t, f.session.Annotations.Len())
}

func TestCommitScenario(t *testing.T) {
	f := newFixture(t)
	f.prompter.On("AnnotatorName").Return("Ada").Once()

	var completed []feedback.CommitData
	f.bus.Subscribe(feedback.EventCommitCompleted, func(e feedback.Event) {
		completed = append(completed, e.Data.(feedback.CommitData))
	})

	require.NoError(t, f.commit(t, ModeRegular, "cat", 1000))
	assert.Equal(t, "#Annotator: Ada\n1000.0\t3\tcat\n", f.annotationFile(t))
	assert.Empty(t, f.input.Text(), "input cleared after commit")
	assert.Equal(t, StateDone, f.c.State())
	assert.Equal(t, "Ada", f.session.Annotator())

	require.NoError(t, f.commit(t, ModeIntrusion, "zzz", 2000))
	assert.Equal(t, 6, f.vocab.Total())
	word, ok := f.vocab.FindExact("zzz")
	require.True(t, ok)
	assert.Equal(t, 6, word.Rank)
	assert.Equal(t, "#Annotator: Ada\n1000.0\t3\tcat\n2000.0\t6\tzzz\n", f.annotationFile(t))

	wp, err := os.ReadFile(f.wordpool)
	require.NoError(t, err)
	assert.Equal(t, "apple\nbanana\ncat\ndog\nzebra\nzzz\n", string(wp))

	require.Len(t, completed, 2)
	assert.False(t, completed[0].Grew)
	assert.True(t, completed[1].Grew)
	assert.True(t, completed[1].Intrusion)

	f.prompter.AssertNumberOfCalls(t, "AnnotatorName", 1)
	f.reporter.AssertNotCalled(t, "ReportError", mock.Anything, mock.Anything)
}

func TestCommitIntrusionRenumbersLaterWords(t *testing.T) {
	for _, atomic := range []bool{true, false} {
		t.Run(map[bool]string{true: "atomic", false: "legacy"}[atomic], func(t *testing.T) {
			f := newFixture(t, store.WithAtomicReplace(atomic))
			f.prompter.On("AnnotatorName").Return("Ada")

			require.NoError(t, f.commit(t, ModeRegular, "apple", 500))
			require.NoError(t, f.commit(t, ModeRegular, "cat", 1000))
			require.NoError(t, f.commit(t, ModeIntrusion, "bat", 1500))

			assert.Equal(t,
				"#Annotator: Ada\n500.0\t1\tapple\n1000.0\t4\tcat\n1500.0\t3\tbat\n",
				f.annotationFile(t))

			got := f.session.Annotations.Snapshot()
			require.Len(t, got, 3)
			assert.Equal(t, 1, got[0].Index)
			assert.Equal(t, 4, got[1].Index)
			assert.Equal(t, 3, got[2].Index)
		})
	}
}

func TestCommitRegularSkipsUnknownWord(t *testing.T) {
	f := newFixture(t)

	var failed []feedback.Event
	f.bus.Subscribe(feedback.EventCommitFailed, func(e feedback.Event) { failed = append(failed, e) })

	require.NoError(t, f.commit(t, ModeRegular, "zzz", 1000))
	assert.Equal(t, StateAborted, f.c.State())
	assert.NoFileExists(t, f.session.AnnotationPath())
	assert.Equal(t, "zzz", f.input.Text(), "input kept for correction")
	assert.Equal(t, 5, f.vocab.Total())
	assert.Empty(t, failed)
	f.reporter.AssertNotCalled(t, "ReportError", mock.Anything, mock.Anything)
	f.prompter.AssertNotCalled(t, "AnnotatorName")
}

func TestCommitEmptyIntrusionRegistersSentinel(t *testing.T) {
	f := newFixture(t)
	f.prompter.On("AnnotatorName").Return("Ada")

	require.NoError(t, f.commit(t, ModeIntrusion, "", 750))
	assert.Equal(t, "#Annotator: Ada\n750.0\t1\t<>\n", f.annotationFile(t))
	assert.Equal(t, 6, f.vocab.Total())
	word, ok := f.vocab.FindExact(annotation.IntrusionText)
	require.True(t, ok)
	assert.Equal(t, 1, word.Rank, "sorts before letters")

	wp, err := os.ReadFile(f.wordpool)
	require.NoError(t, err)
	assert.Equal(t, "<>\napple\nbanana\ncat\ndog\nzebra\n", string(wp))

	require.NoError(t, f.commit(t, ModeIntrusion, "", 900))
	assert.Equal(t, "#Annotator: Ada\n750.0\t1\t<>\n900.0\t1\t<>\n", f.annotationFile(t))
	assert.Equal(t, 6, f.vocab.Total(), "registered once")
}

func TestCommitReplacesAnnotationAtSamePosition(t *testing.T) {
	f := newFixture(t)
	f.prompter.On("AnnotatorName").Return("Ada").Once()

	require.NoError(t, f.commit(t, ModeRegular, "cat", 1000))
	require.NoError(t, f.commit(t, ModeRegular, "dog", 1000))

	assert.Equal(t, "#Annotator: Ada\n1000.0\t4\tdog\n", f.annotationFile(t))
	require.Equal(t, 1, f.session.Annotations.Len())
	rec, err := f.session.Annotations.At(0)
	require.NoError(t, err)
	assert.Equal(t, "dog", rec.Text)
	f.prompter.AssertNumberOfCalls(t, "AnnotatorName", 1)
}

func TestCommitKeepsOtherPositions(t *testing.T) {
	f := newFixture(t)
	f.prompter.On("AnnotatorName").Return("Ada")

	require.NoError(t, f.commit(t, ModeRegular, "cat", 1000))
	require.NoError(t, f.commit(t, ModeRegular, "dog", 2000))
	require.NoError(t, f.commit(t, ModeRegular, "apple", 1000))

	assert.Equal(t, "#Annotator: Ada\n2000.0\t4\tdog\n1000.0\t1\tapple\n", f.annotationFile(t))
	assert.Equal(t, 2, f.session.Annotations.Len())
}

func TestCommitCancelledPrompt(t *testing.T) {
	f := newFixture(t)
	f.prompter.On("AnnotatorName").Return("")
	f.reporter.On("ReportError", mock.Anything, mock.Anything).Once()

	var failed []feedback.Event
	f.bus.Subscribe(feedback.EventCommitFailed, func(e feedback.Event) { failed = append(failed, e) })

	err := f.commit(t, ModeRegular, "cat", 1000)
	assert.ErrorIs(t, err, annotation.ErrUserCancelled)
	assert.Zero(t, f.session.Annotations.Len())
	assert.Empty(t, f.session.Annotator())
	assert.Len(t, failed, 1)
	f.reporter.AssertExpectations(t)
}

func TestCommitUsesExistingHeader(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(f.session.AnnotationPath(), []byte("#Annotator: Grace\n"), 0o640))

	require.NoError(t, f.commit(t, ModeRegular, "cat", 1000))
	assert.Equal(t, "Grace", f.session.Annotator())
	assert.Equal(t, "#Annotator: Grace\n1000.0\t3\tcat\n", f.annotationFile(t))
	f.prompter.AssertNotCalled(t, "AnnotatorName")
}

func TestCommitAddsHeaderToHeaderlessFile(t *testing.T) {
	f := newFixture(t)
	f.session.SetAnnotator("Ada")
	require.NoError(t, os.WriteFile(f.session.AnnotationPath(), []byte("#1 2 \n"), 0o640))

	require.NoError(t, f.commit(t, ModeRegular, "cat", 1000))
	assert.Equal(t, "#Annotator: Ada\n#1 2 \n1000.0\t3\tcat\n", f.annotationFile(t))
	f.prompter.AssertNotCalled(t, "AnnotatorName")
}

func TestCommitRecordsMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	require.NoError(t, err)

	f := newFixture(t)
	WithMetrics(m)(f.c)
	f.prompter.On("AnnotatorName").Return("Ada")

	require.NoError(t, f.commit(t, ModeRegular, "cat", 1000))
	require.NoError(t, f.commit(t, ModeIntrusion, "zzz", 2000))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	values := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if sum, ok := met.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					values[met.Name] += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(2), values["wordpool.commits"])
	assert.Equal(t, int64(1), values["wordpool.vocabulary.registered"])
	assert.Equal(t, int64(1), values["wordpool.rewrites"])
}

func TestEnabled(t *testing.T) {
	f := newFixture(t)
	assert.True(t, f.c.Enabled())

	f.player.status = audio.StatusPlaying
	assert.False(t, f.c.Enabled())

	f.player.status = audio.StatusPaused
	f.player.open = false
	assert.False(t, f.c.Enabled())
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, "deleting_existing_at_position", StateDeletingExistingAtPosition.String())
	assert.Equal(t, "unknown", State(99).String())
	assert.Equal(t, "intrusion", ModeIntrusion.String())
}

func TestCommitReportsFileErrors(t *testing.T) {
	f := newFixture(t)
	f.session.SetAnnotator("Ada")
	f.reporter.On("ReportError", mock.Anything, mock.Anything).Once()

	// A directory where the annotation file should be makes every write fail.
	require.NoError(t, os.Mkdir(f.session.AnnotationPath(), 0o750))

	err := f.commit(t, ModeRegular, "cat", 1000)
	require.Error(t, err)
	assert.True(t, errors.Is(err, annotation.ErrFileIO))
	assert.Zero(t, f.session.Annotations.Len())
	f.reporter.AssertExpectations(t)
}

func TestTextInput(t *testing.T) {
	in := &TextInput{}
	in.Set("cat")
	assert.Equal(t, "cat", in.Text())
	in.Clear()
	assert.True(t, strings.TrimSpace(in.Text()) == "")
}
