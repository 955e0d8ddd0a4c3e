package assistant

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shariahguide/internal/metrics"
	"shariahguide/internal/models"
	"shariahguide/internal/service/ai"
	"shariahguide/internal/service/speech"
	"shariahguide/internal/storage"
)

type countingGenerator struct {
	candidates []string
	err        error
	calls      int
	documents  []string
}

func (g *countingGenerator) Generate(_ context.Context, prompt string) ([]string, error) {
	g.calls++
	g.documents = append(g.documents, prompt)
	return g.candidates, g.err
}

type fixedDetector struct {
	lang  speech.Language
	calls int
}

func (d *fixedDetector) Detect(context.Context, string) speech.Language {
	d.calls++
	return d.lang
}

type fakeSynthesizer struct {
	audio []byte
	err   error
	calls int
	langs []speech.Language
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, _ string, lang speech.Language) speech.Speech {
	f.calls++
	f.langs = append(f.langs, lang)
	if f.err != nil {
		return speech.Unavailable(f.err)
	}
	return speech.Speech{Audio: f.audio}
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := storage.Open(storage.MemoryDSN)
	require.NoError(t, err)
	require.NoError(t, storage.Migrate(db))
	t.Cleanup(func() { db.Close() })
	return db
}

func insertTestSession(t *testing.T, db *sql.DB, token string) int64 {
	t.Helper()
	now := time.Now().UTC()
	res, err := db.Exec(`INSERT INTO sessions (token, created_at, updated_at) VALUES (?, ?, ?)`, token, now, now)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	return id
}

func newTestService(t *testing.T, gen ai.CandidateGenerator, det LanguageDetector, synth SpeechSynthesizer) (*Service, int64) {
	t.Helper()
	db := openTestDB(t)
	sessionID := insertTestSession(t, db, "token-"+t.Name())
	svc := NewService(db, "murabaha is a sale at cost plus an agreed profit.", Pipeline{
		Generator:   ai.NewAdvisor(gen),
		Detector:    det,
		Synthesizer: synth,
		Metrics:     metrics.NewRecorder(),
	})
	return svc, sessionID
}

func TestIsInDomain(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{"What is Riba in Islamic finance?", true},
		{"What is the weather today?", false},
		{"What's for dinner?", false},
		{"Explain SUKUK", true},
		{"Is this shari’ah compliant?", true},
		{"tell me about ebay", true},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsInDomain(tt.query), "query %q", tt.query)
	}
}

func TestAskInDomainStoresFirstCandidate(t *testing.T) {
	gen := &countingGenerator{candidates: []string{"Murabaha is a cost-plus sale."}}
	synth := &fakeSynthesizer{audio: []byte("mp3")}
	svc, sessionID := newTestService(t, gen, &fixedDetector{lang: speech.English}, synth)

	turn, err := svc.Ask(context.Background(), TurnRequest{SessionID: sessionID, Query: "What is Murabaha?"})
	require.NoError(t, err)
	assert.True(t, turn.InDomain)
	assert.False(t, turn.GenerationFailed)
	assert.True(t, turn.Speech.Available())

	history, err := svc.ListMessages(context.Background(), sessionID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.RoleUser, history[0].Role)
	assert.Equal(t, "What is Murabaha?", history[0].Content)
	last := history[len(history)-1]
	assert.Equal(t, models.RoleAssistant, last.Role)
	assert.Equal(t, "Murabaha is a cost-plus sale.", last.Content)
	assert.True(t, last.HasAudio)

	audio, err := svc.GetMessageAudio(context.Background(), sessionID, last.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3"), audio)

	require.Len(t, gen.documents, 1)
	assert.Contains(t, gen.documents[0], svc.Document())
}

func TestAskOutOfDomainSkipsGeneration(t *testing.T) {
	gen := &countingGenerator{candidates: []string{"should not be used"}}
	det := &fixedDetector{lang: speech.Arabic}
	synth := &fakeSynthesizer{audio: []byte("mp3")}
	svc, sessionID := newTestService(t, gen, det, synth)

	turn, err := svc.Ask(context.Background(), TurnRequest{SessionID: sessionID, Query: "What's for dinner?"})
	require.NoError(t, err)
	assert.False(t, turn.InDomain)

	history, err := svc.ListMessages(context.Background(), sessionID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	last := history[len(history)-1]
	assert.Equal(t, models.RoleAssistant, last.Role)
	assert.Equal(t, WarningMessage, last.Content)
	assert.False(t, last.HasAudio)

	assert.Zero(t, gen.calls)
	assert.Zero(t, det.calls)
	assert.Zero(t, synth.calls)
}

func TestAskGenerationFailureIsStoredButNotSpoken(t *testing.T) {
	gen := &countingGenerator{err: errors.New("quota exceeded")}
	synth := &fakeSynthesizer{audio: []byte("mp3")}
	svc, sessionID := newTestService(t, gen, &fixedDetector{lang: speech.English}, synth)

	turn, err := svc.Ask(context.Background(), TurnRequest{SessionID: sessionID, Query: "Is riba allowed?"})
	require.NoError(t, err)
	assert.True(t, turn.GenerationFailed)
	assert.False(t, turn.Speech.Available())
	assert.Equal(t, "Error: quota exceeded", turn.AssistantMessage.Content)
	assert.False(t, turn.AssistantMessage.HasAudio)
	assert.Zero(t, synth.calls)
}

func TestAskSpeakFailuresWhenEnabled(t *testing.T) {
	gen := &countingGenerator{err: errors.New("quota exceeded")}
	synth := &fakeSynthesizer{audio: []byte("mp3")}
	svc, sessionID := newTestService(t, gen, &fixedDetector{lang: speech.English}, synth)
	svc.pipeline.SpeakFailures = true

	turn, err := svc.Ask(context.Background(), TurnRequest{SessionID: sessionID, Query: "Is riba allowed?"})
	require.NoError(t, err)
	assert.True(t, turn.GenerationFailed)
	assert.Equal(t, 1, synth.calls)
	assert.True(t, turn.AssistantMessage.HasAudio)
}

func TestAskSynthesisFailureKeepsText(t *testing.T) {
	gen := &countingGenerator{candidates: []string{"التكافل تأمين تعاوني"}}
	synth := &fakeSynthesizer{err: errors.New("tts offline")}
	svc, sessionID := newTestService(t, gen, &fixedDetector{lang: speech.Arabic}, synth)

	turn, err := svc.Ask(context.Background(), TurnRequest{SessionID: sessionID, Query: "takaful?"})
	require.NoError(t, err)
	assert.Equal(t, speech.Arabic, turn.Language)
	assert.Equal(t, []speech.Language{speech.Arabic}, synth.langs)
	assert.False(t, turn.Speech.Available())
	assert.Equal(t, "التكافل تأمين تعاوني", turn.AssistantMessage.Content)
	assert.False(t, turn.AssistantMessage.HasAudio)

	_, err = svc.GetMessageAudio(context.Background(), sessionID, turn.AssistantMessage.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestAskWithoutSpeechCapabilities(t *testing.T) {
	gen := &countingGenerator{candidates: []string{"Ijarah is leasing."}}
	svc, sessionID := newTestService(t, gen, nil, nil)

	turn, err := svc.Ask(context.Background(), TurnRequest{SessionID: sessionID, Query: "ijarah"})
	require.NoError(t, err)
	assert.Equal(t, speech.English, turn.Language)
	assert.False(t, turn.AssistantMessage.HasAudio)
}

func TestAskCallbacksFireInOrder(t *testing.T) {
	gen := &countingGenerator{candidates: []string{"Sukuk are certificates."}}
	svc, sessionID := newTestService(t, gen, nil, &fakeSynthesizer{audio: []byte("mp3")})

	var events []string
	_, err := svc.Ask(context.Background(), TurnRequest{
		SessionID: sessionID,
		Query:     "sukuk",
		OnQuery:   func(m *models.Message) { events = append(events, "query:"+m.Content) },
		OnAnswer:  func(text string) { events = append(events, "answer:"+text) },
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"query:sukuk", "answer:Sukuk are certificates."}, events)
}

func TestAskRejectsEmptyQuery(t *testing.T) {
	gen := &countingGenerator{}
	svc, sessionID := newTestService(t, gen, nil, nil)

	_, err := svc.Ask(context.Background(), TurnRequest{SessionID: sessionID, Query: "   "})
	assert.ErrorIs(t, err, ErrEmptyQuery)

	history, err := svc.ListMessages(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestHistoryIsPerSessionAndOrdered(t *testing.T) {
	gen := &countingGenerator{candidates: []string{"ok"}}
	svc, first := newTestService(t, gen, nil, nil)
	second := insertTestSession(t, svc.db, "other")

	for _, q := range []string{"riba?", "bank?", "hello"} {
		_, err := svc.Ask(context.Background(), TurnRequest{SessionID: first, Query: q})
		require.NoError(t, err)
	}
	_, err := svc.Ask(context.Background(), TurnRequest{SessionID: second, Query: "loan?"})
	require.NoError(t, err)

	history, err := svc.ListMessages(context.Background(), first)
	require.NoError(t, err)
	require.Len(t, history, 6)
	var contents []string
	for i, m := range history {
		contents = append(contents, m.Content)
		if i > 0 {
			assert.Greater(t, m.ID, history[i-1].ID)
		}
	}
	assert.Equal(t, []string{"riba?", "ok", "bank?", "ok", "hello", WarningMessage}, contents)

	other, err := svc.ListMessages(context.Background(), second)
	require.NoError(t, err)
	assert.Len(t, other, 2)
}

func TestGetMessageAudioIsSessionScoped(t *testing.T) {
	gen := &countingGenerator{candidates: []string{"profit sharing"}}
	svc, sessionID := newTestService(t, gen, nil, &fakeSynthesizer{audio: []byte("mp3")})
	intruder := insertTestSession(t, svc.db, "intruder")

	turn, err := svc.Ask(context.Background(), TurnRequest{SessionID: sessionID, Query: "profit?"})
	require.NoError(t, err)

	_, err = svc.GetMessageAudio(context.Background(), intruder, turn.AssistantMessage.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

type blockingGenerator struct{}

func (blockingGenerator) Generate(ctx context.Context, _ string) ([]string, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestAskExpiredContextStillAppendsAnswer(t *testing.T) {
	synth := &fakeSynthesizer{audio: []byte("mp3")}
	svc, sessionID := newTestService(t, blockingGenerator{}, &fixedDetector{lang: speech.English}, synth)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	turn, err := svc.Ask(ctx, TurnRequest{SessionID: sessionID, Query: "What is riba?"})
	require.NoError(t, err)
	assert.True(t, turn.GenerationFailed)

	history, err := svc.ListMessages(context.Background(), sessionID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "What is riba?", history[0].Content)
	last := history[1]
	assert.Equal(t, models.RoleAssistant, last.Role)
	assert.Equal(t, "Error: "+context.DeadlineExceeded.Error(), last.Content)
	assert.False(t, last.HasAudio)
	assert.Zero(t, synth.calls)
}

func TestAskCancelledAfterQuestionStoredStillAppendsReply(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"in domain", "Is interest haram?", "Error: " + context.Canceled.Error()},
		{"out of domain", "What's for dinner?", WarningMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, sessionID := newTestService(t, blockingGenerator{}, nil, nil)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			_, err := svc.Ask(ctx, TurnRequest{
				SessionID: sessionID,
				Query:     tt.query,
				OnQuery:   func(*models.Message) { cancel() },
			})
			require.NoError(t, err)

			history, err := svc.ListMessages(context.Background(), sessionID)
			require.NoError(t, err)
			require.Len(t, history, 2)
			assert.Equal(t, models.RoleAssistant, history[1].Role)
			assert.Equal(t, tt.want, history[1].Content)
		})
	}
}

func TestAskWithDeadContextStoresNothing(t *testing.T) {
	svc, sessionID := newTestService(t, &countingGenerator{candidates: []string{"ok"}}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Ask(ctx, TurnRequest{SessionID: sessionID, Query: "riba?"})
	assert.ErrorIs(t, err, context.Canceled)

	history, err := svc.ListMessages(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Empty(t, history)
}
