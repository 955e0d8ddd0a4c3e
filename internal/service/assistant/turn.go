package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"shariahguide/internal/metrics"
	"shariahguide/internal/models"
	"shariahguide/internal/service/ai"
	"shariahguide/internal/service/speech"
)

// ErrEmptyQuery rejects blank questions before anything is stored.
var ErrEmptyQuery = errors.New("query is empty")

// AnswerGenerator produces an answer for a query grounded on the document.
type AnswerGenerator interface {
	Answer(ctx context.Context, document, query string) ai.Answer
}

// LanguageDetector picks the speech language for a text.
type LanguageDetector interface {
	Detect(ctx context.Context, text string) speech.Language
}

// SpeechSynthesizer turns answer text into audio.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string, lang speech.Language) speech.Speech
}

// Pipeline bundles the external capabilities a turn needs. Detector and
// Synthesizer may be nil, in which case answers are stored without audio.
type Pipeline struct {
	Generator   AnswerGenerator
	Detector    LanguageDetector
	Synthesizer SpeechSynthesizer
	Metrics     *metrics.Recorder
	// SpeakFailures also synthesizes "Error: ..." answers.
	SpeakFailures bool
}

// TurnRequest is one submitted question. The callbacks let a caller stream
// progress: OnQuery fires once the user message is stored, OnAnswer once the
// answer text is known and before speech synthesis starts.
type TurnRequest struct {
	SessionID int64
	Query     string
	OnQuery   func(*models.Message)
	OnAnswer  func(text string)
}

// Turn is the outcome of a processed question.
type Turn struct {
	UserMessage      *models.Message
	AssistantMessage *models.Message
	InDomain         bool
	GenerationFailed bool
	Language         speech.Language
	Speech           speech.Speech
}

// Ask runs one turn: store the question, classify it, then either store the
// warning or generate, detect, synthesize and store the answer. Callers must
// not run two turns of the same session concurrently. Once the question is
// stored the turn always appends a reply, even if ctx ends mid-way: a dead
// context only turns the answer into an "Error: ..." message.
func (s *Service) Ask(ctx context.Context, req TurnRequest) (*Turn, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, ErrEmptyQuery
	}
	storeCtx := context.WithoutCancel(ctx)
	userMsg, err := s.AddMessage(ctx, models.Message{
		SessionID: req.SessionID,
		Role:      models.RoleUser,
		Content:   req.Query,
	})
	if err != nil {
		return nil, fmt.Errorf("store question: %w", err)
	}
	if req.OnQuery != nil {
		req.OnQuery(userMsg)
	}

	turn := &Turn{UserMessage: userMsg, InDomain: IsInDomain(req.Query)}
	if !turn.InDomain {
		assistantMsg, err := s.AddMessage(storeCtx, models.Message{
			SessionID: req.SessionID,
			Role:      models.RoleAssistant,
			Content:   WarningMessage,
		})
		if err != nil {
			return nil, fmt.Errorf("store warning: %w", err)
		}
		turn.AssistantMessage = assistantMsg
		s.pipeline.Metrics.ObserveTurn(metrics.OutcomeRejected)
		return turn, nil
	}

	answer := s.answer(ctx, req.Query)
	turn.GenerationFailed = answer.Failed()
	if req.OnAnswer != nil {
		req.OnAnswer(answer.Text)
	}

	if !answer.Failed() || s.pipeline.SpeakFailures {
		turn.Language, turn.Speech = s.speak(ctx, answer.Text)
	} else {
		turn.Speech = speech.Unavailable(fmt.Errorf("generation failed: %w", answer.Err))
	}

	msg := models.Message{
		SessionID: req.SessionID,
		Role:      models.RoleAssistant,
		Content:   answer.Text,
	}
	if turn.Speech.Available() {
		msg.Audio = turn.Speech.Audio
	}
	assistantMsg, err := s.AddMessage(storeCtx, msg)
	if err != nil {
		return nil, fmt.Errorf("store answer: %w", err)
	}
	turn.AssistantMessage = assistantMsg

	if turn.GenerationFailed {
		s.pipeline.Metrics.ObserveTurn(metrics.OutcomeGenerationFailed)
	} else {
		s.pipeline.Metrics.ObserveTurn(metrics.OutcomeAccepted)
	}
	return turn, nil
}

func (s *Service) answer(ctx context.Context, query string) ai.Answer {
	if s.pipeline.Generator == nil {
		err := errors.New("answer generator not configured")
		return ai.Answer{Text: "Error: " + err.Error(), Err: err}
	}
	started := time.Now()
	answer := s.pipeline.Generator.Answer(ctx, s.document, query)
	s.pipeline.Metrics.ObserveStage(metrics.StageGenerate, started, answer.Failed())
	return answer
}

func (s *Service) speak(ctx context.Context, text string) (speech.Language, speech.Speech) {
	lang := speech.DefaultLanguage
	if s.pipeline.Detector != nil {
		started := time.Now()
		lang = s.pipeline.Detector.Detect(ctx, text)
		s.pipeline.Metrics.ObserveStage(metrics.StageDetect, started, false)
	}
	if s.pipeline.Synthesizer == nil {
		return lang, speech.Unavailable(errors.New("speech disabled"))
	}
	started := time.Now()
	sp := s.pipeline.Synthesizer.Synthesize(ctx, text, lang)
	s.pipeline.Metrics.ObserveStage(metrics.StageSynthesize, started, !sp.Available())
	if !sp.Available() {
		log.WithError(sp.Reason).WithField("lang", lang).Warn("answer stored without audio")
	}
	return lang, sp
}
