package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"
)

const (
	DefaultTTSURL = "https://translate.google.com/translate_tts"

	tempFilePattern = "shariahguide-tts-*.mp3"
	maxChunkRunes   = 100
	sentenceEnd     = ".!?;:،؛؟۔"
)

// Engine converts text into MP3 audio.
type Engine interface {
	Synthesize(ctx context.Context, text string, lang Language, slow bool) ([]byte, error)
}

// Speech is the result of synthesis: either Audio, or unavailable with a Reason.
type Speech struct {
	Audio  []byte
	Reason error
}

// Unavailable builds the failed variant.
func Unavailable(reason error) Speech {
	if reason == nil {
		reason = errors.New("speech unavailable")
	}
	return Speech{Reason: reason}
}

// Available reports whether audio can be played back.
func (s Speech) Available() bool {
	return s.Reason == nil && len(s.Audio) > 0
}

// Synthesizer writes engine output to temporary files.
type Synthesizer struct {
	engine  Engine
	slow    bool
	tempDir string
}

func NewSynthesizer(engine Engine, slow bool) *Synthesizer {
	return &Synthesizer{engine: engine, slow: slow}
}

// SetTempDir overrides where audio files are written (default os.TempDir()).
func (s *Synthesizer) SetTempDir(dir string) {
	s.tempDir = dir
}

// SynthesizeToFile speaks text in the given language and returns the path of a
// new temporary MP3 file. The caller owns the file. Unsupported language codes
// fall back to English.
func (s *Synthesizer) SynthesizeToFile(ctx context.Context, text, code string) (string, error) {
	if s.engine == nil {
		return "", errors.New("speech engine not configured")
	}
	lang := Supported(code)
	audio, err := s.engine.Synthesize(ctx, text, lang, s.slow)
	if err != nil {
		return "", fmt.Errorf("synthesize (%s): %w", lang, err)
	}
	if len(audio) == 0 {
		return "", errors.New("synthesize: engine returned no audio")
	}
	f, err := os.CreateTemp(s.tempDir, tempFilePattern)
	if err != nil {
		return "", fmt.Errorf("create audio file: %w", err)
	}
	if _, err := f.Write(audio); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write audio file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close audio file: %w", err)
	}
	return f.Name(), nil
}

// Synthesize returns the audio bytes, or the unavailable variant when any
// step fails. The temporary file is removed before returning.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, lang Language) (speech Speech) {
	defer func() {
		if r := recover(); r != nil {
			speech = Unavailable(fmt.Errorf("speech engine panicked: %v", r))
			log.WithField("panic", r).Error("text to speech failed")
		}
	}()
	path, err := s.SynthesizeToFile(ctx, text, string(lang))
	if err != nil {
		log.WithError(err).WithField("lang", lang).Error("text to speech failed")
		return Unavailable(err)
	}
	defer os.Remove(path)
	audio, err := os.ReadFile(path)
	if err != nil {
		log.WithError(err).WithField("path", path).Error("read synthesized audio failed")
		return Unavailable(err)
	}
	return Speech{Audio: audio}
}

// GoogleTTS uses the Google Translate speech endpoint. Long text is sent in
// chunks and the MP3 fragments are concatenated.
type GoogleTTS struct {
	endpoint   string
	httpClient *http.Client
}

func NewGoogleTTS(endpoint string, client *http.Client) *GoogleTTS {
	if endpoint == "" {
		endpoint = DefaultTTSURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &GoogleTTS{endpoint: endpoint, httpClient: client}
}

func (g *GoogleTTS) Synthesize(ctx context.Context, text string, lang Language, slow bool) ([]byte, error) {
	chunks := splitText(text, maxChunkRunes)
	if len(chunks) == 0 {
		return nil, errors.New("no text to speak")
	}
	speed := "1"
	if slow {
		speed = "0.24"
	}
	var audio bytes.Buffer
	for idx, chunk := range chunks {
		query := url.Values{}
		query.Set("ie", "UTF-8")
		query.Set("client", "tw-ob")
		query.Set("tl", string(lang))
		query.Set("q", chunk)
		query.Set("ttsspeed", speed)
		query.Set("total", strconv.Itoa(len(chunks)))
		query.Set("idx", strconv.Itoa(idx))
		query.Set("textlen", strconv.Itoa(utf8.RuneCountInString(chunk)))
		if err := g.fetch(ctx, g.endpoint+"?"+query.Encode(), &audio); err != nil {
			return nil, fmt.Errorf("chunk %d/%d: %w", idx+1, len(chunks), err)
		}
	}
	return audio.Bytes(), nil
}

func (g *GoogleTTS) fetch(ctx context.Context, target string, dst io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tts request: %s", resp.Status)
	}
	_, err = io.Copy(dst, resp.Body)
	return err
}

// splitText packs words into chunks of at most limit runes, closing a chunk
// early after sentence punctuation.
func splitText(text string, limit int) []string {
	var (
		chunks []string
		cur    strings.Builder
		curLen int
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			chunks = append(chunks, s)
		}
		cur.Reset()
		curLen = 0
	}
	for _, word := range strings.Fields(text) {
		r := []rune(word)
		for len(r) > limit {
			flush()
			chunks = append(chunks, string(r[:limit]))
			r = r[limit:]
		}
		if curLen > 0 && curLen+1+len(r) > limit {
			flush()
		}
		if curLen > 0 {
			cur.WriteByte(' ')
			curLen++
		}
		cur.WriteString(string(r))
		curLen += len(r)
		if strings.ContainsRune(sentenceEnd, r[len(r)-1]) {
			flush()
		}
	}
	flush()
	return chunks
}
