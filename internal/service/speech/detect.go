package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const (
	DefaultDetectURL = "https://translate.googleapis.com/translate_a/single"
	userAgent        = "Mozilla/5.0 (compatible; ShariahGuide/1.0)"
	maxDetectRunes   = 1000
)

// Detector is a language identification service.
type Detector interface {
	DetectLanguage(ctx context.Context, text string) (string, error)
}

// LanguageDetector maps whatever the detector says onto the supported set.
type LanguageDetector struct {
	detector Detector
}

// NewLanguageDetector wraps detector; a nil detector always yields English.
func NewLanguageDetector(detector Detector) *LanguageDetector {
	return &LanguageDetector{detector: detector}
}

// Detect never fails: errors and unsupported codes resolve to English.
// Confidence is not consulted.
func (d *LanguageDetector) Detect(ctx context.Context, text string) Language {
	if d == nil || d.detector == nil {
		return DefaultLanguage
	}
	code, err := d.detector.DetectLanguage(ctx, text)
	if err != nil {
		log.WithError(err).Debug("language detection failed, using default")
		return DefaultLanguage
	}
	return Supported(code)
}

// TranslateDetector queries the public Google Translate endpoint and reads the
// detected source language out of its array response.
type TranslateDetector struct {
	endpoint   string
	httpClient *http.Client
}

func NewTranslateDetector(endpoint string, client *http.Client) *TranslateDetector {
	if endpoint == "" {
		endpoint = DefaultDetectURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &TranslateDetector{endpoint: endpoint, httpClient: client}
}

func (d *TranslateDetector) DetectLanguage(ctx context.Context, text string) (string, error) {
	// Only the opening of long answers is sent; it settles the language and
	// keeps the query string within URL limits.
	runes := []rune(text)
	if len(runes) > maxDetectRunes {
		runes = runes[:maxDetectRunes]
	}
	if len(runes) == 0 {
		return "", errors.New("nothing to detect")
	}
	query := url.Values{}
	query.Set("client", "gtx")
	query.Set("sl", "auto")
	query.Set("tl", "en")
	query.Set("dt", "t")
	query.Set("q", string(runes))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("detect language: %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if !gjson.ValidBytes(body) {
		return "", errors.New("detect language: malformed response")
	}
	lang := gjson.GetBytes(body, "2")
	if lang.Type != gjson.String || lang.String() == "" {
		return "", errors.New("detect language: no source language in response")
	}
	return lang.String(), nil
}
