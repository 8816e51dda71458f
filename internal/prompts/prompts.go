// Package prompts manages the prompt templates sent to the
// conversational AI, including the bounded webpage-context injection.
package prompts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/thebtf/parla/pkg/models"
)

// MaxWebpageContextChars bounds how much attached-document text is
// injected into a prompt. The bound is a character prefix, not tokens.
const MaxWebpageContextChars = 1800

// truncationMarker is appended whenever webpage content is cut.
const truncationMarker = "\n...[content truncated]"

// Template file names looked up inside a prompt directory.
const (
	conversationFile       = "conversation.txt"
	transcriptAnalysisFile = "analysis_transcript.txt"
	audioAnalysisFile      = "analysis_audio.txt"
)

const defaultConversation = `You are a friendly conversation partner helping the user practice spoken language.
Listen to the attached audio, transcribe it exactly, and reply naturally in one or
two sentences that keep the conversation going. Use the conversation history and,
when present, the attached webpage as shared context.`

const defaultTranscriptAnalysis = `Review the user's transcribed utterance as a language tutor. Point out speech
flaws, questions of nuance worth asking, and alternative expressions a fluent
speaker might prefer.`

const defaultAudioAnalysis = `Listen to the user's recording as a pronunciation coach. Give concrete advice
on delivery and pronunciation, note speech flaws, and suggest short practice
phrases.`

// Library holds the current prompt texts. It is safe for concurrent
// use; Reload swaps all templates atomically under the lock.
type Library struct {
	mu  sync.RWMutex
	dir string

	conversation       string
	transcriptAnalysis string
	audioAnalysis      string
}

// Default returns a library with the built-in templates and no backing
// directory.
func Default() *Library {
	return &Library{
		conversation:       defaultConversation,
		transcriptAnalysis: defaultTranscriptAnalysis,
		audioAnalysis:      defaultAudioAnalysis,
	}
}

// Load returns a library backed by dir. Missing template files keep
// their built-in defaults; only unreadable existing files are an error.
func Load(dir string) (*Library, error) {
	l := Default()
	l.dir = dir
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Dir returns the backing template directory, empty for defaults-only.
func (l *Library) Dir() string {
	return l.dir
}

// Reload re-reads all template files from the backing directory.
func (l *Library) Reload() error {
	if l.dir == "" {
		return nil
	}

	conversation, err := readTemplate(filepath.Join(l.dir, conversationFile), defaultConversation)
	if err != nil {
		return err
	}
	transcript, err := readTemplate(filepath.Join(l.dir, transcriptAnalysisFile), defaultTranscriptAnalysis)
	if err != nil {
		return err
	}
	audio, err := readTemplate(filepath.Join(l.dir, audioAnalysisFile), defaultAudioAnalysis)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.conversation = conversation
	l.transcriptAnalysis = transcript
	l.audioAnalysis = audio
	l.mu.Unlock()
	return nil
}

func readTemplate(path, fallback string) (string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return fallback, nil
	}
	if err != nil {
		return "", fmt.Errorf("read template %s: %w", path, err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return fallback, nil
	}
	return text, nil
}

// Conversation returns the immediate-path prompt.
func (l *Library) Conversation() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.conversation
}

// Analysis returns the background-path prompt for the given kind.
func (l *Library) Analysis(kind models.AnalysisKind) string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if kind == models.KindAudio {
		return l.audioAnalysis
	}
	return l.transcriptAnalysis
}

// WebpageContext renders the attached document for prompt injection,
// truncated to MaxWebpageContextChars of content.
func WebpageContext(doc *models.WebpageDocument) string {
	if doc == nil {
		return ""
	}
	content := doc.Content
	if runes := []rune(content); len(runes) > MaxWebpageContextChars {
		content = string(runes[:MaxWebpageContextChars]) + truncationMarker
	}
	return fmt.Sprintf("Webpage: %s (%s)\n%s", doc.Title, doc.URL, content)
}
