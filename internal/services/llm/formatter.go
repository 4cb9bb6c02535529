package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/Kat4X/video-transcriber/internal/language"
	"github.com/Kat4X/video-transcriber/internal/services"
)

// defaultChunkRunes keeps each request comfortably inside the completion
// token budget; a formatted chunk is roughly as long as its input.
const defaultChunkRunes = 6000

const reformatSystemPrompt = `You format speech-to-text transcripts for readability.
Fix punctuation and capitalization and split the text into logical paragraphs
separated by blank lines. Do not change the meaning, do not add or remove
content, and do not add commentary. Return only the formatted text.`

// Completer is the subset of Client the Formatter uses.
type Completer interface {
	CompleteText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Formatter reformats transcript text through an LLM.
type Formatter struct {
	client     Completer
	chunkRunes int
}

// NewFormatter wraps a completer. Long transcripts are sent in chunks of at
// most chunkRunes runes (zero selects the default).
func NewFormatter(client Completer, chunkRunes int) *Formatter {
	if chunkRunes <= 0 {
		chunkRunes = defaultChunkRunes
	}
	return &Formatter{client: client, chunkRunes: chunkRunes}
}

// Reformat returns the formatted text. Chunks are formatted in order and
// joined as paragraphs.
func (f *Formatter) Reformat(ctx context.Context, text, lang string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}
	prompt := languageHint(lang) + "Transcript:\n"
	chunks := splitChunks(text, f.chunkRunes)
	out := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		reply, err := f.client.CompleteText(ctx, reformatSystemPrompt, prompt+chunk)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return "", err
			}
			return "", services.Wrap(services.ErrReformat, "formatting", "llm completion", "", err)
		}
		out = append(out, strings.TrimSpace(reply))
	}
	return strings.Join(out, "\n\n"), nil
}

func languageHint(code string) string {
	code = strings.TrimSpace(code)
	if code == "" || strings.EqualFold(code, language.Auto) {
		return ""
	}
	return "The text is in " + language.DisplayName(code) + ".\n"
}

// splitChunks breaks text at sentence boundaries into pieces of at most limit
// runes. A single sentence longer than limit is split on whitespace.
func splitChunks(text string, limit int) []string {
	if len([]rune(text)) <= limit {
		return []string{text}
	}
	var chunks []string
	var current strings.Builder
	currentRunes := 0
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
		currentRunes = 0
	}
	for _, piece := range splitSentences(text, limit) {
		n := len([]rune(piece))
		if currentRunes > 0 && currentRunes+1+n > limit {
			flush()
		}
		if currentRunes > 0 {
			current.WriteByte(' ')
			currentRunes++
		}
		current.WriteString(piece)
		currentRunes += n
	}
	flush()
	return chunks
}

func splitSentences(text string, limit int) []string {
	var out []string
	start := 0
	runes := []rune(text)
	for i, r := range runes {
		if r == '.' || r == '!' || r == '?' || r == '…' || r == '。' {
			if i+1 == len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' {
				out = append(out, strings.TrimSpace(string(runes[start:i+1])))
				start = i + 1
			}
		}
	}
	if start < len(runes) {
		out = append(out, strings.TrimSpace(string(runes[start:])))
	}
	var bounded []string
	for _, sentence := range out {
		if sentence == "" {
			continue
		}
		if len([]rune(sentence)) <= limit {
			bounded = append(bounded, sentence)
			continue
		}
		bounded = append(bounded, splitWords(sentence, limit)...)
	}
	return bounded
}

func splitWords(sentence string, limit int) []string {
	var out []string
	var current []string
	size := 0
	for _, word := range strings.Fields(sentence) {
		n := len([]rune(word))
		if size > 0 && size+1+n > limit {
			out = append(out, strings.Join(current, " "))
			current, size = nil, 0
		}
		if size > 0 {
			size++
		}
		current = append(current, word)
		size += n
	}
	if len(current) > 0 {
		out = append(out, strings.Join(current, " "))
	}
	return out
}
