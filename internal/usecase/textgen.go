package usecase

import (
	"fmt"
	"log/slog"
	"math/rand"
	"regexp"
	"strings"
	"sync"

	"github.com/fairyhunter13/commentflow/internal/domain"
)

var commentEmojis = []string{"🔥", "👍", "❤️", "😍", "💯", "🙌", "👏", "✨"}

// TextGenerator produces the comment body for one dispatch. AI generation
// is best effort; any failure falls back to the schedule's templates so a
// flaky LLM never stalls a batch. Successful AI text is appended to the
// schedule's template pool so it keeps growing across runs.
type TextGenerator struct {
	AI        domain.AIClient
	Platform  domain.PlatformAPI
	Schedules domain.ScheduleRepository
	// APIKey authorises the title lookup that seeds the AI prompt.
	APIKey string

	mu       sync.Mutex
	lastPick map[string]int // schedule ID -> last template index
}

// NewTextGenerator constructs a TextGenerator.
func NewTextGenerator(ai domain.AIClient, platform domain.PlatformAPI, apiKey string, schedules domain.ScheduleRepository) *TextGenerator {
	return &TextGenerator{AI: ai, Platform: platform, APIKey: apiKey, Schedules: schedules, lastPick: make(map[string]int)}
}

// Generate returns the text for one comment on the given video.
func (g *TextGenerator) Generate(ctx domain.Context, s domain.Schedule, video domain.TargetVideo) (string, error) {
	if s.UseAI && g.AI != nil {
		if text, err := g.generateAI(ctx, video); err == nil && text != "" {
			text = strings.TrimSpace(text)
			g.rememberTemplate(ctx, s, text)
			return text, nil
		} else if err != nil {
			slog.Warn("ai generation failed, falling back to templates",
				slog.String("schedule_id", s.ID), slog.Any("error", err))
		}
	}
	text, err := g.pickTemplate(s)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (g *TextGenerator) generateAI(ctx domain.Context, video domain.TargetVideo) (string, error) {
	title := video.Title
	if title == "" && g.Platform != nil && g.APIKey != "" {
		t, err := g.Platform.VideoTitle(ctx, g.APIKey, video.VideoID)
		if err == nil {
			title = t
		}
	}
	if title == "" {
		title = "this video"
	}
	return g.AI.GenerateComment(ctx, title)
}

// rememberTemplate grows the schedule's pool with freshly generated text.
// Best effort: a failed write only costs the pool growth, not the dispatch.
func (g *TextGenerator) rememberTemplate(ctx domain.Context, s domain.Schedule, text string) {
	if g.Schedules == nil || text == "" {
		return
	}
	for _, t := range s.CommentTemplates {
		if t == text {
			return
		}
	}
	if err := g.Schedules.AppendCommentTemplate(ctx, s.ID, text); err != nil {
		slog.Warn("template append failed",
			slog.String("schedule_id", s.ID), slog.Any("error", err))
	}
}

// pickTemplate chooses a random template, avoiding an immediate repeat when
// more than one exists.
func (g *TextGenerator) pickTemplate(s domain.Schedule) (string, error) {
	n := len(s.CommentTemplates)
	if n == 0 {
		return "", fmt.Errorf("op=textgen.pick schedule=%s: %w: no comment templates", s.ID, domain.ErrInvalidArgument)
	}
	if n == 1 {
		return s.CommentTemplates[0], nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	idx := rand.Intn(n)
	if last, ok := g.lastPick[s.ID]; ok && idx == last {
		idx = (idx + 1) % n
	}
	g.lastPick[s.ID] = idx
	return s.CommentTemplates[idx], nil
}

// shareTokenRe matches the si tracking parameter carried by short-form
// share links embedded in comment text.
var shareTokenRe = regexp.MustCompile(`([?&]si=)[A-Za-z0-9_-]+`)

const shareTokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

func randomShareToken() string {
	b := make([]byte, 16)
	for i := range b {
		b[i] = shareTokenAlphabet[rand.Intn(len(shareTokenAlphabet))]
	}
	return string(b)
}

// sanitizeComment prepares stored text for one posting attempt: trim, swap
// every embedded share-link si token for a fresh random one so repeated
// posts never carry an identical URL, and append three random emojis when
// the schedule asks for them.
func sanitizeComment(text string, includeEmojis bool) string {
	text = strings.TrimSpace(text)
	text = shareTokenRe.ReplaceAllStringFunc(text, func(m string) string {
		i := strings.Index(m, "=")
		return m[:i+1] + randomShareToken()
	})
	if includeEmojis {
		var sb strings.Builder
		sb.WriteString(text)
		sb.WriteString(" ")
		for i := 0; i < 3; i++ {
			sb.WriteString(commentEmojis[rand.Intn(len(commentEmojis))])
		}
		text = sb.String()
	}
	return text
}
