package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/commentflow/internal/domain"
)

func TestGenerateFromTemplates(t *testing.T) {
	g := NewTextGenerator(nil, nil, "", nil)
	s := domain.Schedule{ID: "s1", CommentTemplates: []string{"nice one"}}

	text, err := g.Generate(context.Background(), s, domain.TargetVideo{VideoID: "v1"})
	require.NoError(t, err)
	assert.Equal(t, "nice one", text)
}

func TestGenerateAvoidsImmediateRepeat(t *testing.T) {
	g := NewTextGenerator(nil, nil, "", nil)
	s := domain.Schedule{ID: "s1", CommentTemplates: []string{"a", "b", "c"}}

	prev, err := g.Generate(context.Background(), s, domain.TargetVideo{})
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		next, err := g.Generate(context.Background(), s, domain.TargetVideo{})
		require.NoError(t, err)
		assert.NotEqual(t, prev, next)
		prev = next
	}
}

func TestGenerateNoTemplatesNoAI(t *testing.T) {
	g := NewTextGenerator(nil, nil, "", nil)
	_, err := g.Generate(context.Background(), domain.Schedule{ID: "s1"}, domain.TargetVideo{})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestGenerateAIPreferred(t *testing.T) {
	g := NewTextGenerator(&fakeAI{text: "amazing content"}, nil, "", nil)
	s := domain.Schedule{ID: "s1", UseAI: true, CommentTemplates: []string{"fallback"}}

	text, err := g.Generate(context.Background(), s, domain.TargetVideo{Title: "How to bake"})
	require.NoError(t, err)
	assert.Equal(t, "amazing content", text)
}

func TestGenerateAIFailureFallsBackToTemplates(t *testing.T) {
	g := NewTextGenerator(&fakeAI{err: errors.New("llm down")}, nil, "", nil)
	s := domain.Schedule{ID: "s1", UseAI: true, CommentTemplates: []string{"fallback"}}

	text, err := g.Generate(context.Background(), s, domain.TargetVideo{})
	require.NoError(t, err)
	assert.Equal(t, "fallback", text)
}

func TestGenerateAIGrowsTemplatePool(t *testing.T) {
	repo := newFakeScheduleRepo()
	s := *repo.put(domain.Schedule{UseAI: true, CommentTemplates: []string{"old one"}})
	g := NewTextGenerator(&fakeAI{text: "  brand new take  "}, nil, "", repo)

	text, err := g.Generate(context.Background(), s, domain.TargetVideo{})
	require.NoError(t, err)
	assert.Equal(t, "brand new take", text)

	stored, _ := repo.Get(context.Background(), s.ID)
	assert.Equal(t, []string{"old one", "brand new take"}, stored.CommentTemplates)
}

func TestGenerateAIKnownTextDoesNotDuplicate(t *testing.T) {
	repo := newFakeScheduleRepo()
	s := *repo.put(domain.Schedule{UseAI: true, CommentTemplates: []string{"brand new take"}})
	g := NewTextGenerator(&fakeAI{text: "brand new take"}, nil, "", repo)

	_, err := g.Generate(context.Background(), s, domain.TargetVideo{})
	require.NoError(t, err)

	stored, _ := repo.Get(context.Background(), s.ID)
	assert.Equal(t, []string{"brand new take"}, stored.CommentTemplates)
}

func TestGenerateAIUsesVideoTitleLookup(t *testing.T) {
	platform := &fakePlatform{titles: map[string]string{"v1": "Great cooking tips"}}
	g := NewTextGenerator(&fakeAI{text: "yum"}, platform, "api-key", nil)
	s := domain.Schedule{ID: "s1", UseAI: true}

	text, err := g.Generate(context.Background(), s, domain.TargetVideo{VideoID: "v1"})
	require.NoError(t, err)
	assert.Equal(t, "yum", text)
}

func TestSanitizeAppendsThreeEmojis(t *testing.T) {
	out := sanitizeComment("  so good  ", true)
	assert.True(t, strings.HasPrefix(out, "so good "))

	total := 0
	for _, e := range commentEmojis {
		total += strings.Count(out, e)
	}
	assert.Equal(t, 3, total)
}

func TestSanitizeWithoutEmojisOnlyTrims(t *testing.T) {
	assert.Equal(t, "so good", sanitizeComment("  so good  ", false))
}

func TestSanitizeRewritesShareToken(t *testing.T) {
	in := "watch https://youtu.be/abc?si=OldToken123 and https://youtu.be/def?x=1&si=AnotherOld"
	out := sanitizeComment(in, false)

	assert.NotContains(t, out, "OldToken123")
	assert.NotContains(t, out, "AnotherOld")
	matches := shareTokenRe.FindAllString(out, -1)
	require.Len(t, matches, 2)
	for _, m := range matches {
		token := m[strings.Index(m, "=")+1:]
		assert.Len(t, token, 16)
	}
	// Everything around the tokens is untouched.
	assert.True(t, strings.HasPrefix(out, "watch https://youtu.be/abc?si="))
	assert.Contains(t, out, "https://youtu.be/def?x=1&si=")
}

func TestSanitizeFreshTokensDifferPerAttempt(t *testing.T) {
	in := "https://youtu.be/abc?si=SameSeedToken"
	assert.NotEqual(t, sanitizeComment(in, false), sanitizeComment(in, false))
}
