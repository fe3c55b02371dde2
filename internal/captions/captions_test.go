package captions

import (
	"testing"

	"github.com/bobarin/podclip/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildTranscript constructs a synthetic transcript containing the phrase
// "the customer" twice — once around 12s and again around 18s — mirroring
// the duplicate-phrase scenario in §8 scenario 2.
func buildTranscript() ([]utterance, []Word) {
	words := []Word{
		{Text: "we", StartMs: 10_000, EndMs: 10_200},
		{Text: "told", StartMs: 10_200, EndMs: 10_500},
		{Text: "the", StartMs: 12_000, EndMs: 12_200},
		{Text: "customer", StartMs: 12_200, EndMs: 12_600},
		{Text: "about", StartMs: 12_600, EndMs: 12_900},
		{Text: "it", StartMs: 12_900, EndMs: 13_000},
		{Text: "then", StartMs: 17_000, EndMs: 17_200},
		{Text: "the", StartMs: 17_200, EndMs: 17_400},
		{Text: "customer", StartMs: 19_400, EndMs: 19_800},
		{Text: "called", StartMs: 19_800, EndMs: 20_100},
		{Text: "back", StartMs: 20_100, EndMs: 20_300},
	}
	utterances := []utterance{
		{Words: words[:6]},
		{Words: words[6:]},
	}
	return utterances, words
}

func TestChunkResolvesDuplicatePhraseByPositionCursor(t *testing.T) {
	utterances, words := buildTranscript()
	chunks := chunk(utterances, words, models.CaptionStyleNormal)
	require.Len(t, chunks, 2)

	second := chunks[1]
	assert.Contains(t, second.Text, "customer")
	// The second chunk's matched words must come from the SECOND
	// occurrence (startMs ~17000-20300), not the first (~10000-13000).
	assert.GreaterOrEqual(t, second.StartMs, 17_000)
	assert.Greater(t, second.LastWordIndexInTranscript, chunks[0].LastWordIndexInTranscript)
}

func TestChunkDerivesTimingFromActualWords(t *testing.T) {
	utterances, words := buildTranscript()
	chunks := chunk(utterances, words, models.CaptionStyleNormal)
	require.Len(t, chunks, 2)

	first := chunks[0]
	assert.Equal(t, 10_000, first.StartMs)
	assert.Equal(t, 13_000, first.EndMs)
}

func TestChunkNeverMergesAcrossSpeakerChange(t *testing.T) {
	utterances := []utterance{
		{Speaker: "A", Words: []Word{{Text: "hello", StartMs: 0, EndMs: 200}}},
		{Speaker: "B", Words: []Word{{Text: "world", StartMs: 200, EndMs: 400}}},
	}
	words := []Word{utterances[0].Words[0], utterances[1].Words[0]}

	chunks := chunk(utterances, words, models.CaptionStyleNormal)
	require.Len(t, chunks, 2)
	assert.Equal(t, "hello", chunks[0].Text)
	assert.Equal(t, "world", chunks[1].Text)
}

func TestApplyStyleCasing(t *testing.T) {
	assert.Equal(t, "HELLO WORLD", applyStyle("Hello World", models.CaptionStyleUppercase))
	assert.Equal(t, "hello world", applyStyle("Hello World", models.CaptionStyleLowercase))
	assert.Equal(t, "Hello World", applyStyle("hello world", models.CaptionStyleTitle))
	assert.Equal(t, "Hello World", applyStyle("Hello World", models.CaptionStyleNormal))
}

func TestSplitByLineBudgetRespectsCap(t *testing.T) {
	words := make([]Word, 0, 30)
	for i := 0; i < 30; i++ {
		words = append(words, Word{Text: "word", StartMs: i * 100, EndMs: i*100 + 90})
	}
	groups := splitByLineBudget(words)
	require.NotEmpty(t, groups)
	for _, g := range groups {
		total := 0
		for i, w := range g {
			if i > 0 {
				total++
			}
			total += len(w.Text)
		}
		assert.LessOrEqual(t, total, maxLinesPerChunk*maxCharsPerLine)
	}
}
