package ai

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/shiv669/echo-core-go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const analyzableText = "The quick brown fox jumps over the lazy dog near the river bank."

const validRecordJSON = `{
	"key_concepts": ["federated learning", "privacy"],
	"methods_used": ["differential privacy"],
	"related_topics": ["distributed systems"],
	"insights": "Trains models without centralizing data."
}`

func TestNormalizeTooShortWinsOverEverything(t *testing.T) {
	cases := []struct {
		name    string
		source  string
		raw     string
		callErr error
	}{
		{"empty source", "", validRecordJSON, nil},
		{"short source", "tiny", "", nil},
		{"short source with call error", "tiny", "", errors.New("boom")},
		{"whitespace only", "    \n\t   ", validRecordJSON, nil},
		{"nineteen runes after trim", "  " + strings.Repeat("a", 19) + "  ", validRecordJSON, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			summary, outcome := Normalize(tc.source, tc.raw, tc.callErr)
			assert.Equal(t, OutcomeTooShort, outcome)
			assert.Equal(t, models.StructuredSummary{
				KeyConcepts:   models.StringSlice{"content analysis"},
				MethodsUsed:   models.StringSlice{"text processing"},
				RelatedTopics: models.StringSlice{"knowledge extraction"},
				Insights:      "Content too short to analyze",
			}, summary)
		})
	}
}

func TestNormalizeLengthBoundary(t *testing.T) {
	// Exactly 20 trimmed runes clears the guard; the call error then takes
	// over and selects the failed placeholder instead.
	atBoundary := strings.Repeat("a", 20)
	_, outcome := Normalize(atBoundary, "", errors.New("boom"))
	assert.Equal(t, OutcomeFailed, outcome)

	// Multi-byte runes count as one character each.
	wide := strings.Repeat("知", 20)
	_, outcome = Normalize(wide, "", errors.New("boom"))
	assert.Equal(t, OutcomeFailed, outcome)

	_, outcome = Normalize(strings.Repeat("知", 19), "", errors.New("boom"))
	assert.Equal(t, OutcomeTooShort, outcome)
}

func TestNormalizeCallFailure(t *testing.T) {
	summary, outcome := Normalize(analyzableText, "", errors.New("connection refused"))
	assert.Equal(t, OutcomeFailed, outcome)
	assert.Equal(t, models.StructuredSummary{
		KeyConcepts:   models.StringSlice{"source analysis"},
		MethodsUsed:   models.StringSlice{"content extraction"},
		RelatedTopics: models.StringSlice{"knowledge graphs"},
		Insights:      "Content captured successfully. AI summarization failed - using placeholder.",
	}, summary)
}

func TestNormalizeParsedRecord(t *testing.T) {
	raw := "Sure, here is the extraction you asked for:\n" + validRecordJSON + "\nHope this helps!"
	summary, outcome := Normalize(analyzableText, raw, nil)
	require.Equal(t, OutcomeParsed, outcome)
	assert.Equal(t, models.StringSlice{"federated learning", "privacy"}, summary.KeyConcepts)
	assert.Equal(t, models.StringSlice{"differential privacy"}, summary.MethodsUsed)
	assert.Equal(t, models.StringSlice{"distributed systems"}, summary.RelatedTopics)
	assert.Equal(t, "Trains models without centralizing data.", summary.Insights)
}

func TestNormalizeParsedEmptySets(t *testing.T) {
	raw := `{"key_concepts":[],"methods_used":[],"related_topics":[],"insights":""}`
	summary, outcome := Normalize(analyzableText, raw, nil)
	require.Equal(t, OutcomeParsed, outcome)
	assert.NotNil(t, summary.KeyConcepts)
	assert.NotNil(t, summary.MethodsUsed)
	assert.NotNil(t, summary.RelatedTopics)
	assert.Empty(t, summary.KeyConcepts)
	assert.Empty(t, summary.MethodsUsed)
	assert.Empty(t, summary.RelatedTopics)
}

func TestNormalizeUnparsedResponses(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"no braces at all", "the model replied with plain prose"},
		{"unbalanced brace", "something { unfinished"},
		{"invalid json span", "{this is not json}"},
		{"missing related_topics", `{"key_concepts":["a"],"methods_used":["b"],"insights":"c"}`},
		{"null key_concepts", `{"key_concepts":null,"methods_used":[],"related_topics":[],"insights":"x"}`},
		{"insights not a string", `{"key_concepts":[],"methods_used":[],"related_topics":[],"insights":42}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			summary, outcome := Normalize(analyzableText, tc.raw, nil)
			assert.Equal(t, OutcomeUnparsed, outcome)
			assert.Equal(t, models.StringSlice{"analysis", "summary"}, summary.KeyConcepts)
			assert.Equal(t, models.StringSlice{"text processing"}, summary.MethodsUsed)
			assert.Equal(t, models.StringSlice{"information extraction"}, summary.RelatedTopics)
		})
	}
}

func TestNormalizeUnparsedInsightsCarriesRawPrefix(t *testing.T) {
	short := "prose answer without structure"
	summary, outcome := Normalize(analyzableText, short, nil)
	require.Equal(t, OutcomeUnparsed, outcome)
	assert.Equal(t, short, summary.Insights)

	// Longer responses are clipped to 150 runes with no ellipsis appended.
	long := strings.Repeat("知", 200)
	summary, outcome = Normalize(analyzableText, long, nil)
	require.Equal(t, OutcomeUnparsed, outcome)
	assert.Equal(t, strings.Repeat("知", 150), summary.Insights)
	assert.Equal(t, 150, len([]rune(summary.Insights)))
}

func TestNormalizeUnparsedEmptyResponse(t *testing.T) {
	summary, outcome := Normalize(analyzableText, "", nil)
	assert.Equal(t, OutcomeUnparsed, outcome)
	assert.Equal(t, "Content captured successfully", summary.Insights)
}

func TestNormalizeRoundTrip(t *testing.T) {
	original := models.StructuredSummary{
		KeyConcepts:   models.StringSlice{"graphs", "similarity"},
		MethodsUsed:   models.StringSlice{"jaccard"},
		RelatedTopics: models.StringSlice{"clustering"},
		Insights:      "Edges connect items that share concepts.",
	}
	encoded, err := json.Marshal(original)
	require.NoError(t, err)

	reparsed, outcome := Normalize(analyzableText, string(encoded), nil)
	assert.Equal(t, OutcomeParsed, outcome)
	assert.Equal(t, original, reparsed)
}

func TestExtractStructuredSummary(t *testing.T) {
	parsed, ok := ExtractStructuredSummary(validRecordJSON)
	require.True(t, ok)
	assert.Equal(t, models.StringSlice{"federated learning", "privacy"}, parsed.KeyConcepts)

	fenced := "```json\n" + validRecordJSON + "\n```"
	parsed, ok = ExtractStructuredSummary(fenced)
	require.True(t, ok, "code fences sit outside the brace span and must not break extraction")
	assert.Equal(t, "Trains models without centralizing data.", parsed.Insights)

	_, ok = ExtractStructuredSummary("no structure here")
	assert.False(t, ok)

	_, ok = ExtractStructuredSummary("}{")
	assert.False(t, ok)

	_, ok = ExtractStructuredSummary("")
	assert.False(t, ok)
}

func TestOutcomeDegraded(t *testing.T) {
	assert.False(t, OutcomeParsed.Degraded())
	assert.True(t, OutcomeUnparsed.Degraded())
	assert.True(t, OutcomeFailed.Degraded())
	assert.True(t, OutcomeTooShort.Degraded())
}

func TestClipRunes(t *testing.T) {
	assert.Equal(t, "abc", clipRunes("abc", 5))
	assert.Equal(t, "abc", clipRunes("abc", 3))
	assert.Equal(t, "ab", clipRunes("abc", 2))
	assert.Equal(t, "知知", clipRunes("知知知知", 2))
	assert.Equal(t, "", clipRunes("", 10))
}
