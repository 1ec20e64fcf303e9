package ai

import "fmt"

// analysisMaxRunes bounds how much source text goes into a provider prompt.
const analysisMaxRunes = 2000

const analysisPromptFormat = `Analyze this text and extract the following information in a structured format.
Return ONLY valid JSON, no extra text:
{
    "key_concepts": ["idea1", "idea2", "idea3"],
    "methods_used": ["method1", "method2"],
    "related_topics": ["topic1", "topic2"],
    "insights": "summary text"
}

Text to analyze:
%s`

// buildAnalysisPrompt renders the extraction prompt for one piece of source
// text. The JSON skeleton doubles as the field contract the normalizer parses
// against, so the key names here and in StructuredSummary must stay in sync.
func buildAnalysisPrompt(text string) string {
	return fmt.Sprintf(analysisPromptFormat, clipRunes(text, analysisMaxRunes))
}
