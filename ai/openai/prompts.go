package openai

import "fmt"

const keywordResponseSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "keywords": {
      "type": "array",
      "items": {"type": "string", "minLength": 2},
      "maxItems": %d
    }
  },
  "required": ["keywords"],
  "additionalProperties": false
}`

const keywordPromptTemplate = `You tag image descriptions with search keywords. Pick the keywords a person
would type to find the image the text describes, and return them as JSON.

Output ONLY valid JSON which complies with the schema given below. Do not include any preamble, explanation,
greeting, or acknowledgment. Start your response directly with the opening brace { and end with the closing
brace }. Your output must exactly follow this schema:

%s

Rules:
- Return at most %d keywords, most important first.
- Every keyword must appear verbatim in the text. Keep the language of the text; never translate.
- Prefer nouns for scenes, objects and places, then adjectives for colors and moods, then verbs.
- Chinese keywords are words of two to four characters. Never return a single character.
- Skip function words such as 的, 了, 在, 是, 和, "the", "a", "of".
- Skip numbers and punctuation.
- If nothing qualifies, return {"keywords": []}.
- The JSON must parse without errors; no trailing commas, no extra keys, and no extraneous text outside the object.

Example:
Input: "美丽的日落风景，橙色天空"
Output:
{"keywords": ["日落", "风景", "橙色", "天空", "美丽"]}

Example:
Input: "a red lighthouse on a rocky coast at dawn"
Output:
{"keywords": ["lighthouse", "coast", "dawn", "red", "rocky"]}
`

// buildSystemPrompt renders the keyword extraction instructions for max keywords.
func buildSystemPrompt(max int) string {
	schema := fmt.Sprintf(keywordResponseSchema, max)
	return fmt.Sprintf(keywordPromptTemplate, schema, max)
}
