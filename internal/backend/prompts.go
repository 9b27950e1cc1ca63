package backend

import "strings"

// Operation keys with a dedicated instruction for model-backed runtimes.
const (
	OpTranslate  = "translate"
	OpSummarize  = "summarize"
	OpFixGrammar = "fix_grammar"
	OpRephrase   = "rephrase"
	OpFormal     = "formal"
	OpCasual     = "casual"
	OpExplain    = "explain"
)

const systemInstruction = "You transform text selected by the user in another application. " +
	"Reply with the transformed text only: no preamble, no quotes, no explanations unless asked."

var operationInstructions = map[string]string{
	OpTranslate:  "Translate the following text to English. If it is already English, translate it to Spanish.",
	OpSummarize:  "Summarize the following text in a few short sentences.",
	OpFixGrammar: "Fix spelling, grammar and punctuation in the following text. Keep its meaning and tone.",
	OpRephrase:   "Rephrase the following text so it reads more clearly.",
	OpFormal:     "Rewrite the following text in a formal, professional tone.",
	OpCasual:     "Rewrite the following text in a casual, friendly tone.",
	OpExplain:    "Explain the following text in plain language.",
}

// translateTo matches operation keys of the form translate_<language>, e.g. translate_german.
const translateTo = "translate_"

// BuildPrompt returns the user prompt for an operation. Unknown operations fall back to a
// generic instruction naming the operation.
func BuildPrompt(operation, text string) string {
	instruction, ok := operationInstructions[operation]
	switch {
	case ok:
	case strings.HasPrefix(operation, translateTo) && len(operation) > len(translateTo):
		lang := strings.ReplaceAll(strings.TrimPrefix(operation, translateTo), "_", " ")
		instruction = "Translate the following text to " + lang + "."
	default:
		instruction = "Apply the operation \"" + strings.ReplaceAll(operation, "_", " ") + "\" to the following text."
	}
	return instruction + "\n\n" + text
}
