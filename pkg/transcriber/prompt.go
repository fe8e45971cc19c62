package transcriber

import "strings"

// PromptWordCount is the number of vocabulary words passed to a recogniser
// as a prompt, to stay within token limits.
const PromptWordCount = 30

// CreateVocabularyPrompt joins the first PromptWordCount non-empty entries
// of vocabulary into a recogniser prompt.
func CreateVocabularyPrompt(vocabulary []string) string {
	words := make([]string, 0, min(len(vocabulary), PromptWordCount))
	for _, v := range vocabulary {
		if v = strings.TrimSpace(v); v == "" {
			continue
		}
		words = append(words, v)
		if len(words) == PromptWordCount {
			break
		}
	}
	return strings.Join(words, " ")
}
