package channel

// MaxMessageRunes is the longest text body either messaging platform accepts
// in one message.
const MaxMessageRunes = 4096

// SplitMessage cuts text into consecutive pieces of at most limit runes.
// For valid UTF-8, concatenating the pieces gives back text. An empty text yields
// no pieces.
func SplitMessage(text string, limit int) []string {
	if limit <= 0 {
		limit = MaxMessageRunes
	}
	if text == "" {
		return nil
	}

	runes := []rune(text)
	chunks := make([]string, 0, (len(runes)+limit-1)/limit)
	for start := 0; start < len(runes); start += limit {
		end := min(start+limit, len(runes))
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
