package diary

// SmartTruncate укорачивает готовый дневник до maxLength символов, стараясь
// оборвать текст на конце предложения. Граница ищется назад от maxLength-3
// до середины лимита; если предложение не нашлось, текст режется жёстко
// с многоточием.
func SmartTruncate(text string, maxLength int) string {
	runes := []rune(text)
	if len(runes) <= maxLength {
		return text
	}
	if maxLength <= 3 {
		return string(runes[:maxLength])
	}

	for i := maxLength - 3; i > maxLength/2; i-- {
		switch runes[i] {
		case '。', '！', '？', '~':
			return string(runes[:i+1])
		}
	}
	return string(runes[:maxLength-3]) + "..."
}
