package diary

// truncationNotice добавляется в конец хроники, урезанной по бюджету токенов.
const truncationNotice = "\n\n[聊天记录过长,已截断]"

// EstimateTokens грубо оценивает число токенов в тексте: иероглифы CJK
// считаются по 1.5 символа на токен, остальные символы — по 4.
func EstimateTokens(text string) int {
	var cjk, other int
	for _, r := range text {
		if r >= 0x4E00 && r <= 0x9FFF {
			cjk++
		} else {
			other++
		}
	}
	return int(float64(cjk)/1.5 + float64(other)/4)
}

// TruncateToBudget укорачивает текст до бюджета токенов. Длина среза берётся
// пропорционально превышению с запасом 5%, затем граница отодвигается назад
// до ближайшего конца предложения в пределах второй половины среза.
// Текст, уже укладывающийся в бюджет, возвращается без изменений.
func TruncateToBudget(text string, maxTokens int) string {
	estimated := EstimateTokens(text)
	if estimated <= maxTokens {
		return text
	}

	runes := []rune(text)
	ratio := float64(maxTokens) / float64(estimated)
	cut := int(float64(len(runes)) * ratio * 0.95)
	if cut < 0 {
		cut = 0
	}
	truncated := runes[:cut]

	for i := len(truncated) - 1; i > len(truncated)/2; i-- {
		switch truncated[i] {
		case '。', '！', '？', '\n':
			truncated = truncated[:i+1]
			return string(truncated) + truncationNotice
		}
	}
	return string(truncated) + truncationNotice
}
