package telegram

import (
	"strings"
	"unicode/utf8"
)

// messageLimit задаёт бюджет одной части с запасом до лимита Telegram в 4096.
const messageLimit = 4000

// SplitMessage разбивает текст на части, не превышающие бюджет. Разрыв
// происходит только по границам строк; строка длиннее бюджета режется
// жёстко на куски фиксированного размера.
func SplitMessage(text string) []string {
	return splitWithLimit(text, messageLimit)
}

func splitWithLimit(text string, limit int) []string {
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var (
		parts   []string
		current []rune
	)
	for _, line := range strings.Split(text, "\n") {
		runes := []rune(line)
		if len(current)+len(runes)+1 > limit {
			if len(current) > 0 {
				parts = append(parts, string(current))
				current = nil
			}
			for len(runes) > limit {
				parts = append(parts, string(runes[:limit]))
				runes = runes[limit:]
			}
			current = runes
			continue
		}
		if len(current) > 0 {
			current = append(current, '\n')
		}
		current = append(current, runes...)
	}
	if len(current) > 0 {
		parts = append(parts, string(current))
	}
	return parts
}
