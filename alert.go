package callwatch

import (
	"fmt"
	"html"
	"strings"
)

// maxErrorCardChars bounds the error text quoted in an error card; Telegram
// rejects messages over 4096 characters.
const maxErrorCardChars = 3500

// BuildAlertCard renders the Telegram HTML message for one processed call.
// The first line is a compact summary visible in the chat-list preview; the
// rest is the detail card.
func BuildAlertCard(call CallRecord, name, link string, eval Evaluation) string {
	deviation := "Ні"
	if !eval.Compliant {
		deviation = "Так"
	}
	phone := call.PhoneNumber
	if phone == "" {
		phone = namePlaceholder
	}

	header := fmt.Sprintf("BOTR: 📞 %s | %s | ⏱%ds | ⚠️Відхилення: %s",
		html.EscapeString(name), html.EscapeString(phone), call.Duration, deviation)

	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n\n")
	b.WriteString("<b>Новий дзвінок</b>\n")
	fmt.Fprintf(&b, "<b>ПІБ:</b> %s\n", html.EscapeString(name))
	fmt.Fprintf(&b, "<b>Телефон:</b> %s\n", html.EscapeString(phone))
	fmt.Fprintf(&b, "<b>CRM:</b> <a href='%s'>відкрити</a>\n", link)
	fmt.Fprintf(&b, "<b>CALL_ID:</b> <code>%s</code>\n", html.EscapeString(call.CallID))
	fmt.Fprintf(&b, "<b>Початок:</b> %s\n", html.EscapeString(call.CallStart))
	fmt.Fprintf(&b, "<b>Тривалість:</b> %ds\n", call.Duration)

	if len(eval.Deviations) > 0 {
		b.WriteString("\n<b>Відхилення:</b>\n")
		for _, d := range eval.Deviations {
			fmt.Fprintf(&b, "• %s\n", html.EscapeString(d))
		}
	}

	fmt.Fprintf(&b, "\n<b>Аналіз (фрагмент %d):</b>\n<code>%s</code>",
		eval.FragmentLimit, html.EscapeString(eval.Fragment))
	return b.String()
}

// BuildErrorCard renders the Telegram message sent when processing a call
// fails.
func BuildErrorCard(callID string, err error) string {
	text := err.Error()
	if len([]rune(text)) > maxErrorCardChars {
		text = string([]rune(text)[:maxErrorCardChars])
	}
	return fmt.Sprintf("🚨 Помилка обробки CALL_ID <code>%s</code>:\n<code>%s</code>",
		html.EscapeString(callID), html.EscapeString(text))
}
