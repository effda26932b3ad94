package bot

import (
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	fabricsPerPage = 12
	fabricsPerRow  = 2
	sizesPerRow    = 4
)

// Callback data carries indexes, not labels, to stay under Telegram's 64 byte limit.

func albumKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Sí", "album:yes"),
			tgbotapi.NewInlineKeyboardButtonData("No", "album:no"),
		),
	)
}

// fabricKeyboard renders one page of fabrics with «/» navigation.
func fabricKeyboard(fabrics []string, page int) tgbotapi.InlineKeyboardMarkup {
	page = clampPage(page, len(fabrics))
	start := page * fabricsPerPage
	end := min(start+fabricsPerPage, len(fabrics))

	var rows [][]tgbotapi.InlineKeyboardButton
	for i := start; i < end; i += fabricsPerRow {
		var row []tgbotapi.InlineKeyboardButton
		for j := i; j < min(i+fabricsPerRow, end); j++ {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(fabrics[j], "fab:"+strconv.Itoa(j)))
		}
		rows = append(rows, row)
	}

	var nav []tgbotapi.InlineKeyboardButton
	if page > 0 {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("«", "fabpage:"+strconv.Itoa(page-1)))
	}
	if end < len(fabrics) {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("»", "fabpage:"+strconv.Itoa(page+1)))
	}
	if len(nav) > 0 {
		rows = append(rows, nav)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// sizesKeyboard marks selected sizes with ✅ and ends with the continue button.
func sizesKeyboard(sizes []string, selected func(string) bool) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for i := 0; i < len(sizes); i += sizesPerRow {
		var row []tgbotapi.InlineKeyboardButton
		for j := i; j < min(i+sizesPerRow, len(sizes)); j++ {
			label := sizes[j]
			if selected(label) {
				label = "✅ " + label
			}
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, "size:"+strconv.Itoa(j)))
		}
		rows = append(rows, row)
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Continuar ▶", "sizes:done"),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func emptyKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}
}

func clampPage(page, total int) int {
	last := 0
	if total > 0 {
		last = (total - 1) / fabricsPerPage
	}
	if page < 0 {
		return 0
	}
	if page > last {
		return last
	}
	return page
}
