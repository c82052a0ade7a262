package keyboard

import tele "gopkg.in/telebot.v4"

// RawBtn describes an inline button whose callback data is sent verbatim,
// without the endpoint prefix telebot adds for markup.Data buttons. Clients
// built against the raw Bot API (and older bots being migrated) expect this
// wire form.
type RawBtn struct {
	Text string
	Data string
}

// RawInline builds an inline keyboard where each button is placed on its own row.
func RawInline(buttons ...RawBtn) *tele.ReplyMarkup {
	rows := make([][]RawBtn, 0, len(buttons))
	for _, b := range buttons {
		rows = append(rows, []RawBtn{b})
	}
	return RawInlineRows(rows...)
}

// RawInlineRows builds an inline keyboard from rows of RawBtn.
func RawInlineRows(rows ...[]RawBtn) *tele.ReplyMarkup {
	inline := make([][]tele.InlineButton, len(rows))
	for i, row := range rows {
		r := make([]tele.InlineButton, len(row))
		for j, btn := range row {
			r[j] = tele.InlineButton{Text: btn.Text, Data: btn.Data}
		}
		inline[i] = r
	}
	return &tele.ReplyMarkup{InlineKeyboard: inline}
}
