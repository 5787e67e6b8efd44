package messaging

import (
	"html"
	"strings"
)

// whatsappMarkup maps the HTML subset used in outbound text onto WhatsApp formatting.
var whatsappMarkup = strings.NewReplacer(
	"<b>", "*", "</b>", "*",
	"<i>", "_", "</i>", "_",
	"<code>", "```", "</code>", "```",
)

// HTMLToText converts outbound HTML to WhatsApp-flavoured plain text.
func HTMLToText(s string) string {
	return html.UnescapeString(whatsappMarkup.Replace(s))
}
