package telegram

import (
	"sort"
	"strings"
	"unicode/utf16"

	"github.com/gotd/td/tg"
)

// span is a markdown wrapper applied to a UTF-16 code unit range.
type span struct {
	offset int
	length int
	open   string
	close  string
}

// EntitiesToMarkdown renders a message's plain text plus Telegram entity
// list as markdown for glamour. Telegram entity offsets count UTF-16 code
// units, so the text is walked in UTF-16 space.
func EntitiesToMarkdown(text string, entities []tg.MessageEntityClass) string {
	if len(entities) == 0 {
		return text
	}

	spans := make([]span, 0, len(entities))
	for _, e := range entities {
		if sp, ok := entitySpan(text, e); ok {
			spans = append(spans, sp)
		}
	}
	if len(spans) == 0 {
		return text
	}

	// Longer spans first at equal offsets, so nesting closes inside out.
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].offset != spans[j].offset {
			return spans[i].offset < spans[j].offset
		}
		return spans[i].length > spans[j].length
	})

	units := utf16.Encode([]rune(text))

	type insertion struct {
		pos     int
		text    string
		opening bool
		index   int
	}
	var inserts []insertion
	for i, sp := range spans {
		end := sp.offset + sp.length
		if end > len(units) {
			end = len(units)
		}
		inserts = append(inserts,
			insertion{pos: sp.offset, text: sp.open, opening: true, index: i},
			insertion{pos: end, text: sp.close, index: i})
	}

	// At equal positions: closings precede openings, and closings unwind
	// in reverse span order.
	sort.SliceStable(inserts, func(i, j int) bool {
		if inserts[i].pos != inserts[j].pos {
			return inserts[i].pos < inserts[j].pos
		}
		if inserts[i].opening != inserts[j].opening {
			return !inserts[i].opening
		}
		if !inserts[i].opening {
			return inserts[i].index > inserts[j].index
		}
		return inserts[i].index < inserts[j].index
	})

	var b strings.Builder
	next := 0
	for i := 0; i <= len(units); i++ {
		for next < len(inserts) && inserts[next].pos == i {
			b.WriteString(inserts[next].text)
			next++
		}
		if i >= len(units) {
			break
		}
		if utf16.IsSurrogate(rune(units[i])) && i+1 < len(units) {
			b.WriteRune(utf16.DecodeRune(rune(units[i]), rune(units[i+1])))
			i++
		} else {
			b.WriteRune(rune(units[i]))
		}
	}

	return b.String()
}

// entitySpan maps one Telegram entity onto its markdown wrapper.
func entitySpan(text string, entity tg.MessageEntityClass) (span, bool) {
	offset := entity.GetOffset()
	length := entity.GetLength()

	switch e := entity.(type) {
	case *tg.MessageEntityBold:
		return span{offset, length, "**", "**"}, true
	case *tg.MessageEntityItalic:
		return span{offset, length, "*", "*"}, true
	case *tg.MessageEntityCode:
		return span{offset, length, "`", "`"}, true
	case *tg.MessageEntityPre:
		return span{offset, length, "```" + e.Language + "\n", "\n```"}, true
	case *tg.MessageEntityStrike:
		return span{offset, length, "~~", "~~"}, true
	case *tg.MessageEntityUnderline:
		// Markdown has no underline; fall back to emphasis.
		return span{offset, length, "*", "*"}, true
	case *tg.MessageEntityTextURL:
		return span{offset, length, "[", "](" + e.URL + ")"}, true
	case *tg.MessageEntityURL:
		urlText := utf16Substring(text, offset, length)
		return span{offset, length, "[", "](" + urlText + ")"}, true
	case *tg.MessageEntityEmail:
		emailText := utf16Substring(text, offset, length)
		return span{offset, length, "[", "](mailto:" + emailText + ")"}, true
	case *tg.MessageEntityBlockquote:
		return span{offset, length, "> ", ""}, true
	case *tg.MessageEntityMention, *tg.MessageEntityMentionName, *tg.MessageEntityHashtag:
		return span{offset, length, "**", "**"}, true
	case *tg.MessageEntityBotCommand:
		return span{offset, length, "`", "`"}, true
	default:
		// Unknown entity kinds pass through as plain text.
		return span{}, false
	}
}

// utf16Substring slices text by UTF-16 offset and length.
func utf16Substring(text string, offset, length int) string {
	units := utf16.Encode([]rune(text))

	end := offset + length
	if end > len(units) {
		end = len(units)
	}
	if offset >= len(units) {
		return ""
	}
	return string(utf16.Decode(units[offset:end]))
}
