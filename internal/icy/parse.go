package icy

import (
	"strings"
)

const TitleKey = "StreamTitle"

// Parse decodes an ICY metadata block of the form
//
//	StreamTitle='Artist - Song';StreamUrl='';
//
// Values may contain quotes and semicolons; a value ends at the first "';"
// (or the closing quote at the end of the block). Padding NULs are ignored.
// It returns nil when no pair can be read.
func Parse(raw []byte) map[string]string {
	text := strings.TrimRight(string(raw), "\x00")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	fields := make(map[string]string)
	for len(text) > 0 {
		eq := strings.Index(text, "='")
		if eq <= 0 {
			break
		}
		key := strings.TrimSpace(strings.TrimLeft(text[:eq], ";"))
		rest := text[eq+2:]

		var value string
		if end := strings.Index(rest, "';"); end >= 0 {
			value = rest[:end]
			text = rest[end+2:]
		} else if strings.HasSuffix(rest, "'") {
			value = rest[:len(rest)-1]
			text = ""
		} else {
			break
		}

		if key != "" {
			fields[key] = value
		}
	}

	if len(fields) == 0 {
		return nil
	}
	return fields
}

// Title extracts the stream title from a metadata block.
func Title(raw []byte) (string, bool) {
	fields := Parse(raw)
	if fields == nil {
		return "", false
	}
	title, ok := fields[TitleKey]
	if !ok {
		return "", false
	}
	return strings.TrimSpace(title), true
}
