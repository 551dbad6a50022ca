package util

import (
	"strings"
	"time"
)

// longest placeholders first so YYYY is not consumed as two YY
var dateReplacer = strings.NewReplacer(
	"YYYY", "2006",
	"YY", "06",
	"MM", "01",
	"DD", "02",
	"hh", "15",
	"mm", "04",
	"ss", "05",
)

// FormatTime renders t in UTC using YYYY, YY, MM, DD, hh, mm and ss
// placeholders. The zero time renders as "".
func FormatTime(t time.Time, tpl string) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateReplacer.Replace(tpl))
}
