package helpers

import (
	"fmt"
	"strings"
	"time"

	mailtpl "github.com/oksasatya/go-ddd-task-sync/pkg/mailer/templates"
)

// LocalizeDeadline rewrites DeadlineText in the named IANA zone. Unknown
// zones and missing deadlines leave data untouched.
func LocalizeDeadline(tz string, data map[string]any) {
	tz = strings.TrimSpace(tz)
	if tz == "" || data == nil {
		return
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return
	}
	v, ok := data["DeadlineAt"]
	if !ok {
		return
	}
	if t, ok := parseTimeAny(v); ok && !t.IsZero() {
		data["DeadlineText"] = t.In(loc).Format(mailtpl.DeadlineLayout)
	}
}

func parseTimeAny(v any) (time.Time, bool) {
	if t, ok := v.(time.Time); ok {
		return t, true
	}
	s := fmt.Sprintf("%v", v)
	layouts := []string{
		time.RFC3339Nano,
		"2006-01-02 15:04:05 -0700 MST",
		"2006-01-02 15:04:05 -0700",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
