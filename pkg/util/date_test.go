package util

import (
	"strconv"
	"testing"
	"time"
)

func TestParseTimeRFC3339(t *testing.T) {
	s := "2024-10-10T10:10:10Z"
	got, ok := ParseTime(s)
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.UTC().Format(time.RFC3339) != s {
		t.Fatalf("unexpected time %v", got)
	}
}

func TestParseTimeUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, ok := ParseTime(strconv.FormatInt(ts, 10))
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.Unix() != ts {
		t.Fatalf("unexpected unix %v", got.Unix())
	}
}

func TestParseTimeUnixMillis(t *testing.T) {
	ms := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).UnixMilli()
	got, ok := ParseTime(strconv.FormatInt(ms, 10))
	if !ok {
		t.Fatalf("expected ok")
	}
	if got.UnixMilli() != ms {
		t.Fatalf("unexpected millis %v", got.UnixMilli())
	}
}

func TestParseTimeDefault(t *testing.T) {
	def := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	got := ParseTimeDefault("", def)
	if !got.Equal(def) {
		t.Fatalf("expected default")
	}
}

func TestTimeOfDayReached(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)
	tod, err := ParseTimeOfDay("11:30")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	before := time.Date(2024, 3, 4, 11, 29, 59, 0, loc)
	at := time.Date(2024, 3, 4, 11, 30, 0, 0, loc)
	if tod.Reached(before, loc) {
		t.Fatalf("11:29:59 should not reach 11:30")
	}
	if !tod.Reached(at, loc) {
		t.Fatalf("11:30 should reach 11:30")
	}
	// 16:30 UTC is 11:30 EST
	if !tod.Reached(time.Date(2024, 3, 4, 16, 30, 0, 0, time.UTC), loc) {
		t.Fatalf("expected reached across zones")
	}
}

func TestParseTimeOfDayInvalid(t *testing.T) {
	if _, err := ParseTimeOfDay("25:99"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSessionKeyAndEnd(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)
	// 03:00 UTC on the 5th is still the 4th in EST
	ts := time.Date(2024, 3, 5, 3, 0, 0, 0, time.UTC)
	if got := SessionKey(ts, loc); got != "2024-03-04" {
		t.Fatalf("unexpected session %s", got)
	}
	end := SessionEnd(ts, loc)
	want := time.Date(2024, 3, 5, 0, 0, 0, 0, loc)
	if !end.Equal(want) {
		t.Fatalf("unexpected session end %v", end)
	}
}
