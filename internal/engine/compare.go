package engine

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/settlerhq/settler-edge/pkg/types"
)

// Field priority lists for value extraction. Extraction walks the list and
// the first present, non-null, non-empty field decides the outcome; an
// unparseable value degrades to a nil extraction, never an error.
var (
	amountFields = []string{"amount", "total", "value"}
	dateFields   = []string{"date", "timestamp", "created_at"}
	idFields     = []string{"id", "transaction_id", "order_id"}
)

var (
	// amountCleaner strips currency symbols, grouping separators and
	// other noise before numeric parsing.
	amountCleaner = regexp.MustCompile(`[^0-9.-]`)

	// numericPrefix extracts the leading decimal number from a cleaned
	// amount string, mirroring lenient float parsing.
	numericPrefix = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)`)
)

// Date string layouts accepted by ExtractDate, tried in order.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
}

// ExtractAmount extracts a numeric amount from the record's amount, total
// or value field, in that priority. String values are cleaned of
// non-numeric characters and parsed leniently. ok is false when no field
// yields a number.
func ExtractAmount(rec *types.Record) (amount float64, ok bool) {
	for _, field := range amountFields {
		v, present := rec.Get(field)
		if !present || v.IsNull() {
			continue
		}
		if f, isNum := v.AsNumber(); isNum {
			return f, true
		}
		if s, isStr := v.AsString(); isStr {
			if s == "" {
				continue
			}
			cleaned := amountCleaner.ReplaceAllString(s, "")
			prefix := numericPrefix.FindString(cleaned)
			if prefix == "" {
				return 0, false
			}
			f, err := strconv.ParseFloat(prefix, 64)
			if err != nil {
				return 0, false
			}
			return f, true
		}
		// Booleans, dates and nested values never carry an amount.
		return 0, false
	}
	return 0, false
}

// ExtractDate extracts a timestamp from the record's date, timestamp or
// created_at field, in that priority. It accepts a date value, a parseable
// date string, or an epoch-millisecond number. ok is false when no field
// yields a timestamp.
func ExtractDate(rec *types.Record) (t time.Time, ok bool) {
	for _, field := range dateFields {
		v, present := rec.Get(field)
		if !present || v.IsNull() {
			continue
		}
		if d, isDate := v.AsTime(); isDate {
			return d, true
		}
		if s, isStr := v.AsString(); isStr {
			if s == "" {
				continue
			}
			for _, layout := range dateLayouts {
				if parsed, err := time.Parse(layout, s); err == nil {
					return parsed, true
				}
			}
			return time.Time{}, false
		}
		if ms, isNum := v.AsNumber(); isNum {
			return time.UnixMilli(int64(ms)), true
		}
		return time.Time{}, false
	}
	return time.Time{}, false
}

// ExtractID returns the record's identifier: the first non-empty of id,
// transaction_id, order_id, rendered as text, else the empty string.
func ExtractID(rec *types.Record) string {
	for _, field := range idFields {
		if v, ok := rec.Get(field); ok {
			if text := v.Text(); text != "" {
				return text
			}
		}
	}
	return ""
}

// CompareAmount scores the similarity of two extracted amounts. Equal
// amounts score 1.0 (including both exactly zero); the score decays
// linearly with the relative difference and floors at 0.
func CompareAmount(a, b float64) float64 {
	diff := math.Abs(a - b)
	maxAmount := math.Max(math.Abs(a), math.Abs(b))
	if maxAmount == 0 {
		if a == b {
			return 1
		}
		return 0
	}
	return math.Max(0, 1-diff/maxAmount)
}

// CompareDate scores the proximity of two timestamps. The same instant
// scores 1.0; the score decays linearly per day of difference and reaches
// 0 at seven days.
func CompareDate(a, b time.Time) float64 {
	diffDays := math.Abs(a.Sub(b).Hours()) / 24
	return math.Max(0, 1-diffDays/7)
}

// CompareStrings scores the case-insensitive similarity of two strings.
// Either side empty scores 0; exact match 1.0; substring containment in
// either direction 0.8; otherwise 1 minus the normalized edit distance.
func CompareStrings(a, b string) float64 {
	a = strings.ToLower(a)
	b = strings.ToLower(b)

	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 0.8
	}

	longer := len([]rune(a))
	if l := len([]rune(b)); l > longer {
		longer = l
	}
	return 1 - float64(Levenshtein(a, b))/float64(longer)
}

// compareField scores the named field of two records via CompareStrings.
// Absent or null fields compare as empty strings.
func compareField(source, target *types.Record, field string) float64 {
	var a, b string
	if v, ok := source.Get(field); ok {
		a = v.Text()
	}
	if v, ok := target.Get(field); ok {
		b = v.Text()
	}
	return CompareStrings(a, b)
}

// Levenshtein returns the edit distance between two strings, computed over
// runes with a full dynamic-programming matrix.
func Levenshtein(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)

	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(ra)+1)
	curr := make([]int, len(ra)+1)
	for j := 0; j <= len(ra); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(rb); i++ {
		curr[0] = i
		for j := 1; j <= len(ra); j++ {
			if rb[i-1] == ra[j-1] {
				curr[j] = prev[j-1]
			} else {
				curr[j] = minInt(prev[j-1]+1, minInt(curr[j-1]+1, prev[j]+1))
			}
		}
		prev, curr = curr, prev
	}
	return prev[len(ra)]
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
