package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Field aliases observed in stored records. The first present alias wins.
var (
	idFields         = []string{"id", "serNo", "ser_no", "serialNo", "serial_no", "_id"}
	fatherFields     = []string{"fatherId", "father_id", "fatherSerNo", "father_ser_no", "father"}
	motherFields     = []string{"motherId", "mother_id", "motherSerNo", "mother_ser_no", "mother"}
	spouseFields     = []string{"spouseId", "spouse_id", "spouseSerNo", "spouse_ser_no", "spouse"}
	childrenFields   = []string{"childrenIds", "children_ids", "childIds", "child_ids", "children"}
	generationFields = []string{"generation", "gen", "generationNo", "generation_no"}
	genderFields     = []string{"gender", "sex"}
	displayFields    = []string{"name", "displayName", "display_name", "fullName", "full_name"}
	givenFields      = []string{"givenName", "given_name", "firstName", "first_name"}
	familyFields     = []string{"familyName", "family_name", "lastName", "last_name", "surname"}
	birthFields      = []string{"birthDate", "birth_date", "birthday", "born"}
	deathFields      = []string{"deathDate", "death_date", "died"}
)

var consumedFields = func() map[string]bool {
	m := make(map[string]bool)
	for _, group := range [][]string{
		idFields, fatherFields, motherFields, spouseFields, childrenFields,
		generationFields, genderFields, displayFields, givenFields,
		familyFields, birthFields, deathFields,
	} {
		for _, f := range group {
			m[f] = true
		}
	}
	return m
}()

// NormalizeRecord converts a raw stored record into the canonical Member.
// A record without a usable identifier yields a Member with an empty ID.
func NormalizeRecord(raw map[string]any) Member {
	m := Member{
		ID:          CanonicalID(first(raw, idFields)),
		FatherID:    CanonicalID(first(raw, fatherFields)),
		MotherID:    CanonicalID(first(raw, motherFields)),
		SpouseID:    CanonicalID(first(raw, spouseFields)),
		ChildrenIDs: canonicalIDList(first(raw, childrenFields)),
		Generation:  parseGeneration(first(raw, generationFields)),
		Gender:      ParseGender(stringValue(first(raw, genderFields))),
		Name: Name{
			Display: stringValue(first(raw, displayFields)),
			Given:   stringValue(first(raw, givenFields)),
			Family:  stringValue(first(raw, familyFields)),
		},
		BirthDate: stringValue(first(raw, birthFields)),
		DeathDate: stringValue(first(raw, deathFields)),
	}
	for k, v := range raw {
		if consumedFields[k] || v == nil {
			continue
		}
		s := stringValue(v)
		if s == "" {
			continue
		}
		if m.Attributes == nil {
			m.Attributes = make(map[string]string)
		}
		m.Attributes[k] = s
	}
	return m
}

// NormalizeRecords normalizes a batch, preserving order.
func NormalizeRecords(raws []map[string]any) []Member {
	out := make([]Member, len(raws))
	for i, r := range raws {
		out[i] = NormalizeRecord(r)
	}
	return out
}

// CanonicalID renders an identifier value as a canonical string. Integers and
// integral numeric strings lose leading zeros; other strings are trimmed.
func CanonicalID(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return canonicalIDString(t)
	case json.Number:
		return canonicalIDString(t.String())
	case map[string]any:
		return CanonicalID(first(t, idFields))
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case uint:
		return strconv.FormatUint(uint64(t), 10)
	case uint32:
		return strconv.FormatUint(uint64(t), 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case float32:
		return canonicalFloat(float64(t))
	case float64:
		return canonicalFloat(t)
	default:
		return canonicalIDString(fmt.Sprint(t))
	}
}

func canonicalIDString(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || s == "null" || s == "undefined" {
		return ""
	}
	// Integer text is canonicalized as text so ids beyond int64 stay distinct.
	if digits, neg, ok := integerText(s); ok {
		digits = strings.TrimLeft(digits, "0")
		if digits == "" {
			return "0"
		}
		if neg {
			return "-" + digits
		}
		return digits
	}
	if strings.ContainsAny(s, ".eE") {
		f, err := strconv.ParseFloat(s, 64)
		if err == nil && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return canonicalFloat(f)
		}
	}
	return s
}

// integerText splits an optionally signed run of ASCII digits.
func integerText(s string) (digits string, neg, ok bool) {
	switch s[0] {
	case '-':
		neg, s = true, s[1:]
	case '+':
		s = s[1:]
	}
	if s == "" {
		return "", false, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return "", false, false
		}
	}
	return s, neg, true
}

func canonicalFloat(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ""
	}
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func canonicalIDList(v any) []string {
	var items []any
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		items = t
	case []string:
		for _, s := range t {
			items = append(items, s)
		}
	case string:
		for _, s := range strings.Split(t, ",") {
			items = append(items, s)
		}
	default:
		items = []any{t}
	}
	var out []string
	for _, it := range items {
		if id := CanonicalID(it); id != "" {
			out = append(out, id)
		}
	}
	return out
}

func parseGeneration(v any) *int {
	switch t := v.(type) {
	case nil:
		return nil
	case int:
		return Gen(t)
	case int64:
		return Gen(int(t))
	case float64:
		if t != math.Trunc(t) {
			return nil
		}
		return Gen(int(t))
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return Gen(int(n))
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return Gen(n)
		}
	}
	return nil
}

// ParseGender maps the spellings found in records to a Gender.
func ParseGender(s string) Gender {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "male", "m", "man", "boy", "男":
		return GenderMale
	case "female", "f", "woman", "girl", "女":
		return GenderFemale
	}
	return GenderUnknown
}

func first(raw map[string]any, keys []string) any {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
				continue
			}
			return v
		}
	}
	return nil
}

func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return canonicalFloat(t)
	case bool, int, int64, json.Number:
		return fmt.Sprint(t)
	}
	return ""
}
