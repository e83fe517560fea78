package matcher

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

const commentPrefix = "__comment__"

// SynonymEntry lists the words users say for one canonical button label.
type SynonymEntry struct {
	Key      string   `json:"-"`
	Synonyms []string `json:"synonyms"`
	Tags     []string `json:"tags"`
}

// Dictionary is an immutable synonym table keyed by normalized label. A nil
// *Dictionary behaves like an empty one.
type Dictionary struct {
	entries map[string]SynonymEntry
	skipped []string
}

// NewDictionary builds a dictionary; later entries replace earlier ones with
// the same key.
func NewDictionary(entries ...SynonymEntry) *Dictionary {
	d := &Dictionary{entries: make(map[string]SynonymEntry, len(entries))}
	for _, e := range entries {
		d.add(e)
	}
	return d
}

func (d *Dictionary) add(e SynonymEntry) {
	key := normalize(e.Key)
	if key == "" {
		return
	}
	clean := SynonymEntry{Key: key}
	for _, s := range e.Synonyms {
		if s = normalize(s); s != "" {
			clean.Synonyms = append(clean.Synonyms, s)
		}
	}
	seen := make(map[string]bool, len(e.Tags))
	for _, tag := range e.Tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag != "" && !seen[tag] {
			seen[tag] = true
			clean.Tags = append(clean.Tags, tag)
		}
	}
	d.entries[key] = clean
}

// ParseDictionary reads the {"label": {"synonyms": [...], "tags": [...]}}
// format. Keys starting with "__comment__" are ignored and malformed entries
// are skipped; only an unreadable document is an error.
func ParseDictionary(data []byte) (*Dictionary, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return NewDictionary(), fmt.Errorf("failed to parse synonym dictionary: %w", err)
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	d := NewDictionary()
	for _, key := range keys {
		if strings.HasPrefix(key, commentPrefix) {
			continue
		}
		var e SynonymEntry
		if err := json.Unmarshal(raw[key], &e); err != nil {
			d.skipped = append(d.skipped, key)
			continue
		}
		e.Key = key
		d.add(e)
	}
	return d, nil
}

// LoadDictionary reads a dictionary file. On failure it returns an empty
// dictionary together with the error so callers can continue degraded.
func LoadDictionary(path string) (*Dictionary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return NewDictionary(), fmt.Errorf("failed to read synonym dictionary: %w", err)
	}
	return ParseDictionary(data)
}

// BuiltinDictionary holds the role synonyms every deployment starts with.
func BuiltinDictionary() *Dictionary {
	return NewDictionary(
		SynonymEntry{Key: "next", Synonyms: []string{"다음", "다음으로", "넘어가", "계속", "next", "continue"}},
		SynonymEntry{Key: "confirm", Synonyms: []string{"확인", "선택", "완료", "ok", "확정"}},
		SynonymEntry{Key: "cancel", Synonyms: []string{"취소", "그만", "cancel", "종료"}},
		SynonymEntry{Key: "pay", Synonyms: []string{"결제", "지불", "계산", "카드 결제", "checkout"}},
		SynonymEntry{Key: "back", Synonyms: []string{"뒤로", "이전", "back", "돌아가기"}},
		SynonymEntry{Key: "home", Synonyms: []string{"처음", "홈", "메인", "home"}},
		SynonymEntry{Key: "language", Synonyms: []string{"언어", "한국어", "english", "language"}},
	)
}

// Merge returns a new dictionary with the entries of both; other wins on
// conflicting keys.
func (d *Dictionary) Merge(other *Dictionary) *Dictionary {
	out := NewDictionary()
	for _, src := range []*Dictionary{d, other} {
		if src == nil {
			continue
		}
		for k, e := range src.entries {
			out.entries[k] = e
		}
		out.skipped = append(out.skipped, src.skipped...)
	}
	return out
}

// Lookup finds the entry for a label.
func (d *Dictionary) Lookup(label string) (SynonymEntry, bool) {
	if d == nil {
		return SynonymEntry{}, false
	}
	e, ok := d.entries[normalize(label)]
	return e, ok
}

// Synonyms returns the synonyms of a label, or nil.
func (d *Dictionary) Synonyms(label string) []string {
	e, _ := d.Lookup(label)
	return e.Synonyms
}

// HasTag reports whether the label's entry carries tag.
func (d *Dictionary) HasTag(label, tag string) bool {
	e, ok := d.Lookup(label)
	if !ok {
		return false
	}
	tag = strings.ToLower(tag)
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

func (d *Dictionary) Len() int {
	if d == nil {
		return 0
	}
	return len(d.entries)
}

// Skipped lists the keys that were dropped while parsing.
func (d *Dictionary) Skipped() []string {
	if d == nil {
		return nil
	}
	return d.skipped
}
