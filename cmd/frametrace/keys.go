package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// KeyCode is a Linux input key code (see <linux/input-event-codes.h>).
type KeyCode uint16

// Linux key codes used by frametrace.
const (
	KEY_ESC        KeyCode = 1
	KEY_1          KeyCode = 2
	KEY_2          KeyCode = 3
	KEY_3          KeyCode = 4
	KEY_4          KeyCode = 5
	KEY_5          KeyCode = 6
	KEY_6          KeyCode = 7
	KEY_7          KeyCode = 8
	KEY_8          KeyCode = 9
	KEY_9          KeyCode = 10
	KEY_0          KeyCode = 11
	KEY_MINUS      KeyCode = 12
	KEY_EQUAL      KeyCode = 13
	KEY_BACKSPACE  KeyCode = 14
	KEY_Q          KeyCode = 16
	KEY_W          KeyCode = 17
	KEY_E          KeyCode = 18
	KEY_R          KeyCode = 19
	KEY_T          KeyCode = 20
	KEY_Y          KeyCode = 21
	KEY_U          KeyCode = 22
	KEY_I          KeyCode = 23
	KEY_O          KeyCode = 24
	KEY_P          KeyCode = 25
	KEY_LEFTBRACE  KeyCode = 26
	KEY_RIGHTBRACE KeyCode = 27
	KEY_A          KeyCode = 30
	KEY_S          KeyCode = 31
	KEY_D          KeyCode = 32
	KEY_F          KeyCode = 33
	KEY_G          KeyCode = 34
	KEY_H          KeyCode = 35
	KEY_J          KeyCode = 36
	KEY_K          KeyCode = 37
	KEY_L          KeyCode = 38
	KEY_SEMICOLON  KeyCode = 39
	KEY_APOSTROPHE KeyCode = 40
	KEY_GRAVE      KeyCode = 41
	KEY_BACKSLASH  KeyCode = 43
	KEY_Z          KeyCode = 44
	KEY_X          KeyCode = 45
	KEY_C          KeyCode = 46
	KEY_V          KeyCode = 47
	KEY_B          KeyCode = 48
	KEY_N          KeyCode = 49
	KEY_M          KeyCode = 50
	KEY_COMMA      KeyCode = 51
	KEY_DOT        KeyCode = 52
	KEY_SLASH      KeyCode = 53
	KEY_KPASTERISK KeyCode = 55
	KEY_SPACE      KeyCode = 57
	KEY_KP7        KeyCode = 71
	KEY_KP8        KeyCode = 72
	KEY_KP9        KeyCode = 73
	KEY_KPMINUS    KeyCode = 74
	KEY_KP4        KeyCode = 75
	KEY_KP5        KeyCode = 76
	KEY_KP6        KeyCode = 77
	KEY_KPPLUS     KeyCode = 78
	KEY_KP1        KeyCode = 79
	KEY_KP2        KeyCode = 80
	KEY_KP3        KeyCode = 81
	KEY_KP0        KeyCode = 82
	KEY_KPSLASH    KeyCode = 98
	KEY_UP         KeyCode = 103
	KEY_LEFT       KeyCode = 105
	KEY_RIGHT      KeyCode = 106
	KEY_DOWN       KeyCode = 108

	// KEY_MAX from <linux/input-event-codes.h>.
	KEY_MAX KeyCode = 0x2ff
)

// keyBitmapLen is the byte length of the kernel's key state bitmap (EVIOCGKEY).
const keyBitmapLen = int(KEY_MAX)/8 + 1

// KeySet is the set of currently active keys, laid out exactly like the
// bitmap returned by EVIOCGKEY so the evdev source can fill it in place.
// The zero value is the empty set.
type KeySet [keyBitmapLen]byte

// Has reports whether k is in the set.
func (s *KeySet) Has(k KeyCode) bool {
	if k > KEY_MAX {
		return false
	}
	return s[k/8]&(1<<(k%8)) != 0
}

// Add inserts k. Codes above KEY_MAX are ignored.
func (s *KeySet) Add(k KeyCode) {
	if k > KEY_MAX {
		return
	}
	s[k/8] |= 1 << (k % 8)
}

// Remove deletes k.
func (s *KeySet) Remove(k KeyCode) {
	if k > KEY_MAX {
		return
	}
	s[k/8] &^= 1 << (k % 8)
}

// Union adds every key of other to s.
func (s *KeySet) Union(other *KeySet) {
	for i := range s {
		s[i] |= other[i]
	}
}

// Empty reports whether no key is active.
func (s *KeySet) Empty() bool {
	for _, b := range s {
		if b != 0 {
			return false
		}
	}
	return true
}

// Keys returns the active keys in ascending code order.
func (s *KeySet) Keys() []KeyCode {
	var out []KeyCode
	for i, b := range s {
		if b == 0 {
			continue
		}
		for bit := 0; bit < 8; bit++ {
			if b&(1<<bit) != 0 {
				out = append(out, KeyCode(i*8+bit))
			}
		}
	}
	return out
}

// NewKeySet builds a set from the given codes.
func NewKeySet(keys ...KeyCode) KeySet {
	var s KeySet
	for _, k := range keys {
		s.Add(k)
	}
	return s
}

// KeySource is the key-state query capability. Active must not block and
// must not fail: a source that cannot read its device reports the empty set.
type KeySource interface {
	Active() KeySet
}

// keyInfo describes a key frametrace can track.
type keyInfo struct {
	Code  KeyCode
	Name  string // canonical name without the KEY_ prefix
	Glyph string // display form; empty means the key is not trackable
}

// keyTable lists every key with a known name. Only keys with a glyph can be
// tracked; the rest are named so they can be reported as unsupported.
var keyTable = []keyInfo{
	{KEY_0, "0", "0"}, {KEY_1, "1", "1"}, {KEY_2, "2", "2"}, {KEY_3, "3", "3"},
	{KEY_4, "4", "4"}, {KEY_5, "5", "5"}, {KEY_6, "6", "6"}, {KEY_7, "7", "7"},
	{KEY_8, "8", "8"}, {KEY_9, "9", "9"},

	{KEY_A, "A", "A"}, {KEY_B, "B", "B"}, {KEY_C, "C", "C"}, {KEY_D, "D", "D"},
	{KEY_E, "E", "E"}, {KEY_F, "F", "F"}, {KEY_G, "G", "G"}, {KEY_H, "H", "H"},
	{KEY_I, "I", "I"}, {KEY_J, "J", "J"}, {KEY_K, "K", "K"}, {KEY_L, "L", "L"},
	{KEY_M, "M", "M"}, {KEY_N, "N", "N"}, {KEY_O, "O", "O"}, {KEY_P, "P", "P"},
	{KEY_Q, "Q", "Q"}, {KEY_R, "R", "R"}, {KEY_S, "S", "S"}, {KEY_T, "T", "T"},
	{KEY_U, "U", "U"}, {KEY_V, "V", "V"}, {KEY_W, "W", "W"}, {KEY_X, "X", "X"},
	{KEY_Y, "Y", "Y"}, {KEY_Z, "Z", "Z"},

	{KEY_UP, "UP", "↑"}, {KEY_DOWN, "DOWN", "↓"},
	{KEY_LEFT, "LEFT", "←"}, {KEY_RIGHT, "RIGHT", "→"},

	{KEY_KP0, "KP0", "0"}, {KEY_KP1, "KP1", "1"}, {KEY_KP2, "KP2", "2"},
	{KEY_KP3, "KP3", "3"}, {KEY_KP4, "KP4", "4"}, {KEY_KP5, "KP5", "5"},
	{KEY_KP6, "KP6", "6"}, {KEY_KP7, "KP7", "7"}, {KEY_KP8, "KP8", "8"},
	{KEY_KP9, "KP9", "9"},
	{KEY_KPMINUS, "KPMINUS", "-"}, {KEY_KPPLUS, "KPPLUS", "+"},
	{KEY_KPSLASH, "KPSLASH", "/"}, {KEY_KPASTERISK, "KPASTERISK", "*"},

	{KEY_GRAVE, "GRAVE", "`"}, {KEY_MINUS, "MINUS", "-"}, {KEY_EQUAL, "EQUAL", "="},
	{KEY_LEFTBRACE, "LEFTBRACE", "["}, {KEY_RIGHTBRACE, "RIGHTBRACE", "]"},
	{KEY_BACKSLASH, "BACKSLASH", "\\"}, {KEY_SEMICOLON, "SEMICOLON", ":"},
	{KEY_APOSTROPHE, "APOSTROPHE", "'"}, {KEY_COMMA, "COMMA", ","},
	{KEY_DOT, "DOT", "."}, {KEY_SLASH, "SLASH", "/"},

	{KEY_ESC, "ESC", ""}, {KEY_SPACE, "SPACE", ""}, {KEY_BACKSPACE, "BACKSPACE", ""},
}

var (
	keysByCode = map[KeyCode]keyInfo{}
	keysByName = map[string]keyInfo{}
)

func init() {
	for _, k := range keyTable {
		keysByCode[k.Code] = k
		keysByName[k.Name] = k
	}
}

// keyName returns a printable name for k, falling back to its numeric code.
func keyName(k KeyCode) string {
	if info, ok := keysByCode[k]; ok {
		return info.Name
	}
	return fmt.Sprintf("KEY_%d", k)
}

// keyGlyph returns the display form of k, or "" if k has none.
func keyGlyph(k KeyCode) string {
	return keysByCode[k].Glyph
}

// parseKeyName resolves "A", "key_a", "KEY_UP" or a raw decimal code with a
// '#' prefix like "#103". Bare digits are key names: "1" is KEY_1.
func parseKeyName(s string) (KeyCode, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	if raw, ok := strings.CutPrefix(name, "#"); ok {
		code, err := strconv.Atoi(raw)
		if err != nil {
			return 0, fmt.Errorf("invalid key code %q", s)
		}
		if code <= 0 || code > int(KEY_MAX) {
			return 0, fmt.Errorf("key code %d out of range", code)
		}
		return KeyCode(code), nil
	}
	name = strings.TrimPrefix(name, "KEY_")
	if name == "" {
		return 0, fmt.Errorf("empty key name")
	}
	if info, ok := keysByName[name]; ok {
		return info.Code, nil
	}
	return 0, fmt.Errorf("unknown key %q", s)
}

// supportedKeyNames lists the names accepted in configuration, sorted.
func supportedKeyNames() []string {
	var names []string
	for _, k := range keyTable {
		if k.Glyph != "" {
			names = append(names, k.Name)
		}
	}
	sort.Strings(names)
	return names
}
