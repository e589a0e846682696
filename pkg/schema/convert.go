package schema

import (
	"fmt"
	"strings"

	"github.com/mozillazg/go-pinyin"
)

// placeNames is a small curated table of Chinese province names and common
// administrative suffixes, consulted before falling back to go-pinyin's
// general transliteration. original_source/src/plugins/_chinese_converter.py
// keeps an equivalent table because general syllable-by-syllable
// transliteration renders proper nouns ambiguously (e.g. splitting "西安"
// into "Xi An" loses the fact that it names a single city).
var placeNames = map[string]string{
	"北京": "Beijing",
	"上海": "Shanghai",
	"天津": "Tianjin",
	"重庆": "Chongqing",
	"广东": "Guangdong",
	"浙江": "Zhejiang",
	"江苏": "Jiangsu",
	"四川": "Sichuan",
	"福建": "Fujian",
	"台湾": "Taiwan",
	"香港": "Hong Kong",
	"西安": "Xi'an",
	"省":  "Province",
	"市":  "City",
	"区":  "District",
	"县":  "County",
	"自治区": "Autonomous Region",
}

// Convert applies a registered post-validation transform to s. The only
// transform spec.md §4.1 names is "chinese_to_pinyin"; future converters
// register here. An unknown name is a conversion failure, which spec.md
// §4.1 marks non-recoverable.
func Convert(name, s string) (string, error) {
	switch name {
	case "chinese_to_pinyin":
		return chineseToPinyin(s), nil
	default:
		return "", fmt.Errorf("unknown converter %q", name)
	}
}

// chineseToPinyin romanizes s: curated proper nouns first, then general
// go-pinyin transliteration for the rest. Non-Han runes (including the
// replacements already substituted above) pass through unchanged via the
// Fallback hook, so mixed Chinese/English text round-trips sensibly.
func chineseToPinyin(s string) string {
	for cn, romanized := range placeNames {
		s = strings.ReplaceAll(s, cn, " "+romanized+" ")
	}
	if !ContainsCJK(s) {
		return strings.Join(strings.Fields(s), " ")
	}

	args := pinyin.NewArgs()
	args.Style = pinyin.Normal
	args.Fallback = func(r rune, _ pinyin.Args) []string {
		return []string{string(r)}
	}
	readings := pinyin.LazyPinyin(s, args)
	return strings.Join(strings.Fields(strings.Join(readings, " ")), " ")
}
