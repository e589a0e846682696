package llm

import (
	"regexp"
	"unicode/utf8"

	"go.uber.org/zap"
)

// mojibakePatterns are original_source/src/core_utils.py's detect_mojibake
// regex signatures for UTF-8-as-Latin-1 and UTF-8-as-Windows-1252 double
// encoding, carried over byte-for-byte (SPEC_FULL.md §3).
var mojibakePatterns = []*regexp.Regexp{
	regexp.MustCompile(`Ã[¡¢£¤¥¦§¨©ª«¬\x{00ad}®¯°±²³´µ¶·¸¹º»¼½¾¿]`),
	regexp.MustCompile(`Â[\x{0080}-\x{00BF}]`),
	regexp.MustCompile(`â€[™œ"]`),
	regexp.MustCompile(`â€¦`),
	regexp.MustCompile(`â€"`),
	regexp.MustCompile(`Ã¢â‚¬`),
	regexp.MustCompile(`Ã‚Â`),
	regexp.MustCompile(`Ã¢â€`),
	regexp.MustCompile(`Ã¯Â»Â¿`),
	regexp.MustCompile(`â€¹`),
	regexp.MustCompile(`â€º`),
	regexp.MustCompile(`Ã¢â‚¬Â`),
	regexp.MustCompile(`ÃƒÂ`),
	regexp.MustCompile(`Ã¢â‚¬â„¢`),
	regexp.MustCompile(`Ã¢â‚¬Å"`),
	regexp.MustCompile("Ã¢â‚¬\u009d"),
	regexp.MustCompile(`Ã‚Â§`),
	regexp.MustCompile(`Ã‚Â©`),
	regexp.MustCompile(`Ã‚Â®`),
}

const mojibakeThreshold = 0.15

// mojibakeScore counts pattern hits and returns (count, mojibakeRatio,
// nonASCIIRatio), mirroring detect_mojibake's three signals.
func mojibakeScore(text string) (count int, mojibakeRatio, nonASCIIRatio float64) {
	if len(text) < 10 {
		return 0, 0, 0
	}
	for _, p := range mojibakePatterns {
		count += len(p.FindAllString(text, -1))
	}
	totalChars := utf8.RuneCountInString(text)
	if totalChars == 0 {
		return count, 0, 0
	}
	nonASCII := 0
	for _, r := range text {
		if r > 127 {
			nonASCII++
		}
	}
	return count, float64(count) / float64(totalChars), float64(nonASCII) / float64(totalChars)
}

// DetectMojibake reports whether text likely contains mojibake, per
// original_source's detect_mojibake: mojibake ratio above threshold, OR a
// high non-ASCII ratio accompanied by more than 5 pattern hits.
func DetectMojibake(text string) bool {
	count, mojibakeRatio, nonASCIIRatio := mojibakeScore(text)
	return mojibakeRatio > mojibakeThreshold || (nonASCIIRatio > 0.3 && count > 5)
}

// TryFixMojibake attempts the two-step repair original_source's
// try_fix_mojibake performs: a UTF-8-as-Latin-1 round trip, then a
// UTF-8-as-Windows-1252 round trip, keeping a repair only if it strictly
// reduces the mojibake pattern count relative to the input. Failures to
// round-trip (a rune outside the target charset) skip that attempt.
func TryFixMojibake(text string, logger *zap.Logger) string {
	if text == "" {
		return text
	}
	originalCount, _, _ := mojibakeScore(text)

	if fixed, ok := reencodeLatin1AsUTF8(text); ok {
		fixedCount, _, _ := mojibakeScore(fixed)
		if fixedCount < originalCount {
			if logger != nil {
				logger.Info("fixed mojibake via latin-1 round trip")
			}
			return fixed
		}
	}

	if fixed, ok := reencodeWindows1252AsUTF8(text); ok {
		fixedCount, _, _ := mojibakeScore(fixed)
		if fixedCount < originalCount {
			if logger != nil {
				logger.Info("fixed mojibake via windows-1252 round trip")
			}
			return fixed
		}
	}

	if logger != nil && originalCount > 0 {
		logger.Warn("mojibake detected but repair did not improve text", zap.Int("pattern_hits", originalCount))
	}
	return text
}

// reencodeLatin1AsUTF8 treats each rune of text as a Latin-1 code point
// (valid only for runes <= 0xFF, which is what "UTF-8 interpreted as
// Latin-1" actually produces), re-encodes those byte values, and decodes
// the result as UTF-8.
func reencodeLatin1AsUTF8(text string) (string, bool) {
	bytes := make([]byte, 0, len(text))
	for _, r := range text {
		if r > 0xFF {
			return "", false
		}
		bytes = append(bytes, byte(r))
	}
	if !utf8.Valid(bytes) {
		return "", false
	}
	return string(bytes), true
}

// windows1252HighRange maps the Windows-1252 code points in 0x80-0x9F that
// diverge from Latin-1 (C1 control range) back to their byte values, so
// reencodeWindows1252AsUTF8 can round-trip text a Windows-1252-unaware
// decoder would have mangled.
var windows1252HighRange = map[rune]byte{
	'€': 0x80, '‚': 0x82, 'ƒ': 0x83, '„': 0x84, '…': 0x85, '†': 0x86, '‡': 0x87,
	'ˆ': 0x88, '‰': 0x89, 'Š': 0x8A, '‹': 0x8B, 'Œ': 0x8C, 'Ž': 0x8E,
	'‘': 0x91, '’': 0x92, '“': 0x93, '”': 0x94, '•': 0x95, '–': 0x96, '—': 0x97,
	'˜': 0x98, '™': 0x99, 'š': 0x9A, '›': 0x9B, 'œ': 0x9C, 'ž': 0x9E, 'Ÿ': 0x9F,
}

func reencodeWindows1252AsUTF8(text string) (string, bool) {
	bytes := make([]byte, 0, len(text))
	for _, r := range text {
		if b, ok := windows1252HighRange[r]; ok {
			bytes = append(bytes, b)
			continue
		}
		if r > 0xFF {
			return "", false
		}
		bytes = append(bytes, byte(r))
	}
	if !utf8.Valid(bytes) {
		return "", false
	}
	return string(bytes), true
}

// RepairMojibake is the Provider Adapter's post-generation hook (spec.md
// §4.5): scan output, attempt repair only when the heuristic fires.
func RepairMojibake(text string, logger *zap.Logger) string {
	if !DetectMojibake(text) {
		return text
	}
	return TryFixMojibake(text, logger)
}
