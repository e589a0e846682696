package schema

import (
	"fmt"
	"unicode"
)

// cjkRanges are the Unicode blocks the spec (§4.1) names as "CJK ideographs":
// the main Unified Ideographs block, Extension A, Extensions B-F, and the
// Compatibility Ideographs blocks.
var cjkRanges = []*unicode.RangeTable{
	{R16: []unicode.Range16{{Lo: 0x3400, Hi: 0x4DBF, Stride: 1}}},   // Ext A
	{R16: []unicode.Range16{{Lo: 0x4E00, Hi: 0x9FFF, Stride: 1}}},   // Unified Ideographs
	{R16: []unicode.Range16{{Lo: 0xF900, Hi: 0xFAFF, Stride: 1}}},   // Compatibility Ideographs
	{R32: []unicode.Range32{{Lo: 0x20000, Hi: 0x2A6DF, Stride: 1}}}, // Ext B
	{R32: []unicode.Range32{{Lo: 0x2A700, Hi: 0x2B73F, Stride: 1}}}, // Ext C
	{R32: []unicode.Range32{{Lo: 0x2B740, Hi: 0x2B81F, Stride: 1}}}, // Ext D
	{R32: []unicode.Range32{{Lo: 0x2B820, Hi: 0x2CEAF, Stride: 1}}}, // Ext E
	{R32: []unicode.Range32{{Lo: 0x2CEB0, Hi: 0x2EBEF, Stride: 1}}}, // Ext F
	{R32: []unicode.Range32{{Lo: 0x2F800, Hi: 0x2FA1F, Stride: 1}}}, // Compatibility Supplement
}

// IsCJK reports whether r falls in any CJK ideograph block named by spec.md §4.1.
func IsCJK(r rune) bool {
	for _, rt := range cjkRanges {
		if unicode.Is(rt, r) {
			return true
		}
	}
	return false
}

// ContainsCJK reports whether s contains at least one CJK ideograph.
func ContainsCJK(s string) bool {
	for _, r := range s {
		if IsCJK(r) {
			return true
		}
	}
	return false
}

// checkLang validates s against the lang assertion: zh requires >=1 CJK
// ideograph, en requires none. Failures are always recoverable per spec.md
// §4.6 step 4 / §7 — the caller wraps them as engineerrors.LanguageValidationError.
func checkLang(lang Lang, s string) error {
	switch lang {
	case LangZH:
		if !ContainsCJK(s) {
			return fmt.Errorf("expected at least one CJK ideograph, got %q", s)
		}
	case LangEN:
		if ContainsCJK(s) {
			return fmt.Errorf("expected no CJK ideographs, got %q", s)
		}
	}
	return nil
}
