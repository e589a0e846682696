package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestDetectMojibake_ShortTextNeverFlagged(t *testing.T) {
	assert.False(t, DetectMojibake("short"))
}

func TestDetectMojibake_CleanEnglishTextNotFlagged(t *testing.T) {
	text := "This is a perfectly ordinary sentence about nothing in particular at all."
	assert.False(t, DetectMojibake(text))
}

func TestDetectMojibake_SmartQuoteMojibakeFlagged(t *testing.T) {
	text := strings.Repeat("itâ€™s donâ€™t ", 3)
	assert.True(t, DetectMojibake(text))
}

func TestTryFixMojibake_LatinOneRoundTripRepairsText(t *testing.T) {
	original := "I really love café au lait in the morning, especially with a croissant."
	mangled, ok := reencodeUTF8AsLatin1Bytes(original)
	if !ok {
		t.Skip("could not construct a latin-1-mangled fixture")
	}
	fixed := TryFixMojibake(mangled, zap.NewNop())
	assert.Equal(t, original, fixed)
}

func TestTryFixMojibake_CleanTextUnchanged(t *testing.T) {
	text := "nothing wrong here"
	assert.Equal(t, text, TryFixMojibake(text, zap.NewNop()))
}

func TestRepairMojibake_OnlyRunsWhenDetected(t *testing.T) {
	text := "clean ascii text with no issues at all here"
	assert.Equal(t, text, RepairMojibake(text, zap.NewNop()))
}

// reencodeUTF8AsLatin1Bytes simulates the corruption path the fix undoes:
// UTF-8 bytes of original misread one-byte-per-codepoint as Latin-1/Windows-1252.
func reencodeUTF8AsLatin1Bytes(original string) (string, bool) {
	raw := []byte(original)
	runes := make([]rune, len(raw))
	for i, b := range raw {
		runes[i] = rune(b)
	}
	return string(runes), true
}
