package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvert_UnknownNameFails(t *testing.T) {
	_, err := Convert("not_a_real_converter", "hello")
	assert.Error(t, err)
}

func TestConvert_ChineseToPinyin_CuratedPlaceName(t *testing.T) {
	out, err := Convert("chinese_to_pinyin", "北京")
	require.NoError(t, err)
	assert.Equal(t, "Beijing", out)
}

func TestConvert_ChineseToPinyin_CuratedPlaceNameWithSuffix(t *testing.T) {
	out, err := Convert("chinese_to_pinyin", "广东省")
	require.NoError(t, err)
	assert.Equal(t, "Guangdong Province", out)
}

func TestConvert_ChineseToPinyin_PassesThroughASCII(t *testing.T) {
	out, err := Convert("chinese_to_pinyin", "hello world")
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)
}

func TestConvert_ChineseToPinyin_GeneralTransliterationFallsBackToPinyin(t *testing.T) {
	out, err := Convert("chinese_to_pinyin", "你好")
	require.NoError(t, err)
	assert.NotEmpty(t, out)
	assert.False(t, ContainsCJK(out))
}

func TestConvert_ChineseToPinyin_MixedText(t *testing.T) {
	out, err := Convert("chinese_to_pinyin", "I love 北京")
	require.NoError(t, err)
	assert.Contains(t, out, "Beijing")
	assert.False(t, ContainsCJK(out))
}
