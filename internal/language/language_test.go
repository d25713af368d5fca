package language

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetect(t *testing.T) {
	t.Parallel()

	cases := []struct {
		text string
		want Code
	}{
		{"Hello world, this is a test", English},
		{"", English},
		{"1234567890 !?", English},
		{strings.Repeat("А", 15), Russian},
		{"Привет, мир", Russian},
		{"mostly latin with one д letter", Russian},
		{"Ѐ first code point of the block", Russian},
		{"ԯ last code point of the supplement", Russian},
		{"Ա armenian starts right after", English},
		{"Ελληνικά greek is not cyrillic", English},
		{"Україна", Russian},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, Detect(tc.text), tc.text)
	}
}
