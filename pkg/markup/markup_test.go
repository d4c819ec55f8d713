package markup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTML(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"a<b", "a&lt;b"},
		{"x && y", "x&nbsp;&amp;&amp;&nbsp;y"},
		{"\tret", "&nbsp;&nbsp;&nbsp;&nbsp;ret"},
		{`"q">`, "&quot;q&quot;&gt;"},
		{"bell\a\r", "bell"},
		{"&lt;", "&amp;lt;"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HTML(tt.in), tt.in)
	}
}

func TestText(t *testing.T) {
	assert.Equal(t, "a b &lt;c&gt; &amp;", Text("a b <c> &"))
}

func TestLabel(t *testing.T) {
	assert.Equal(t, `say \"hi\"`, Label(`say "hi"`))
	assert.Equal(t, `a\\b`, Label(`a\b`))
	assert.Equal(t, "ab", Label("a\nb\x00"))
	assert.Equal(t, "[main:0x10]", Label("[main:0x10]"))
}

func TestID(t *testing.T) {
	assert.Equal(t, "cfg_1_a", ID("cfg-1.a"))
	assert.Equal(t, "main", ID("main"))
}
