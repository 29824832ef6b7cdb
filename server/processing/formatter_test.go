package processing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatStages(t *testing.T) {
	tests := []struct {
		name  string
		stage func(string) string
		input string
		want  string
	}{
		{"code block", CodeBlocks, "```python\nprint(1)\n```", `<pre class="code-block"><code>print(1)</code></pre>`},
		{"code block without language", CodeBlocks, "```\nx := 1\ny := 2\n```", "<pre class=\"code-block\"><code>x := 1\ny := 2</code></pre>"},
		{"inline code", InlineCode, "use `go test` here", `use <code class="inline-code">go test</code> here`},
		{"inline code spans no newline", InlineCode, "a `b\nc` d", "a `b\nc` d"},
		{"heading level 1", Headings, "# Title", `<h1 class="response-heading">Title</h1>`},
		{"heading level 3", Headings, "intro\n### Big O\nbody", "intro\n<h3 class=\"response-heading\">Big O</h3>\nbody"},
		{"seven hashes is not a heading", Headings, "####### nope", "####### nope"},
		{"hash without space", Headings, "#tag", "#tag"},
		{"unordered item", UnorderedLists, "  - item", `<ul><li>item</li></ul>`},
		{"ordered item", OrderedLists, "12. item", `<ol><li>item</li></ol>`},
		{"merge unordered", MergeLists, "<ul><li>a</li></ul>\n<ul><li>b</li></ul>", "<ul><li>a</li><li>b</li></ul>"},
		{"merge ordered", MergeLists, "<ol><li>a</li></ol><ol><li>b</li></ol>", "<ol><li>a</li><li>b</li></ol>"},
		{"different kinds stay apart", MergeLists, "<ul><li>a</li></ul>\n<ol><li>b</li></ol>", "<ul><li>a</li></ul>\n<ol><li>b</li></ol>"},
		{"bold", Bold, "a **strong** b", "a <strong>strong</strong> b"},
		{"italic", Italic, "a *soft* b", "a <em>soft</em> b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.stage(tt.input))
		})
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain text passes through",
			input: "A hash table maps keys to values.",
			want:  "A hash table maps keys to values.",
		},
		{
			name:  "empty input",
			input: "",
			want:  "",
		},
		{
			name:  "fenced code is not processed further",
			input: "```python\nprint(1)\n```",
			want:  `<pre class="code-block"><code>print(1)</code></pre>`,
		},
		{
			name:  "markup inside fenced code is literal",
			input: "```\n- **not bold** `x`\n# not heading\n```",
			want:  "<pre class=\"code-block\"><code>- **not bold** `x`\n# not heading</code></pre>",
		},
		{
			name:  "asterisks inside inline code are literal",
			input: "compute `a*b*c` first",
			want:  `compute <code class="inline-code">a*b*c</code> first`,
		},
		{
			name:  "consecutive unordered items merge into one list",
			input: "- a\n- b",
			want:  "<ul><li>a</li><li>b</li></ul>",
		},
		{
			name:  "consecutive ordered items merge into one list",
			input: "1. first\n2. second\n3. third",
			want:  "<ol><li>first</li><li>second</li><li>third</li></ol>",
		},
		{
			name:  "bold before italic",
			input: "**Stack** is *LIFO*",
			want:  "<strong>Stack</strong> is <em>LIFO</em>",
		},
		{
			name:  "heading with inline code",
			input: "## The `map` type",
			want:  `<h2 class="response-heading">The <code class="inline-code">map</code> type</h2>`,
		},
		{
			name:  "list item with bold",
			input: "- **O(1)** lookup",
			want:  "<ul><li><strong>O(1)</strong> lookup</li></ul>",
		},
		{
			name:  "rendered inline code inside a fence is restored",
			input: "```html\nuse <code class=\"inline-code\">x</code> here\n```",
			want:  "<pre class=\"code-block\"><code>use <code class=\"inline-code\">x</code> here</code></pre>",
		},
		{
			name:  "crlf line endings",
			input: "## Two\r\n- a\r\n- b",
			want:  "<h2 class=\"response-heading\">Two</h2>\n<ul><li>a</li><li>b</li></ul>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(tt.input))
		})
	}
}

func TestFormatIdempotent(t *testing.T) {
	inputs := []string{
		"``inline``",
		"```go\nfmt.Println(\"*x*\")\n```",
		"# Title\n- a\n- b\n1. c\n**d** *e* `f*g*`",
		"no markup at all",
		"`a` and `b`",
		"```html\nuse <code class=\"inline-code\">x</code> here\n```",
		"# One\r\n1. x\r\n2. `y`",
	}

	for _, input := range inputs {
		once := Format(input)
		twice := Format(once)
		assert.Equal(t, once, twice, "input: %q", input)
	}
}

func TestFormatDoubleBacktickWrapsOnce(t *testing.T) {
	out := Format(Format("``inline``"))
	assert.Equal(t, 1, strings.Count(out, "<code"))
	assert.Equal(t, "`<code class=\"inline-code\">inline</code>`", out)
}

func TestFormatDropsNUL(t *testing.T) {
	assert.Equal(t, "ab", Format("a\x00b"))
	assert.Equal(t, "0", Format("\x000\x00"))
}

func TestFormatNeverLeaksPlaceholders(t *testing.T) {
	inputs := []string{
		"```\n<code class=\"inline-code\">a</code> `b` <code class=\"inline-code\">c</code>\n```",
		"<pre class=\"code-block\"><code>`x`</code></pre> and `y`",
		"- ** -  x*y**",
	}

	for _, input := range inputs {
		out := Format(Format(input))
		assert.NotContains(t, out, "\x00", "input: %q", input)
	}
}
