package processing

import (
	"regexp"
	"strconv"
	"strings"
)

// The formatter converts a small Markdown subset into HTML fragments. The
// stages run in a fixed order; code produced by the first two stages is
// parked behind NUL-delimited placeholders so later stages cannot touch it.
var (
	codeBlockRe     = regexp.MustCompile("```(?:\\w+)?\\n([\\s\\S]*?)\\n```")
	inlineCodeRe    = regexp.MustCompile("`([^`\\n\\x00]+?)`")
	headingRe       = regexp.MustCompile(`(?m)^(#{1,6})[ \t]+(.+)$`)
	unorderedItemRe = regexp.MustCompile(`(?m)^[ \t]*-[ \t]+(.+)$`)
	orderedItemRe   = regexp.MustCompile(`(?m)^[ \t]*\d+\.[ \t]+(.+)$`)
	adjacentULRe    = regexp.MustCompile(`</ul>\s*<ul>`)
	adjacentOLRe    = regexp.MustCompile(`</ol>\s*<ol>`)
	boldRe          = regexp.MustCompile(`\*\*([^*]+?)\*\*`)
	italicRe        = regexp.MustCompile(`\*([^*]+?)\*`)

	renderedBlockRe  = regexp.MustCompile(`(?s)<pre class="code-block"><code>.*?</code></pre>`)
	renderedInlineRe = regexp.MustCompile(`<code class="inline-code">[^\x00]*?</code>`)
	placeholderRe    = regexp.MustCompile(`\x00(\d+)\x00`)
)

// CodeBlocks wraps fenced code in a code block element. The language tag
// is dropped and the body is kept literally.
func CodeBlocks(s string) string {
	return codeBlockRe.ReplaceAllString(s, `<pre class="code-block"><code>$1</code></pre>`)
}

// InlineCode wraps single-backtick spans in an inline code element.
func InlineCode(s string) string {
	return inlineCodeRe.ReplaceAllString(s, `<code class="inline-code">$1</code>`)
}

// Headings converts ATX headings into h1..h6 elements.
func Headings(s string) string {
	return headingRe.ReplaceAllStringFunc(s, func(line string) string {
		m := headingRe.FindStringSubmatch(line)
		level := strconv.Itoa(len(m[1]))
		return "<h" + level + ` class="response-heading">` + m[2] + "</h" + level + ">"
	})
}

// UnorderedLists wraps every "- item" line in its own list.
func UnorderedLists(s string) string {
	return unorderedItemRe.ReplaceAllString(s, `<ul><li>$1</li></ul>`)
}

// OrderedLists wraps every "1. item" line in its own list.
func OrderedLists(s string) string {
	return orderedItemRe.ReplaceAllString(s, `<ol><li>$1</li></ol>`)
}

// MergeLists joins consecutive lists of the same kind.
func MergeLists(s string) string {
	s = adjacentULRe.ReplaceAllString(s, "")
	return adjacentOLRe.ReplaceAllString(s, "")
}

// Bold converts **text** into strong elements.
func Bold(s string) string {
	return boldRe.ReplaceAllString(s, `<strong>$1</strong>`)
}

// Italic converts *text* into em elements.
func Italic(s string) string {
	return italicRe.ReplaceAllString(s, `<em>$1</em>`)
}

// vault holds code fragments while the text stages run.
type vault struct {
	fragments []string
}

func (v *vault) stash(fragment string) string {
	v.fragments = append(v.fragments, fragment)
	return "\x00" + strconv.Itoa(len(v.fragments)-1) + "\x00"
}

// restore puts the fragments back. A stashed fragment may itself hold
// placeholders (rendered inline code inside a fence), so it repeats until
// none are left. Every pass only expands earlier indexes, which bounds it.
func (v *vault) restore(s string) string {
	for i := 0; i <= len(v.fragments) && placeholderRe.MatchString(s); i++ {
		s = placeholderRe.ReplaceAllStringFunc(s, func(p string) string {
			idx, err := strconv.Atoi(p[1 : len(p)-1])
			if err != nil || idx >= len(v.fragments) {
				return ""
			}
			return v.fragments[idx]
		})
	}
	return s
}

// Format applies all stages in order. It is total, and constructs it has
// already converted come back unchanged when it runs again. Unbalanced
// asterisks left over from one run may still pair up on the next.
func Format(text string) string {
	v := &vault{}

	// NUL never appears in model text; dropping it keeps placeholders unambiguous
	s := strings.ReplaceAll(text, "\x00", "")
	s = strings.ReplaceAll(s, "\r\n", "\n")

	s = renderedBlockRe.ReplaceAllStringFunc(s, v.stash)
	s = renderedInlineRe.ReplaceAllStringFunc(s, v.stash)

	s = codeBlockRe.ReplaceAllStringFunc(s, func(m string) string {
		return v.stash(CodeBlocks(m))
	})
	s = inlineCodeRe.ReplaceAllStringFunc(s, func(m string) string {
		return v.stash(InlineCode(m))
	})

	s = Headings(s)
	s = UnorderedLists(s)
	s = OrderedLists(s)
	s = MergeLists(s)
	s = Bold(s)
	s = Italic(s)

	return v.restore(s)
}
