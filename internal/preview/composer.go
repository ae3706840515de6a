// Package preview composes the three source buffers into one standalone
// HTML document and keeps the sandbox in step with the buffers.
package preview

import (
	"regexp"
	"strings"

	"github.com/conneroisu/codecraft/internal/buffers"
)

// skeletonPattern matches the outer wrapper a learner may paste into the
// markup buffer: the doctype, the html tags, and a whole head element. It is
// a textual heuristic; tag names are matched whole so <header> survives.
var skeletonPattern = regexp.MustCompile(
	`(?i)<!DOCTYPE[^>]*>|<html(?:\s[^>]*)?>|</html\s*>|<head(?:\s[^>]*)?>[\s\S]*?</head\s*>`,
)

const documentOpen = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Preview</title>
<style>`

const bodyOpen = `</style>
</head>
<body>
`

const scriptOpen = `
<script>`

const documentClose = `</script>
</body>
</html>
`

// StripSkeleton removes the document wrapper from markup, leaving body-level
// content. Anything else, including stray body tags, passes through.
// Removal repeats until nothing matches, so StripSkeleton is idempotent.
func StripSkeleton(markup string) string {
	for {
		next := skeletonPattern.ReplaceAllString(markup, "")
		if next == markup {
			return strings.TrimSpace(markup)
		}
		markup = next
	}
}

// Compose builds the preview document. Styles land in a single style
// element in the head, the stripped markup opens the body, and the script
// follows it in a single script element so it runs after the markup exists.
// Styles and script are inserted verbatim. The result depends only on the
// three inputs.
func Compose(markup, styles, script string) string {
	body := StripSkeleton(markup)

	var b strings.Builder
	b.Grow(len(documentOpen) + len(styles) + len(bodyOpen) + len(body) +
		len(scriptOpen) + len(script) + len(documentClose))
	b.WriteString(documentOpen)
	b.WriteString(styles)
	b.WriteString(bodyOpen)
	b.WriteString(body)
	b.WriteString(scriptOpen)
	b.WriteString(script)
	b.WriteString(documentClose)
	return b.String()
}

// ComposeSnapshot composes the buffers captured in a snapshot.
func ComposeSnapshot(s buffers.Snapshot) string {
	return Compose(s.Markup, s.Styles, s.Script)
}
