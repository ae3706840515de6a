package sandbox

import (
	"context"
	"io"
	"strconv"

	"github.com/a-h/templ"
)

// IFrame renders the frame as a sandboxed iframe element. The document is
// written through srcdoc so the frame never shares an origin with the host
// page.
func IFrame(frame Frame, policy Policy) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, `<iframe id="preview-frame" title="Code Preview"`+
			` data-generation="`+strconv.FormatUint(frame.Generation, 10)+`"`+
			` sandbox="`+templ.EscapeString(policy.Attribute())+`"`+
			` referrerpolicy="`+templ.EscapeString(policy.ReferrerPolicy)+`"`+
			` srcdoc="`+templ.EscapeString(frame.SrcDoc())+`"></iframe>`)
		return err
	})
}

// FrameSource renders an iframe that loads the frame document from src
// instead of inlining it. The served document carries the CSP sandbox
// header, so the iframe attribute is a second layer.
func FrameSource(src string, generation uint64, policy Policy) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, `<iframe id="preview-frame" title="Code Preview"`+
			` data-generation="`+strconv.FormatUint(generation, 10)+`"`+
			` sandbox="`+templ.EscapeString(policy.Attribute())+`"`+
			` referrerpolicy="`+templ.EscapeString(policy.ReferrerPolicy)+`"`+
			` src="`+templ.EscapeString(src)+`"></iframe>`)
		return err
	})
}
