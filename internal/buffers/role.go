package buffers

import (
	"fmt"
	"strings"

	apperrors "github.com/conneroisu/codecraft/internal/errors"
)

// Role identifies one of the three editable sources.
type Role int

const (
	Markup Role = iota
	Styles
	Script
)

// Roles lists every role in composition order.
var Roles = [...]Role{Markup, Styles, Script}

// String returns the external name used by the HTTP API and stored projects.
func (r Role) String() string {
	switch r {
	case Markup:
		return "html"
	case Styles:
		return "css"
	case Script:
		return "javascript"
	default:
		return "unknown"
	}
}

// Label is the tab label shown by the editor.
func (r Role) Label() string {
	switch r {
	case Markup:
		return "HTML"
	case Styles:
		return "CSS"
	case Script:
		return "JavaScript"
	default:
		return "Unknown"
	}
}

// Valid reports whether r is one of the three defined roles.
func (r Role) Valid() bool {
	return r >= Markup && r <= Script
}

// ParseRole accepts the external names plus a few common aliases.
func ParseRole(name string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "html", "markup":
		return Markup, nil
	case "css", "styles", "style":
		return Styles, nil
	case "javascript", "js", "script":
		return Script, nil
	default:
		return 0, apperrors.NewValidationError(apperrors.ErrCodeInvalidRole,
			fmt.Sprintf("unknown buffer role %q (want html, css or javascript)", name))
	}
}

func invalidRole(r Role) error {
	return apperrors.NewValidationError(apperrors.ErrCodeInvalidRole, fmt.Sprintf("invalid buffer role %d", int(r)))
}

// MarshalText implements encoding.TextMarshaler so roles serialize by name.
func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, invalidRole(r)
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
