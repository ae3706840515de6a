package sandbox

import (
	"fmt"
	"strings"

	apperrors "github.com/conneroisu/codecraft/internal/errors"
)

// TokenAllowScripts is the only capability a preview frame needs.
const TokenAllowScripts = "allow-scripts"

// allowedTokens are the sandbox tokens a policy may carry. The preview only
// needs to run scripts.
var allowedTokens = map[string]bool{
	TokenAllowScripts: true,
}

// forbiddenTokens get a specific error message; any other unknown token is
// rejected too.
var forbiddenTokens = map[string]string{
	"allow-same-origin":                        "grants the host origin (cookies, storage, parent DOM)",
	"allow-top-navigation":                     "lets the frame navigate the host page",
	"allow-top-navigation-by-user-activation":  "lets the frame navigate the host page",
	"allow-top-navigation-to-custom-protocols": "lets the frame navigate the host page",
	"allow-forms":                              "lets the frame submit forms",
	"allow-modals":                            "lets the frame block the host with alert and confirm dialogs",
	"allow-popups":                             "lets the frame open windows",
	"allow-popups-to-escape-sandbox":           "lets opened windows escape the sandbox",
	"allow-storage-access-by-user-activation":  "lets the frame request storage access",
}

// Policy is the isolation configuration of the preview surface.
type Policy struct {
	// Tokens populate the iframe sandbox attribute and the CSP sandbox directive.
	Tokens []string `mapstructure:"tokens" yaml:"tokens" json:"tokens"`
	// ReferrerPolicy is set on the iframe element.
	ReferrerPolicy string `mapstructure:"referrer_policy" yaml:"referrer_policy" json:"referrer_policy"`
	// ContentPolicy holds the CSP directives applied to the frame document
	// in addition to the sandbox directive.
	ContentPolicy string `mapstructure:"content_policy" yaml:"content_policy" json:"content_policy"`
}

// DefaultPolicy allows scripts and nothing else.
func DefaultPolicy() Policy {
	return Policy{
		Tokens:         []string{TokenAllowScripts},
		ReferrerPolicy: "no-referrer",
		ContentPolicy: "default-src 'none'; " +
			"script-src 'unsafe-inline'; " +
			"style-src 'unsafe-inline'; " +
			"img-src data: https:; " +
			"font-src data: https:; " +
			"media-src data: https:",
	}
}

// Validate rejects policies that would weaken isolation.
func (p Policy) Validate() error {
	collector := apperrors.NewErrorCollector()
	hasScripts := false
	for _, token := range p.Tokens {
		token = strings.ToLower(strings.TrimSpace(token))
		if reason, bad := forbiddenTokens[token]; bad {
			collector.Add(apperrors.NewConfigError(apperrors.ErrCodeSandboxPolicy,
				fmt.Sprintf("sandbox token %q is not permitted: it %s", token, reason)))
			continue
		}
		if !allowedTokens[token] {
			collector.Add(apperrors.NewConfigError(apperrors.ErrCodeSandboxPolicy,
				fmt.Sprintf("unknown sandbox token %q", token)))
			continue
		}
		if token == TokenAllowScripts {
			hasScripts = true
		}
	}
	if !hasScripts {
		collector.Add(apperrors.NewConfigError(apperrors.ErrCodeSandboxPolicy,
			"sandbox policy must include allow-scripts"))
	}
	if strings.Contains(strings.ToLower(p.ContentPolicy), "sandbox") {
		collector.Add(apperrors.NewConfigError(apperrors.ErrCodeSandboxPolicy,
			"content_policy must not carry its own sandbox directive"))
	}
	return collector.Err()
}

// Attribute is the value of the iframe sandbox attribute.
func (p Policy) Attribute() string {
	return strings.Join(p.Tokens, " ")
}

// Header is the Content-Security-Policy value for a served frame document.
// The sandbox directive isolates the document even when it is opened
// directly instead of through the iframe.
func (p Policy) Header() string {
	header := "sandbox " + p.Attribute()
	if p.ContentPolicy != "" {
		header += "; " + p.ContentPolicy
	}
	return header
}
