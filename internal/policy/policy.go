// Package policy gates which agent tools a host application exposes.
// An empty allow-list means everything is allowed; state-changing tools
// can be fenced off by listing only the read-only ones.
package policy

import (
	"strings"

	kiterr "github.com/kibankit/kiban-agent-kit/internal/errors"
)

func CheckToolAllowed(allowlist []string, toolName string) error {
	if len(allowlist) == 0 {
		return nil
	}
	norm := normalize(toolName)
	for _, allowed := range allowlist {
		if normalize(allowed) == norm {
			return nil
		}
	}
	return kiterr.New(kiterr.CodeBlocked, "tool blocked by --enable-tools policy")
}

func normalize(v string) string {
	parts := strings.Fields(strings.ToLower(strings.TrimSpace(v)))
	return strings.Join(parts, " ")
}
