package stream

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"keyhive/internal/permissions"
	"keyhive/internal/secretevents"
)

func actionFor(t secretevents.EventType) permissions.Action {
	switch t {
	case secretevents.EventTypeSecretCreate:
		return permissions.ActionSubscribeSecretCreate
	case secretevents.EventTypeSecretUpdate:
		return permissions.ActionSubscribeSecretUpdate
	case secretevents.EventTypeSecretDelete:
		return permissions.ActionSubscribeSecretDelete
	default:
		return permissions.ActionSubscribeImportChange
	}
}

// matchPathGlob applies the registration's path glob. Matching is
// slash-insensitive: separators are rewritten to a placeholder on both
// sides before matching, so a star crosses path segments wherever it
// sits. "/api/*" covers "/api/v2/keys" and "/api/v*" covers it too.
func matchPathGlob(pattern, path string) bool {
	if pattern == "" {
		return true
	}

	const sep = "\x00"
	matched, err := doublestar.Match(
		strings.ReplaceAll(pattern, "/", sep),
		strings.ReplaceAll(path, "/", sep),
	)
	if err != nil {
		return false
	}
	return matched
}

// allowed decides whether one secret event reaches one client. A
// registration's approval at subscribe time never bypasses this: the
// event's actual environment and path are re-checked against the current
// evaluator on every delivery.
func allowed(c *Client, evt secretevents.SecretEvent) bool {
	if evt.ProjectID != c.ProjectID {
		return false
	}

	eval := c.Permission().Evaluator
	if eval == nil {
		return false
	}

	for _, reg := range c.Registrations {
		if reg.EventType != evt.EventType {
			continue
		}

		if reg.Conditions != nil {
			if reg.Conditions.Environment != "" && reg.Conditions.Environment != evt.Environment {
				continue
			}
			if !matchPathGlob(reg.Conditions.SecretPath, evt.SecretPath) {
				continue
			}
		}

		if eval.Can(actionFor(evt.EventType), permissions.Subject{
			Environment: evt.Environment,
			SecretPath:  evt.SecretPath,
		}) {
			return true
		}
	}

	return false
}
