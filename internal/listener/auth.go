package listener

import "strings"

// splitPath breaks a URL path into its non-empty slash-separated segments.
func splitPath(path string) []string {
	var out []string
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

// authorize applies the authentication precedence and picks the effective
// command segment:
//
//  1. no configured secret: every request is authorized, command is the
//     first segment;
//  2. Authorization: Bearer <token> with a case-insensitive scheme and a
//     case-sensitive token compare, command is the first segment;
//  3. legacy fallback /{secret}/{command}: the URL-embedded secret authorizes
//     and the command is the SECOND segment. Existing callers depend on this
//     exact precedence, header first, URL second.
func authorize(secret, authHeader string, segments []string) (commandSeg string, ok bool) {
	first := ""
	if len(segments) > 0 {
		first = segments[0]
	}

	if secret == "" {
		return first, true
	}

	if scheme, token, found := strings.Cut(authHeader, " "); found {
		if strings.EqualFold(scheme, "Bearer") && strings.TrimSpace(token) == secret {
			return first, true
		}
	}

	if len(segments) >= 2 && segments[0] == secret {
		return segments[1], true
	}

	return "", false
}
