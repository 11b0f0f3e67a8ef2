// Package sessions stores conversation history and handles session keys.
//
// Session keys follow the canonical format:
//
//	agent:{agentId}:{rest}
//
// Where {rest} is "main" for the default session, an arbitrary caller-chosen
// scope, or "subagent:{label}" for subagent sessions.
//
// Examples:
//
//	agent:main:main
//	agent:main:research-2024
//	agent:dexter:subagent:dcf-runner
package sessions

import (
	"regexp"
	"strings"
)

const (
	// DefaultAgentID is used when no agent id is supplied.
	DefaultAgentID = "main"
	// DefaultMainKey is the rest segment of the default session.
	DefaultMainKey = "main"
)

var (
	validIDRe      = regexp.MustCompile(`(?i)^[a-z0-9][a-z0-9_-]{0,63}$`)
	invalidCharsRe = regexp.MustCompile(`[^a-z0-9_-]+`)
)

// ParsedKey holds the components of a canonical session key.
type ParsedKey struct {
	AgentID string
	Rest    string
}

// NormalizeAgentID normalizes an agent id to a valid identifier.
// Empty input returns DefaultAgentID. Valid ids are lowercased as-is.
// Invalid characters collapse to dashes, leading/trailing dashes are
// stripped, and the result is truncated to 64 characters.
func NormalizeAgentID(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return DefaultAgentID
	}
	if validIDRe.MatchString(trimmed) {
		return strings.ToLower(trimmed)
	}
	normalized := strings.ToLower(trimmed)
	normalized = invalidCharsRe.ReplaceAllString(normalized, "-")
	normalized = strings.Trim(normalized, "-")
	if len(normalized) > 64 {
		normalized = normalized[:64]
	}
	if normalized == "" {
		return DefaultAgentID
	}
	return normalized
}

func normalizeMainKey(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return DefaultMainKey
	}
	return strings.ToLower(trimmed)
}

// BuildMainKey builds the main session key for an agent:
//
//	agent:{agentId}:{mainKey}
func BuildMainKey(agentID, mainKey string) string {
	return "agent:" + NormalizeAgentID(agentID) + ":" + normalizeMainKey(mainKey)
}

// ParseKey extracts the agent id and rest from a canonical session key.
// Returns nil if the key is not in the expected agent:{id}:{rest} format.
func ParseKey(key string) *ParsedKey {
	raw := strings.TrimSpace(key)
	if raw == "" {
		return nil
	}
	var parts []string
	for _, p := range strings.Split(raw, ":") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) < 3 || !strings.EqualFold(parts[0], "agent") {
		return nil
	}
	rest := strings.TrimSpace(strings.Join(parts[2:], ":"))
	if rest == "" {
		return nil
	}
	return &ParsedKey{AgentID: NormalizeAgentID(parts[1]), Rest: rest}
}

// IsSubagentKey reports whether a session key belongs to a subagent.
func IsSubagentKey(key string) bool {
	parsed := ParseKey(key)
	if parsed == nil {
		return false
	}
	return strings.HasPrefix(strings.ToLower(parsed.Rest), "subagent:")
}

// AgentIDFromKey extracts the normalized agent id from a session key,
// falling back to DefaultAgentID for malformed keys.
func AgentIDFromKey(key string) string {
	parsed := ParseKey(key)
	if parsed == nil {
		return DefaultAgentID
	}
	return parsed.AgentID
}

// toStoreKey converts a request key to a full store session key.
// Empty or "main" keys map to the agent's main session. Keys already
// carrying the agent: prefix are accepted as-is (lowercased). Anything
// else is prefixed with agent:{agentId}:.
func toStoreKey(agentID, requestKey string) string {
	raw := strings.TrimSpace(requestKey)
	if raw == "" || strings.ToLower(raw) == DefaultMainKey {
		return BuildMainKey(agentID, "")
	}
	lowered := strings.ToLower(raw)
	if strings.HasPrefix(lowered, "agent:") {
		return lowered
	}
	return "agent:" + NormalizeAgentID(agentID) + ":" + lowered
}

// ResolveKey resolves the (agentID, sessionID, sessionKey) triple to a
// normalized canonical session key. An explicit sessionKey wins over
// sessionID; with neither, the agent's main key is returned.
// Resolving an already-resolved key is the identity.
func ResolveKey(agentID, sessionID, sessionKey string) string {
	agentID = NormalizeAgentID(agentID)
	if explicit := strings.TrimSpace(sessionKey); explicit != "" {
		return toStoreKey(agentID, explicit)
	}
	if id := strings.TrimSpace(sessionID); id != "" {
		return toStoreKey(agentID, id)
	}
	return BuildMainKey(agentID, "")
}
