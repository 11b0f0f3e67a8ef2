package sessions

import "testing"

func TestNormalizeAgentID(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty defaults to main", "", "main"},
		{"simple id passes", "research", "research"},
		{"uppercase lowered", "Research-Bot", "research-bot"},
		{"invalid chars become dashes", "my agent!v2", "my-agent-v2"},
		{"leading trailing dashes trimmed", "--agent--", "agent"},
		{"only invalid chars defaults to main", "!!!", "main"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeAgentID(tt.in); got != tt.want {
				t.Errorf("NormalizeAgentID(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeAgentIDCapsLength(t *testing.T) {
	long := make([]byte, 100)
	for i := range long {
		long[i] = 'a'
	}
	got := NormalizeAgentID(string(long))
	if len(got) != 64 {
		t.Errorf("len = %d, want 64", len(got))
	}
}

func TestResolveKey(t *testing.T) {
	tests := []struct {
		name       string
		agentID    string
		sessionID  string
		sessionKey string
		want       string
	}{
		{"all empty", "", "", "", "agent:main:main"},
		{"session id only", "", "chat-42", "", "agent:main:chat-42"},
		{"agent and session id", "research", "chat-42", "", "agent:research:chat-42"},
		{"session key wins over id", "research", "chat-42", "agent:other:xyz", "agent:other:xyz"},
		{"bare session key gets prefixed", "", "", "standup", "agent:main:standup"},
		{"already canonical is idempotent", "", "", "agent:main:standup", "agent:main:standup"},
		{"canonical key lowercased", "", "", "AGENT:Main:Standup", "agent:main:standup"},
		{"unsafe chars kept for url-encoding at file layer", "", "my chat!", "", "agent:main:my chat!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveKey(tt.agentID, tt.sessionID, tt.sessionKey)
			if got != tt.want {
				t.Errorf("ResolveKey(%q, %q, %q) = %q, want %q",
					tt.agentID, tt.sessionID, tt.sessionKey, got, tt.want)
			}
			// Resolving a resolved key must be a no-op.
			if again := ResolveKey("", "", got); again != got {
				t.Errorf("resolve not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestParseKey(t *testing.T) {
	parsed := ParseKey("agent:research:chat-42")
	if parsed == nil || parsed.AgentID != "research" || parsed.Rest != "chat-42" {
		t.Errorf("ParseKey = %+v", parsed)
	}
	if ParseKey("not-a-key") != nil {
		t.Error("ParseKey accepted a malformed key")
	}
	if ParseKey("agent:onlyid") != nil {
		t.Error("ParseKey accepted a two-part key")
	}
}

func TestIsSubagentKey(t *testing.T) {
	if !IsSubagentKey("agent:main:subagent:dcf-runner") {
		t.Error("subagent key not detected")
	}
	if IsSubagentKey("agent:main:main") {
		t.Error("main key misdetected as subagent")
	}
}
