package llm

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestMessageRoleEncoding(t *testing.T) {
	data, err := json.Marshal(Message{Role: RoleAssistant, Content: "hi"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), `"role":"assistant"`) {
		t.Errorf("encoded = %s, want a plain string role", data)
	}

	var decoded Message
	if err := json.Unmarshal([]byte(`{"role":"tool","tool_call_id":"c1"}`), &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Role != RoleTool || decoded.ToolCallID != "c1" {
		t.Errorf("decoded = %+v", decoded)
	}
}
