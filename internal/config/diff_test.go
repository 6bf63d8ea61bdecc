package config

import "testing"

func TestDiff_NoChanges(t *testing.T) {
	cfg := &Config{
		Server:     ServerConfig{LogLevel: LogInfo},
		Generation: GenerationConfig{Instructions: "be brief", MaxToolRounds: 5},
	}
	other := *cfg

	d := Diff(cfg, &other)
	if !d.Empty() {
		t.Errorf("diff = %+v, want empty", d)
	}
}

func TestDiff_LogLevel(t *testing.T) {
	old := &Config{Server: ServerConfig{LogLevel: LogInfo}}
	new := &Config{Server: ServerConfig{LogLevel: LogDebug}}

	d := Diff(old, new)
	if !d.LogLevelChanged || d.NewLogLevel != LogDebug {
		t.Errorf("diff = %+v, want log level change to debug", d)
	}
	if d.GenerationChanged {
		t.Error("generation flagged changed, want unchanged")
	}
}

func TestDiff_Generation(t *testing.T) {
	old := &Config{Generation: GenerationConfig{Instructions: "be brief", MaxToolRounds: 5}}
	new := &Config{Generation: GenerationConfig{Instructions: "be thorough", MaxToolRounds: 8}}

	d := Diff(old, new)
	if !d.GenerationChanged {
		t.Fatalf("diff = %+v, want generation change", d)
	}
	if d.NewGeneration.Instructions != "be thorough" || d.NewGeneration.MaxToolRounds != 8 {
		t.Errorf("new generation = %+v", d.NewGeneration)
	}
}

func TestDiff_RestartOnlyFieldsIgnored(t *testing.T) {
	old := &Config{Server: ServerConfig{ListenAddr: ":8080"}, LLM: LLMConfig{Model: "gpt-4o"}}
	new := &Config{Server: ServerConfig{ListenAddr: ":9090"}, LLM: LLMConfig{Model: "gpt-4o-mini"}}

	if d := Diff(old, new); !d.Empty() {
		t.Errorf("diff = %+v, want empty for restart-only fields", d)
	}
}
