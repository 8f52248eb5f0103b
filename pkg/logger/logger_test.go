package logger

import (
	"testing"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"default", *DefaultConfig(), false},
		{"debug", *DebugConfig(), false},
		{"server", *ServerConfig(), false},
		{"bad level", Config{Level: "verbose", Format: TextFormat, Output: StderrOutput}, true},
		{"bad format", Config{Level: InfoLevel, Format: "xml", Output: StderrOutput}, true},
		{"bad output", Config{Level: InfoLevel, Format: TextFormat, Output: "syslog"}, true},
		{"file output without path", Config{Level: InfoLevel, Format: TextFormat, Output: FileOutput}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewLoggerDefaults(t *testing.T) {
	l, err := NewLogger(nil)
	if err != nil {
		t.Fatalf("Expected nil config to use defaults, got error: %v", err)
	}
	if l == nil {
		t.Fatal("Expected a logger instance")
	}
}

func TestNewLoggerRejectsInvalidConfig(t *testing.T) {
	_, err := NewLogger(&Config{Level: "loud", Format: TextFormat, Output: StderrOutput})
	if err == nil {
		t.Error("Expected an error for an invalid level")
	}
}

func TestFieldChaining(t *testing.T) {
	l, err := NewLogger(DebugConfig())
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}

	scoped := l.WithComponent("identity").WithField("session_id", "abc").WithFields(Fields{
		"pass": 1,
	})
	if scoped == nil {
		t.Fatal("Expected chained logger")
	}

	entry, ok := scoped.(*entryLogger)
	if !ok {
		t.Fatal("Expected entryLogger implementation")
	}
	if entry.entry.Data["component"] != "identity" {
		t.Errorf("Expected component field to survive chaining, got %v", entry.entry.Data["component"])
	}
	if entry.entry.Data["session_id"] != "abc" {
		t.Errorf("Expected session_id field to survive chaining, got %v", entry.entry.Data["session_id"])
	}
	if entry.entry.Data["pass"] != 1 {
		t.Errorf("Expected pass field to survive chaining, got %v", entry.entry.Data["pass"])
	}
}

func TestGlobalLogger(t *testing.T) {
	original := GetGlobalLogger()
	defer SetGlobalLogger(original)

	l, err := NewLogger(DebugConfig())
	if err != nil {
		t.Fatalf("Failed to create logger: %v", err)
	}
	SetGlobalLogger(l)

	if GetGlobalLogger() != l {
		t.Error("Expected global logger to be replaced")
	}
}
