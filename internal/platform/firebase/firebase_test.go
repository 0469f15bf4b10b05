package firebase

import (
	"context"
	"testing"
)

func TestConfig_ClientOptions(t *testing.T) {
	if opts := (Config{ProjectID: "clinic"}).ClientOptions(); len(opts) != 0 {
		t.Errorf("expected no options without credentials file, got %d", len(opts))
	}
	if opts := (Config{ProjectID: "clinic", CredentialsFile: "/secrets/sa.json"}).ClientOptions(); len(opts) != 1 {
		t.Errorf("expected credentials option, got %d", len(opts))
	}
}

func TestNewApp_RequiresProject(t *testing.T) {
	if _, err := NewApp(context.Background(), Config{}); err == nil {
		t.Fatal("expected error without project id")
	}
}
