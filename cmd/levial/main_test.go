package main

import "testing"

func TestRootCommandFlags(t *testing.T) {
	cmd := newRootCmd()

	for _, name := range []string{"profile", "listen", "capture", "device", "player", "plain", "keep-artifacts", "no-control-tools", "dev"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Fatalf("missing flag %q", name)
		}
	}
	if cmd.PersistentFlags().Lookup("base-dir") == nil {
		t.Fatalf("missing persistent flag base-dir")
	}

	devices, _, err := cmd.Find([]string{"devices"})
	if err != nil || devices.Name() != "devices" {
		t.Fatalf("expected devices subcommand, got %v (%v)", devices, err)
	}
}

func TestNewLoggerWritesToFile(t *testing.T) {
	logger, err := newLogger(false, t.TempDir()+"/levial.log")
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	logger.Info("hello")
	_ = logger.Sync()
}
