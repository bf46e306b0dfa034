package config

import (
	"log/slog"
	"testing"
)

func TestToGossipConfig(t *testing.T) {
	cfg := Default()
	cfg.Discovery.Gossip.BindPort = 7000
	cfg.Discovery.Gossip.Seeds = []string{
		"10.0.0.1:7946",
		"tcp://user:pw@10.0.0.2:7947",
		"10.0.0.3",
	}

	g, err := ToGossipConfig(cfg, "node-a", slog.Default())
	if err != nil {
		t.Fatalf("ToGossipConfig() error = %v", err)
	}
	if g.NodeName != "node-a" || g.BindPort != 7000 {
		t.Errorf("unexpected config %+v", g)
	}
	want := []string{"10.0.0.1:7946", "10.0.0.2:7947", "10.0.0.3:7000"}
	if len(g.Seeds) != len(want) {
		t.Fatalf("Seeds = %v, want %v", g.Seeds, want)
	}
	for i := range want {
		if g.Seeds[i] != want[i] {
			t.Errorf("Seeds[%d] = %q, want %q", i, g.Seeds[i], want[i])
		}
	}
}

func TestToGossipConfig_NilConfig(t *testing.T) {
	if _, err := ToGossipConfig(nil, "n", nil); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestToMDNSConfig_UnknownInterface(t *testing.T) {
	cfg := Default()
	cfg.Discovery.Interfaces = []string{"does-not-exist0"}
	if _, err := ToMDNSConfig(cfg, slog.Default()); err == nil {
		t.Error("expected error for unknown interface")
	}
}
