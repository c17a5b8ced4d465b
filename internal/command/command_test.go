package command

import "testing"

func TestCatalogLookupIsCaseInsensitive(t *testing.T) {
	c := NewCatalog()

	for _, name := range []string{"shutdown", "Shutdown", "SHUTDOWN", "shutDOWN"} {
		cmd, ok := c.Lookup(name)
		if !ok {
			t.Fatalf("Lookup(%q) not found", name)
		}
		if cmd != Shutdown {
			t.Fatalf("Lookup(%q)=%s, want Shutdown", name, cmd)
		}
	}
}

func TestCatalogLookupUnknown(t *testing.T) {
	c := NewCatalog()
	if _, ok := c.Lookup("selfdestruct"); ok {
		t.Fatal("unknown command resolved")
	}
	if _, ok := c.Lookup(""); ok {
		t.Fatal("empty command resolved")
	}
}

func TestCatalogCoversAllCommands(t *testing.T) {
	c := NewCatalog()
	for _, cmd := range []Command{Shutdown, Restart, Lock, ForceShutdown, TurnScreenOff, UEFIReboot, WakeOnLan} {
		got, ok := c.Lookup(cmd.String())
		if !ok || got != cmd {
			t.Fatalf("Lookup(%s)=%v ok=%v", cmd, got, ok)
		}
	}
}
