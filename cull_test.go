package splatter

import "testing"

func TestCullCountsAlive(t *testing.T) {
	dev := NewSoftwareDevice(testConfig(32, 16, 16), nil)
	sessions := NewSessionTable(SessionSettings{BaseLifetime: 10, ParticlesPerEvent: 1})

	events := []InputEvent{testEvent(8, 8), testEvent(8, 8), testEvent(8, 8)}
	if err := dev.Spawn(events, 1, sessions); err != nil {
		t.Fatal(err)
	}
	if err := dev.Cull(); err != nil {
		t.Fatal(err)
	}
	stats, _ := dev.ReadStats()
	if stats.Alive != 3 {
		t.Errorf("alive = %d, want 3", stats.Alive)
	}
	if stats.Free != 32-3 {
		t.Errorf("free = %d, want %d", stats.Free, 32-3)
	}
}

func TestCullFreesExpiredSlotExactlyOnce(t *testing.T) {
	dev := NewSoftwareDevice(testConfig(8, 16, 16), nil)
	sessions := NewSessionTable(SessionSettings{BaseLifetime: 1, ParticlesPerEvent: 1})

	if err := dev.Spawn([]InputEvent{testEvent(8, 8)}, 1, sessions); err != nil {
		t.Fatal(err)
	}
	if err := dev.Update(2.0); err != nil { // well past any jittered lifetime
		t.Fatal(err)
	}

	// An expired slot goes back to the freelist on the first cull and must
	// stay there over any number of empty frames.
	for frame := 0; frame < 5; frame++ {
		if err := dev.Cull(); err != nil {
			t.Fatal(err)
		}
		stats, _ := dev.ReadStats()
		if stats.Alive != 0 {
			t.Fatalf("frame %d: alive = %d, want 0", frame, stats.Alive)
		}
		if stats.Free != 8 {
			t.Fatalf("frame %d: free = %d, want 8", frame, stats.Free)
		}
	}
}

func TestCullSlotConservation(t *testing.T) {
	const capacity = 64
	dev := NewSoftwareDevice(testConfig(capacity, 32, 32), nil)
	sessions := NewSessionTable(SessionSettings{BaseLifetime: 1, ParticlesPerEvent: 4})

	// Churn the store: spawn, age out, recycle. alive+free must equal
	// capacity after every cull.
	var spawnID uint64
	for frame := 0; frame < 10; frame++ {
		spawnID++
		events := []InputEvent{testEvent(16, 16), testEvent(20, 20)}
		if err := dev.Spawn(events, spawnID, sessions); err != nil {
			t.Fatal(err)
		}
		if err := dev.Update(0.4); err != nil {
			t.Fatal(err)
		}
		if err := dev.Cull(); err != nil {
			t.Fatal(err)
		}
		stats, _ := dev.ReadStats()
		if stats.Alive+stats.Free != capacity {
			t.Fatalf("frame %d: alive %d + free %d != capacity %d",
				frame, stats.Alive, stats.Free, capacity)
		}
	}
}

func TestClearRestoresFullFreelist(t *testing.T) {
	dev := NewSoftwareDevice(testConfig(16, 16, 16), nil)
	sessions := NewSessionTable(SessionSettings{BaseLifetime: 10, ParticlesPerEvent: 8})

	if err := dev.Spawn([]InputEvent{testEvent(8, 8)}, 1, sessions); err != nil {
		t.Fatal(err)
	}
	if err := dev.Clear(); err != nil {
		t.Fatal(err)
	}
	if err := dev.Cull(); err != nil {
		t.Fatal(err)
	}
	stats, _ := dev.ReadStats()
	if stats.Alive != 0 || stats.Free != 16 {
		t.Errorf("after clear: alive = %d, free = %d, want 0 and 16", stats.Alive, stats.Free)
	}
}
