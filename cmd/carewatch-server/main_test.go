package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/carewatch/carewatch/internal/config"
	"github.com/carewatch/carewatch/internal/platform/store"
)

func TestRunSimulate_EmitsRequestedReadings(t *testing.T) {
	var buf bytes.Buffer
	if err := runSimulate(&buf, "demo-1", 5, 0, 42); err != nil {
		t.Fatalf("runSimulate failed: %v", err)
	}

	lines := 0
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		var reading map[string]interface{}
		if err := json.Unmarshal(scanner.Bytes(), &reading); err != nil {
			t.Fatalf("line %d is not valid JSON: %v", lines+1, err)
		}
		if reading["patientId"] != "demo-1" {
			t.Errorf("line %d: expected patientId demo-1, got %v", lines+1, reading["patientId"])
		}
		if reading["heartRate"] == nil {
			t.Errorf("line %d: expected heartRate field", lines+1)
		}
		lines++
	}
	if lines != 5 {
		t.Errorf("expected 5 readings, got %d", lines)
	}
}

func TestRunSimulate_ZeroSeedStillProduces(t *testing.T) {
	var buf bytes.Buffer
	if err := runSimulate(&buf, "demo-2", 1, 0, 0); err != nil {
		t.Fatalf("runSimulate failed: %v", err)
	}
	if buf.Len() == 0 {
		t.Error("expected at least one reading")
	}
}

func TestNewStore_Memory(t *testing.T) {
	cfg := &config.Config{StoreDriver: "memory"}
	st, err := newStore(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := st.(*store.MemoryStore); !ok {
		t.Errorf("expected *store.MemoryStore, got %T", st)
	}
}

func TestNewStore_UnknownDriver(t *testing.T) {
	cfg := &config.Config{StoreDriver: "cassandra"}
	if _, err := newStore(context.Background(), cfg); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
