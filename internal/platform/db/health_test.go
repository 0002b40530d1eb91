package db

import (
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestPoolStats_JSON(t *testing.T) {
	stats := PoolStats{
		TotalConns:      10,
		IdleConns:       5,
		AcquiredConns:   5,
		MaxConns:        20,
		AcquireCount:    100,
		AcquireDuration: "1.5s",
		Healthy:         true,
	}

	raw, err := json.Marshal(stats)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	for _, key := range []string{"total_conns", "idle_conns", "acquired_conns", "max_conns", "acquire_count", "acquire_duration", "healthy"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("expected key %q in pool stats JSON", key)
		}
	}
	if decoded["acquire_duration"] != "1.5s" {
		t.Errorf("expected acquire_duration 1.5s, got %v", decoded["acquire_duration"])
	}
}

func TestPoolCollector_Describe(t *testing.T) {
	c := NewPoolCollector(nil)
	ch := make(chan *prometheus.Desc, 8)
	c.Describe(ch)
	close(ch)

	n := 0
	for range ch {
		n++
	}
	if n != 4 {
		t.Errorf("expected 4 metric descriptors, got %d", n)
	}
}
