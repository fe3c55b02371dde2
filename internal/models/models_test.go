package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestJSONBMarshal(t *testing.T) {
	j := JSONB{
		"sentiment": "positive",
		"topics":    []string{"business", "technology"},
	}

	data, err := j.Value()
	if err != nil {
		t.Fatalf("failed to marshal JSONB: %v", err)
	}

	if data == nil {
		t.Fatal("expected non-nil data")
	}

	var result map[string]interface{}
	if err := json.Unmarshal(data.([]byte), &result); err != nil {
		t.Fatalf("failed to unmarshal result: %v", err)
	}

	if result["sentiment"] != "positive" {
		t.Errorf("expected sentiment=positive, got %v", result["sentiment"])
	}
}

func TestJSONBScan(t *testing.T) {
	jsonData := []byte(`{"retries": 2, "kind": "SourceTimeout"}`)

	var j JSONB
	if err := j.Scan(jsonData); err != nil {
		t.Fatalf("failed to scan: %v", err)
	}

	if j["kind"] != "SourceTimeout" {
		t.Errorf("expected kind=SourceTimeout, got %v", j["kind"])
	}

	if j["retries"].(float64) != 2 {
		t.Errorf("expected retries=2, got %v", j["retries"])
	}
}

func TestStatusValues(t *testing.T) {
	statuses := []Status{StatusQueued, StatusProcessing, StatusCompleted, StatusFailed}
	for _, s := range statuses {
		if s == "" {
			t.Errorf("empty status found")
		}
	}
}

func TestJobClone(t *testing.T) {
	now := time.Now()
	j := &Job{Status: StatusCompleted, StartedAt: &now, Result: &Result{DurationSec: 30}}

	clone := j.Clone()
	clone.Result.DurationSec = 99
	*clone.StartedAt = now.Add(1)

	if j.Result.DurationSec != 30 {
		t.Errorf("mutating clone.Result affected original: got %v", j.Result.DurationSec)
	}
	if j.StartedAt.Equal(*clone.StartedAt) {
		t.Errorf("mutating clone.StartedAt affected original")
	}
}
