package event

import (
	"slices"
	"testing"
	"time"
)

func TestTemplate_New_Defaults(t *testing.T) {
	now := time.Unix(1700000000, 0)
	evt := Template{}.New("rust", now)

	if evt.Service != "rust" {
		t.Errorf("service: got %q", evt.Service)
	}
	if evt.Metric != 1.0 {
		t.Errorf("metric: got %v", evt.Metric)
	}
	if evt.TTL != 3600*time.Second {
		t.Errorf("ttl: got %v", evt.TTL)
	}
	if !slices.Equal(evt.Tags, []string{"source-tag"}) {
		t.Errorf("tags: got %v", evt.Tags)
	}
	if !evt.Time.Equal(now) {
		t.Errorf("time: got %v", evt.Time)
	}
}

func TestTemplate_New_DoesNotShareTags(t *testing.T) {
	tmpl := Template{Tags: []string{"twitter"}, TTL: time.Minute, Host: "h1"}
	evt := tmpl.New("go", time.Now())
	evt.Tags[0] = "mutated"

	if tmpl.Tags[0] != "twitter" {
		t.Fatalf("template tags mutated through event: %v", tmpl.Tags)
	}
	if evt.TTL != time.Minute || evt.Host != "h1" {
		t.Errorf("template fields not applied: %+v", evt)
	}
}

func TestMetricEvent_TTLSeconds(t *testing.T) {
	evt := MetricEvent{TTL: DefaultTTL}
	if evt.TTLSeconds() != 3600 {
		t.Errorf("expected 3600, got %v", evt.TTLSeconds())
	}
}
