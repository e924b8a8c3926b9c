package messaging

import (
	"testing"

	"github.com/segmentio/kafka-go"
)

func TestHeaderCarrierRoundTrip(t *testing.T) {
	msg := kafka.Message{}
	c := carrierFor(&msg)

	if got := c.Get("traceparent"); got != "" {
		t.Errorf("expected empty value for missing key, got %q", got)
	}

	c.Set("traceparent", "00-abc-def-01")
	if got := c.Get("traceparent"); got != "00-abc-def-01" {
		t.Errorf("unexpected value: %q", got)
	}

	// overwriting must not grow the header list
	c.Set("traceparent", "00-abc-def-02")
	if len(msg.Headers) != 1 {
		t.Fatalf("expected 1 header, got %d", len(msg.Headers))
	}
	if got := c.Get("traceparent"); got != "00-abc-def-02" {
		t.Errorf("unexpected value after overwrite: %q", got)
	}

	c.Set("baggage", "k=v")
	keys := c.Keys()
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %v", keys)
	}
}
