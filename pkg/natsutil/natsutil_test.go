package natsutil

import (
	"testing"

	"github.com/nats-io/nats.go"
)

func TestHeaderCarrier(t *testing.T) {
	msg := &nats.Msg{Subject: "test"}
	c := (*natsHeaderCarrier)(msg)

	if got := c.Get("traceparent"); got != "" {
		t.Errorf("Get on empty headers = %q", got)
	}
	if keys := c.Keys(); keys != nil {
		t.Errorf("Keys on empty headers = %v", keys)
	}

	c.Set("traceparent", "00-abc-def-01")
	if got := c.Get("traceparent"); got != "00-abc-def-01" {
		t.Errorf("Get = %q", got)
	}
	if msg.Header.Get("Traceparent") == "" && msg.Header.Get("traceparent") == "" {
		t.Error("Set must write through to the message headers")
	}

	c.Set("baggage", "k=v")
	if len(c.Keys()) != 2 {
		t.Errorf("Keys = %v", c.Keys())
	}
}
