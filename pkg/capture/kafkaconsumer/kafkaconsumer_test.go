package kafkaconsumer

import (
	"testing"

	"github.com/segmentio/kafka-go"
)

func TestHeaderMapConvertsKafkaHeaders(t *testing.T) {
	got := headerMap([]kafka.Header{{Key: "trace-id", Value: []byte("abc123")}})
	if got["trace-id"] != "abc123" {
		t.Fatalf("unexpected header map: %+v", got)
	}
}

func TestHeaderMapEmptyReturnsNil(t *testing.T) {
	if got := headerMap(nil); got != nil {
		t.Fatalf("expected nil for no headers, got %+v", got)
	}
}
