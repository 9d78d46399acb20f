package events

import (
	"context"
	"errors"
	"testing"
)

func TestRouterDispatch_ByPayloadType(t *testing.T) {
	router := NewRouter(nil)
	var got Envelope
	router.Register("order.created", func(ctx context.Context, env Envelope) error {
		got = env
		return nil
	})

	err := router.Dispatch(context.Background(), Envelope{
		RoutingKey: "ignored.key",
		Payload:    []byte(`{"type": "order.created", "orderId": "o-1"}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Type != "order.created" {
		t.Errorf("handler must receive resolved type, got %q", got.Type)
	}
}

func TestRouterDispatch_FallbackToRoutingKey(t *testing.T) {
	router := NewRouter(nil)
	called := false
	router.Register("payment.succeeded", func(ctx context.Context, env Envelope) error {
		called = true
		return nil
	})

	err := router.Dispatch(context.Background(), Envelope{
		RoutingKey: "payment.succeeded",
		Payload:    []byte(`{"orderId": "o-1"}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("handler must be called via routing key fallback")
	}
}

func TestRouterDispatch_UnknownType(t *testing.T) {
	router := NewRouter(nil)

	err := router.Dispatch(context.Background(), Envelope{
		RoutingKey: "mystery.event",
		Payload:    []byte(`{}`),
	})
	if !errors.Is(err, ErrUnknownType) {
		t.Errorf("expected ErrUnknownType, got %v", err)
	}

	err = router.Dispatch(context.Background(), Envelope{Payload: []byte(`{}`)})
	if !errors.Is(err, ErrUnknownType) {
		t.Errorf("expected ErrUnknownType for empty envelope, got %v", err)
	}
}

func TestResolveType_Priority(t *testing.T) {
	payload := []byte(`{"type": "explicit", "rawType": "legacy"}`)
	if got := ResolveType(payload, "header", "routing"); got != "explicit" {
		t.Errorf("explicit type must win, got %q", got)
	}
	if got := ResolveType([]byte(`{"rawType": "legacy"}`), "header", "routing"); got != "legacy" {
		t.Errorf("rawType must beat headers, got %q", got)
	}
	if got := ResolveType([]byte(`{}`), "header", "routing"); got != "header" {
		t.Errorf("header must beat routing key, got %q", got)
	}
	if got := ResolveType([]byte(`{}`), "", "routing"); got != "routing" {
		t.Errorf("routing key is the last resort, got %q", got)
	}
}
