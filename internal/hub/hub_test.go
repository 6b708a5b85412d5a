package hub

import (
	"context"
	"testing"
	"time"

	"github.com/ALCHACAS2/Dots-Boxes/internal/room"
	"github.com/ALCHACAS2/Dots-Boxes/pkg/types"
)

func TestHub_Ensure_Get_SamePointer(t *testing.T) {
	ctx := context.Background()
	h := NewHub(ctx, nil, nil)
	defer h.Shutdown()

	rm1 := h.Ensure(ctx, "zed123", room.Settings{GridSize: 4})
	rm2 := h.Get(ctx, "zed123")

	if rm1 == nil || rm2 == nil || rm1 != rm2 {
		t.Fatalf("expected same room pointer")
	}

	// Settings only apply on creation.
	rm3 := h.Ensure(ctx, "zed123", room.Settings{GridSize: 9})
	v, _ := rm3.State()
	if rm3 != rm1 || v.GridSize != 4 {
		t.Fatalf("expected the existing 4x4 room, got %+v", v)
	}
}

func TestHub_Get_Unknown(t *testing.T) {
	ctx := context.Background()
	h := NewHub(ctx, nil, nil)
	defer h.Shutdown()

	if rm := h.Get(ctx, "nope"); rm != nil {
		t.Fatalf("expected nil room")
	}
}

func TestHub_EmptyRoomIsRemoved(t *testing.T) {
	ctx := context.Background()
	h := NewHub(ctx, nil, nil)
	defer h.Shutdown()

	rm := h.Ensure(ctx, "abc", room.Settings{})
	out := make(chan types.Envelope, 8)
	if err := rm.Join("c1", "Alice", out); err != nil {
		t.Fatalf("join: %v", err)
	}
	rm.Leave("c1")

	deadline := time.Now().Add(time.Second)
	for h.Get(ctx, "abc") != nil {
		if time.Now().After(deadline) {
			t.Fatalf("empty room still registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// A fresh room takes the code.
	if fresh := h.Ensure(ctx, "abc", room.Settings{}); fresh == nil || fresh == rm {
		t.Fatalf("expected a new room")
	}
}

func TestHub_StaleRemoveKeepsNewRoom(t *testing.T) {
	ctx := context.Background()
	h := NewHub(ctx, nil, nil)
	defer h.Shutdown()

	old := h.Ensure(ctx, "abc", room.Settings{})
	h.Inbox() <- RemoveRoom{Code: "abc", Room: old}
	fresh := h.Ensure(ctx, "abc", room.Settings{})

	h.Inbox() <- RemoveRoom{Code: "abc", Room: old}
	if got := h.Get(ctx, "abc"); got != fresh {
		t.Fatalf("stale remove dropped the live room")
	}
}

func TestHub_List(t *testing.T) {
	ctx := context.Background()
	h := NewHub(ctx, nil, nil)
	defer h.Shutdown()

	if codes := h.List(ctx); len(codes) != 0 {
		t.Fatalf("expected no rooms, got %v", codes)
	}
	h.Ensure(ctx, "zed", room.Settings{})
	h.Ensure(ctx, "abc", room.Settings{})

	codes := h.List(ctx)
	if len(codes) != 2 || codes[0] != "abc" || codes[1] != "zed" {
		t.Fatalf("expected [abc zed], got %v", codes)
	}
}

func TestHub_ShutdownClosesOutboxes(t *testing.T) {
	ctx := context.Background()
	h := NewHub(ctx, nil, nil)

	rm := h.Ensure(ctx, "abc", room.Settings{})
	out := make(chan types.Envelope, 8)
	if err := rm.Join("c1", "Alice", out); err != nil {
		t.Fatalf("join: %v", err)
	}
	<-out // playersUpdate

	h.Shutdown()

	select {
	case _, ok := <-out:
		if ok {
			t.Fatalf("expected closed outbox")
		}
	case <-time.After(time.Second):
		t.Fatalf("outbox not closed")
	}
}
