package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/worldlyfantasy/priospace-sub000/internal/relay"
)

func startRelay(t *testing.T) string {
	t.Helper()
	srv := relay.NewServer(zerolog.Nop(), time.Minute)
	ts := httptest.NewServer(http.HandlerFunc(srv.HandleWS))
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func TestHostReachesHostingState(t *testing.T) {
	url := startRelay(t)
	sess := NewSession(zerolog.Nop())
	defer sess.Reset()

	if err := sess.Host(context.Background(), url, "ABC123"); err != nil {
		t.Fatal(err)
	}
	if sess.State() != StateHosting {
		t.Fatalf("expected hosting, got %s", sess.State())
	}
	if sess.RoomID() != "ABC123" {
		t.Fatalf("room id not recorded: %q", sess.RoomID())
	}
}

func TestJoinReachesJoinedState(t *testing.T) {
	url := startRelay(t)

	host := NewSession(zerolog.Nop())
	defer host.Reset()
	if err := host.Host(context.Background(), url, "ABC123"); err != nil {
		t.Fatal(err)
	}

	joiner := NewSession(zerolog.Nop())
	defer joiner.Reset()
	if err := joiner.Join(context.Background(), url, "ABC123"); err != nil {
		t.Fatal(err)
	}
	if joiner.State() != StateJoined {
		t.Fatalf("expected joined, got %s", joiner.State())
	}
}

func TestHostSeesJoiningPeer(t *testing.T) {
	url := startRelay(t)

	host := NewSession(zerolog.Nop())
	defer host.Reset()
	if err := host.Host(context.Background(), url, "ABC123"); err != nil {
		t.Fatal(err)
	}

	joiner := NewSession(zerolog.Nop())
	defer joiner.Reset()
	if err := joiner.Join(context.Background(), url, "ABC123"); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	peerID, err := host.WaitForPeer(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if peerID == "" {
		t.Fatal("expected a peer id")
	}
}

func TestSessionsAreSingleFlight(t *testing.T) {
	url := startRelay(t)
	sess := NewSession(zerolog.Nop())
	defer sess.Reset()

	if err := sess.Host(context.Background(), url, "ABC123"); err != nil {
		t.Fatal(err)
	}
	if err := sess.Host(context.Background(), url, "XYZ789"); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if err := sess.Join(context.Background(), url, "XYZ789"); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
}

func TestRelayErrorSurfacesErrorState(t *testing.T) {
	url := startRelay(t)
	sess := NewSession(zerolog.Nop())
	defer sess.Reset()

	// Invalid room code is rejected by the relay with an error frame.
	err := sess.Host(context.Background(), url, "toolongandlower")
	if err == nil {
		t.Fatal("expected relay error")
	}
	if sess.State() != StateError {
		t.Fatalf("expected error state, got %s", sess.State())
	}
	if sess.Err() == nil {
		t.Fatal("error cause not recorded")
	}
}

func TestDialFailureSurfacesErrorState(t *testing.T) {
	sess := NewSession(zerolog.Nop())
	defer sess.Reset()

	err := sess.Host(context.Background(), "ws://127.0.0.1:1/ws", "ABC123")
	if err == nil {
		t.Fatal("expected dial failure")
	}
	if sess.State() != StateError {
		t.Fatalf("expected error state, got %s", sess.State())
	}
}

func TestResetReturnsToIdle(t *testing.T) {
	url := startRelay(t)
	sess := NewSession(zerolog.Nop())

	if err := sess.Host(context.Background(), url, "ABC123"); err != nil {
		t.Fatal(err)
	}
	sess.Reset()
	if sess.State() != StateIdle {
		t.Fatalf("expected idle after reset, got %s", sess.State())
	}

	// A reset session can start over.
	if err := sess.Host(context.Background(), url, "XYZ789"); err != nil {
		t.Fatal(err)
	}
	sess.Reset()
}
