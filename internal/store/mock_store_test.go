// ABOUTME: Tests for MockStore
// ABOUTME: Checks the in-memory semantics match the SQLite store

package store

import (
	"context"
	"errors"
	"testing"

	"github.com/2389/coven-hcs10/internal/hcs"
)

func TestMockStore_Checkpoints(t *testing.T) {
	ctx := context.Background()
	m := NewMockStore()

	_ = m.SaveCheckpoint(ctx, "0.0.1", "0.0.100", 10)
	_ = m.SaveCheckpoint(ctx, "0.0.1", "0.0.100", 5)

	got, _ := m.LoadCheckpoints(ctx, "0.0.1")
	if got["0.0.100"] != 10 {
		t.Errorf("checkpoint = %d, want 10", got["0.0.100"])
	}
}

func TestMockStore_ConnectionsAndMarks(t *testing.T) {
	ctx := context.Background()
	m := NewMockStore()

	_ = m.SaveConnection(ctx, "0.0.1", &hcs.Connection{ConnectionTopicID: "0.0.100"})
	_ = m.SaveConnection(ctx, "0.0.1", &hcs.Connection{ConnectionTopicID: "0.0.200"})
	_ = m.SaveConnection(ctx, "0.0.1", &hcs.Connection{ConnectionTopicID: "0.0.100", TargetAgentName: "Bob"})

	conns, _ := m.ListConnections(ctx, "0.0.1")
	if len(conns) != 2 || conns[0].TargetAgentName != "Bob" {
		t.Fatalf("unexpected connections: %+v", conns)
	}

	_ = m.DeleteConnection(ctx, "0.0.1", "0.0.100")
	conns, _ = m.ListConnections(ctx, "0.0.1")
	if len(conns) != 1 || conns[0].ConnectionTopicID != "0.0.200" {
		t.Errorf("unexpected connections after delete: %+v", conns)
	}

	_ = m.MarkRequestProcessed(ctx, "0.0.1", "0.0.11", 3)
	_ = m.MarkRequestProcessed(ctx, "0.0.1", "0.0.11", 3)
	marks, _ := m.ListProcessedRequests(ctx, "0.0.1")
	if len(marks) != 1 {
		t.Errorf("got %d marks, want 1", len(marks))
	}
}

func TestMockStore_SaveErr(t *testing.T) {
	m := NewMockStore()
	m.SaveErr = errors.New("disk full")

	err := m.SaveCheckpoint(context.Background(), "0.0.1", "0.0.100", 1)
	if !errors.Is(err, m.SaveErr) {
		t.Errorf("err = %v, want disk full", err)
	}
}

func TestMockStore_Agents(t *testing.T) {
	ctx := context.Background()
	m := NewMockStore()

	_ = m.SaveAgent(ctx, hcs.RegisteredAgent{Name: "beta", AccountID: "0.0.2", PrivateKey: "k"})
	_ = m.SaveAgent(ctx, hcs.RegisteredAgent{Name: "alpha", AccountID: "0.0.1"})

	list, _ := m.ListAgents(ctx)
	if len(list) != 2 || list[0].Name != "alpha" || list[1].PrivateKey != "" {
		t.Errorf("unexpected agents: %+v", list)
	}

	got, err := m.GetAgent(ctx, "beta")
	if err != nil || got.PrivateKey != "k" {
		t.Errorf("GetAgent = %+v, %v", got, err)
	}
	if err := m.DeleteAgent(ctx, "beta"); err != nil {
		t.Fatalf("DeleteAgent failed: %v", err)
	}
	if _, err := m.GetAgent(ctx, "beta"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
