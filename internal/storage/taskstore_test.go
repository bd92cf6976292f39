package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pmbridge/pmbridge/pkg/models"
)

func testTask(id, title string) models.Task {
	return models.Task{
		ID:       id,
		Title:    title,
		Status:   models.StatusPending,
		Priority: models.PriorityMedium,
		Created:  time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		Updated:  time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestTaskStore_NextID(t *testing.T) {
	dir := t.TempDir()
	store := NewTaskStore(dir, "TASK")

	id1, err := store.NextID()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id1 != "TASK-1" {
		t.Errorf("expected TASK-1, got %s", id1)
	}

	id2, err := store.NextID()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id2 != "TASK-2" {
		t.Errorf("expected TASK-2, got %s", id2)
	}
}

func TestTaskStore_NextIDPersistence(t *testing.T) {
	dir := t.TempDir()
	store1 := NewTaskStore(dir, "TASK")

	if _, err := store1.NextID(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A new store instance continues from the same counter.
	store2 := NewTaskStore(dir, "TASK")
	id, err := store2.NextID()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "TASK-2" {
		t.Errorf("expected TASK-2, got %s", id)
	}
}

func TestTaskStore_LoadMissingFile(t *testing.T) {
	dir := t.TempDir()
	store := NewTaskStore(dir, "TASK")

	if err := store.Load(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := store.Tasks(); len(got) != 0 {
		t.Errorf("expected empty task list, got %d tasks", len(got))
	}
}

func TestTaskStore_SaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := NewTaskStore(dir, "TASK")

	a := testTask("TASK-1", "first")
	b := testTask("TASK-2", "second")
	b.Dependencies = []string{"TASK-1"}
	store.Replace([]models.Task{a, b})
	if err := store.Save(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	store2 := NewTaskStore(dir, "TASK")
	if err := store2.Load(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := store2.Tasks()
	if len(got) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(got))
	}
	if got[0].ID != "TASK-1" || got[1].ID != "TASK-2" {
		t.Errorf("insertion order not preserved: %s, %s", got[0].ID, got[1].ID)
	}
	if len(got[1].Dependencies) != 1 || got[1].Dependencies[0] != "TASK-1" {
		t.Errorf("dependencies lost in round-trip: %v", got[1].Dependencies)
	}
}

func TestTaskStore_SaveWritesPrettyJSON(t *testing.T) {
	dir := t.TempDir()
	store := NewTaskStore(dir, "TASK")

	store.Replace([]models.Task{testTask("TASK-1", "first")})
	if err := store.Save(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "tasks.json"))
	if err != nil {
		t.Fatalf("reading tasks.json: %v", err)
	}
	if !strings.Contains(string(data), "\n  ") {
		t.Error("expected indented JSON output")
	}
}

func TestTaskStore_GetAndPut(t *testing.T) {
	dir := t.TempDir()
	store := NewTaskStore(dir, "TASK")
	store.Replace([]models.Task{testTask("TASK-1", "first")})

	task, ok := store.Get("TASK-1")
	if !ok {
		t.Fatal("expected task to exist")
	}

	task.Status = models.StatusInProgress
	if err := store.Put(*task); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, _ := store.Get("TASK-1")
	if got.Status != models.StatusInProgress {
		t.Errorf("expected in_progress, got %s", got.Status)
	}

	if err := store.Put(testTask("TASK-99", "ghost")); err == nil {
		t.Error("expected error putting unknown task")
	}
}

func TestTaskStore_GetReturnsCopy(t *testing.T) {
	dir := t.TempDir()
	store := NewTaskStore(dir, "TASK")
	store.Replace([]models.Task{testTask("TASK-1", "first")})

	task, _ := store.Get("TASK-1")
	task.Title = "mutated"

	got, _ := store.Get("TASK-1")
	if got.Title != "first" {
		t.Error("Get must return a copy, not a reference into the store")
	}
}
