package tasks

import (
	"reflect"
	"testing"
	"time"

	"taskdesk/domain"
)

func task(id string, status domain.Status) domain.Task {
	return domain.Task{ID: id, Title: "task " + id, Status: status}
}

func ids(tasks []domain.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func TestInsertOrAppendIsIdempotent(t *testing.T) {
	s := NewStore()
	if !s.InsertOrAppend(task("t1", domain.StatusPending)) {
		t.Fatal("expected first insert to add the task")
	}
	dup := task("t1", domain.StatusInProgress)
	dup.Title = "mirrored push"
	if s.InsertOrAppend(dup) {
		t.Fatal("expected duplicate insert to be ignored")
	}
	got := s.Snapshot()
	if len(got) != 1 {
		t.Fatalf("expected one task, got %d", len(got))
	}
	if got[0].Title != "task t1" || got[0].Status != domain.StatusPending {
		t.Fatalf("existing record was modified: %+v", got[0])
	}
}

func TestInsertOrAppendAppendsAtEnd(t *testing.T) {
	s := NewStore()
	s.ReplaceAll([]domain.Task{task("a", domain.StatusPending), task("b", domain.StatusPending)})
	s.InsertOrAppend(task("c", domain.StatusPending))
	if got := ids(s.Snapshot()); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("unexpected order %v", got)
	}
}

func TestUnknownIDOperationsLeaveStoreUnchanged(t *testing.T) {
	s := NewStore()
	s.ReplaceAll([]domain.Task{task("a", domain.StatusPending), task("b", domain.StatusInProgress)})
	before := s.Snapshot()

	title := "x"
	if s.ApplyPartial("missing", domain.TaskPatch{Title: &title}) {
		t.Fatal("ApplyPartial on unknown id reported a change")
	}
	if s.MarkCompleted("missing") {
		t.Fatal("MarkCompleted on unknown id reported a change")
	}
	if s.Remove("missing") {
		t.Fatal("Remove on unknown id reported a change")
	}

	if after := s.Snapshot(); !reflect.DeepEqual(before, after) {
		t.Fatalf("store changed:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestAssignedThenCompleted(t *testing.T) {
	s := NewStore()
	s.InsertOrAppend(task("5", domain.StatusPending))
	s.MarkCompleted("5")

	got, ok := s.Get("5")
	if !ok || got.Status != domain.StatusCompleted {
		t.Fatalf("expected completed task, got %+v (found=%v)", got, ok)
	}
}

func TestCompletedThenAssignedConverges(t *testing.T) {
	forward := NewStore()
	forward.InsertOrAppend(task("5", domain.StatusPending))
	forward.MarkCompleted("5")

	reverse := NewStore()
	reverse.MarkCompleted("5")
	if reverse.Len() != 0 {
		t.Fatalf("completion for unknown id must not add a record")
	}
	reverse.InsertOrAppend(task("5", domain.StatusPending))

	if !reflect.DeepEqual(forward.Snapshot(), reverse.Snapshot()) {
		t.Fatalf("orders diverged:\nforward %+v\nreverse %+v", forward.Snapshot(), reverse.Snapshot())
	}
}

func TestReplaceAllForgetsPendingCompletions(t *testing.T) {
	s := NewStore()
	s.MarkCompleted("b")
	s.MarkCompleted("z")
	list := []domain.Task{task("a", domain.StatusPending), task("b", domain.StatusPending), task("c", domain.StatusPending)}
	s.ReplaceAll(list)

	if got := s.Snapshot(); !reflect.DeepEqual(got, list) {
		t.Fatalf("replace did not install the list verbatim: %+v", got)
	}

	s.InsertOrAppend(task("z", domain.StatusPending))
	if got, _ := s.Get("z"); got.Status != domain.StatusPending {
		t.Fatalf("completion survived the replace: %s", got.Status)
	}
}

func TestRemoveForgetsPendingCompletion(t *testing.T) {
	s := NewStore()
	s.MarkCompleted("t1")
	s.Remove("t1")
	s.InsertOrAppend(task("t1", domain.StatusPending))

	got, _ := s.Get("t1")
	if got.Status != domain.StatusPending {
		t.Fatalf("expected pending, got %s", got.Status)
	}
}

func TestReplaceAllInstallsExactSequence(t *testing.T) {
	s := NewStore()
	s.InsertOrAppend(task("old", domain.StatusPending))
	s.InsertOrAppend(task("b", domain.StatusCompleted))

	s.ReplaceAll([]domain.Task{task("a", domain.StatusPending), task("b", domain.StatusPending), task("c", domain.StatusPending)})

	got := s.Snapshot()
	want := []domain.Task{task("a", domain.StatusPending), task("b", domain.StatusPending), task("c", domain.StatusPending)}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected contents %+v", got)
	}
}

func TestReplaceAllDropsDuplicateIDs(t *testing.T) {
	s := NewStore()
	first := task("a", domain.StatusPending)
	second := task("a", domain.StatusCompleted)
	s.ReplaceAll([]domain.Task{first, task("b", domain.StatusPending), second})

	got := s.Snapshot()
	if !reflect.DeepEqual(ids(got), []string{"a", "b"}) || got[0].Status != domain.StatusPending {
		t.Fatalf("unexpected contents %+v", got)
	}
}

func TestRemoveKeepsOrderAndIndex(t *testing.T) {
	s := NewStore()
	s.ReplaceAll([]domain.Task{task("a", domain.StatusPending), task("b", domain.StatusPending), task("c", domain.StatusPending)})
	if !s.Remove("a") {
		t.Fatal("expected removal")
	}
	if !s.MarkCompleted("c") {
		t.Fatal("index not rebuilt after removal")
	}
	got := s.Snapshot()
	if !reflect.DeepEqual(ids(got), []string{"b", "c"}) || got[1].Status != domain.StatusCompleted {
		t.Fatalf("unexpected contents %+v", got)
	}
}

func TestUpdatedEventAfterInitialLoad(t *testing.T) {
	s := NewStore()
	s.ReplaceAll([]domain.Task{{ID: "t1", Status: domain.StatusPending}})

	ev := domain.TaskUpdated{TaskID: "t1", Updates: domain.StatusPatch(domain.StatusInProgress)}
	s.ApplyPartial(ev.TaskID, ev.Updates)

	got := s.Snapshot()
	if len(got) != 1 || got[0].ID != "t1" || got[0].Status != domain.StatusInProgress {
		t.Fatalf("unexpected contents %+v", got)
	}
}

func TestSnapshotIsDetached(t *testing.T) {
	s := NewStore()
	s.InsertOrAppend(domain.Task{ID: "t1", AssignedEmployee: &domain.EmployeeRef{ID: "e1"}})

	snap := s.Snapshot()
	snap[0].Title = "mutated"
	snap[0].AssignedEmployee.ID = "e2"

	got, _ := s.Get("t1")
	if got.Title != "" || got.AssignedEmployee.ID != "e1" {
		t.Fatalf("snapshot aliases store state: %+v", got)
	}
}

func TestWatchSignalsChanges(t *testing.T) {
	s := NewStore()
	ch, stop := s.Watch()
	defer stop()

	s.InsertOrAppend(task("t1", domain.StatusPending))
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("no change signal")
	}

	s.ApplyPartial("missing", domain.StatusPatch(domain.StatusCompleted))
	select {
	case <-ch:
		t.Fatal("no-op must not signal")
	default:
	}

	stop()
	s.Remove("t1")
	select {
	case <-ch:
		t.Fatal("signal after stop")
	default:
	}
}
