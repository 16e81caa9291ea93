package observability

import "testing"

func TestStageWindowSnapshot(t *testing.T) {
	w := newStageWindow(4)
	w.Observe("generate_questions", 100)
	w.Observe("generate_questions", 200)
	w.Observe("generate_questions", 300)
	w.Observe("summarize", 50)

	snap := w.Snapshot()
	if snap.WindowSize != 4 {
		t.Fatalf("WindowSize = %d, want 4", snap.WindowSize)
	}
	if len(snap.Stages) != 2 {
		t.Fatalf("stages = %d, want 2", len(snap.Stages))
	}

	gen := snap.Stages[0]
	if gen.Stage != "generate_questions" {
		t.Fatalf("stages should be sorted, first = %q", gen.Stage)
	}
	if gen.Samples != 3 {
		t.Fatalf("samples = %d, want 3", gen.Samples)
	}
	if gen.LastMS != 300 {
		t.Fatalf("LastMS = %v, want 300", gen.LastMS)
	}
	if gen.AvgMS != 200 {
		t.Fatalf("AvgMS = %v, want 200", gen.AvgMS)
	}
	if gen.P50MS != 200 {
		t.Fatalf("P50MS = %v, want 200", gen.P50MS)
	}
}

func TestStageWindowWrapsAround(t *testing.T) {
	w := newStageWindow(2)
	w.Observe("chat", 10)
	w.Observe("chat", 20)
	w.Observe("chat", 30)

	snap := w.Snapshot()
	if len(snap.Stages) != 1 {
		t.Fatalf("stages = %d, want 1", len(snap.Stages))
	}
	st := snap.Stages[0]
	if st.Samples != 2 {
		t.Fatalf("samples = %d, want 2 after wrap", st.Samples)
	}
	if st.LastMS != 30 {
		t.Fatalf("LastMS = %v, want 30", st.LastMS)
	}
}

func TestStageWindowIgnoresInvalid(t *testing.T) {
	w := newStageWindow(4)
	w.Observe("", 100)
	w.Observe("chat", -5)

	if snap := w.Snapshot(); len(snap.Stages) != 0 {
		t.Fatalf("stages = %d, want 0", len(snap.Stages))
	}
}
