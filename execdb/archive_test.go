package execdb

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"

	"github.com/chazu/probecov/data"
)

func openTemp(t *testing.T) *Archive {
	t.Helper()
	a, err := Open(filepath.Join(t.TempDir(), "nested", "archive.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func stores(t *testing.T, session string, dump int64, execs ...*data.ExecutionData) (*data.SessionInfoStore, *data.ExecutionDataStore) {
	t.Helper()
	ss := data.NewSessionInfoStore()
	info, err := data.NewSessionInfo(session, dump-10, dump)
	if err != nil {
		t.Fatal(err)
	}
	ss.VisitSessionInfo(info)
	es := data.NewExecutionDataStore()
	for _, e := range execs {
		if err := es.Put(e); err != nil {
			t.Fatal(err)
		}
	}
	return ss, es
}

func TestImportExport(t *testing.T) {
	ctx := context.Background()
	a := openTemp(t)

	ss, es := stores(t, "first", 100,
		&data.ExecutionData{ID: 1, Name: "p/A", Probes: []bool{true, false, false, false, false, false, false, false, false}},
		&data.ExecutionData{ID: 1 << 63, Name: "p/B", Probes: []bool{false}},
	)
	if err := a.Import(ctx, ss, es); err != nil {
		t.Fatalf("Import: %v", err)
	}
	ss, es = stores(t, "second", 50,
		&data.ExecutionData{ID: 1, Name: "p/A", Probes: []bool{false, false, false, false, false, false, false, false, true}},
	)
	if err := a.Import(ctx, ss, es); err != nil {
		t.Fatalf("Import: %v", err)
	}

	gotSessions := data.NewSessionInfoStore()
	gotExecs := data.NewExecutionDataStore()
	if err := a.Export(ctx, gotExecs, gotSessions); err != nil {
		t.Fatalf("Export: %v", err)
	}

	var ids []string
	for _, s := range gotSessions.Infos() {
		ids = append(ids, s.ID)
	}
	if want := []string{"second", "first"}; !slices.Equal(ids, want) {
		t.Errorf("sessions = %v, want %v", ids, want)
	}

	if gotExecs.Len() != 2 {
		t.Fatalf("Len = %d, want 2", gotExecs.Len())
	}
	want := []bool{true, false, false, false, false, false, false, false, true}
	if got := gotExecs.Get(1).Probes; !slices.Equal(got, want) {
		t.Errorf("p/A probes = %v, want %v", got, want)
	}
	b := gotExecs.Get(1 << 63)
	if b == nil || b.Name != "p/B" || len(b.Probes) != 1 {
		t.Errorf("p/B = %v", b)
	}
}

func TestImportIncompatible(t *testing.T) {
	ctx := context.Background()
	a := openTemp(t)
	ss, es := stores(t, "s", 1, &data.ExecutionData{ID: 7, Name: "p/A", Probes: []bool{true}})
	if err := a.Import(ctx, ss, es); err != nil {
		t.Fatal(err)
	}
	ss, es = stores(t, "t", 2, &data.ExecutionData{ID: 7, Name: "p/A", Probes: []bool{true, true}})
	err := a.Import(ctx, ss, es)
	if !errors.Is(err, data.ErrIncompatible) {
		t.Fatalf("Import = %v, want ErrIncompatible", err)
	}

	// The failed import is rolled back as a whole.
	sessions := data.NewSessionInfoStore()
	if err := a.Export(ctx, nil, sessions); err != nil {
		t.Fatal(err)
	}
	if n := len(sessions.Infos()); n != 1 {
		t.Errorf("sessions after rollback = %d, want 1", n)
	}
}

func TestReopenAndClear(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "archive.db")
	a, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	ss, es := stores(t, "s", 1, &data.ExecutionData{ID: 3, Name: "p/C", Probes: []bool{false, true}})
	if err := a.Import(ctx, ss, es); err != nil {
		t.Fatal(err)
	}
	a.Close()

	a, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	got := data.NewExecutionDataStore()
	if err := a.Export(ctx, got, nil); err != nil {
		t.Fatal(err)
	}
	if d := got.Get(3); d == nil || !slices.Equal(d.Probes, []bool{false, true}) {
		t.Fatalf("after reopen = %v", d)
	}

	if err := a.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	got = data.NewExecutionDataStore()
	if err := a.Export(ctx, got, nil); err != nil {
		t.Fatal(err)
	}
	if got.Len() != 0 {
		t.Errorf("Len after Clear = %d", got.Len())
	}
}

func TestPack(t *testing.T) {
	probes := []bool{true, false, true, false, false, false, false, false, false, true}
	b := pack(probes)
	if len(b) != 2 || b[0] != 0x05 || b[1] != 0x02 {
		t.Fatalf("pack = %x", b)
	}
	if got := unpack(b, len(probes)); !slices.Equal(got, probes) {
		t.Errorf("unpack = %v", got)
	}
}
