package items

import (
	"context"
	"testing"

	"takeoff-backend/internal/files"
)

func TestReplaceForFileReplacesPriorItems(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()

	first := Extraction{ProjectID: "p1", FileID: "f1", FileKind: files.KindSchedule, JobID: "j1",
		Items: []Item{{ItemCode: "W1"}, {ItemCode: "W2"}}, RawText: "raw-1"}
	if err := repo.ReplaceForFile(ctx, first); err != nil {
		t.Fatalf("replace: %v", err)
	}
	second := Extraction{ProjectID: "p1", FileID: "f1", FileKind: files.KindSchedule, JobID: "j2",
		Items: []Item{{ItemCode: "D1"}}, RawText: "raw-2"}
	if err := repo.ReplaceForFile(ctx, second); err != nil {
		t.Fatalf("replace: %v", err)
	}

	got, err := repo.ListByFile(ctx, "p1", "f1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ItemCode != "D1" {
		t.Fatalf("expected only replacement items, got %+v", got)
	}
	if got[0].FileKind != files.KindSchedule || got[0].ProjectID != "p1" || got[0].ID == "" {
		t.Fatalf("expected ownership stamped on item, got %+v", got[0])
	}
	raw, _ := repo.RawText(ctx, "f1")
	if raw != "raw-2" {
		t.Fatalf("expected latest raw text, got %q", raw)
	}
}

func TestListByKindPreservesPosition(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	_ = repo.ReplaceForFile(ctx, Extraction{ProjectID: "p1", FileID: "boq", FileKind: files.KindBOQ,
		Items: []Item{{ItemCode: "B1"}, {ItemCode: "B2"}, {ItemCode: "B3"}}})
	_ = repo.ReplaceForFile(ctx, Extraction{ProjectID: "p1", FileID: "sch", FileKind: files.KindSchedule,
		Items: []Item{{ItemCode: "S1"}}})

	got, err := repo.ListByKind(ctx, "p1", files.KindBOQ)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 boq items, got %d", len(got))
	}
	for i, it := range got {
		if it.Position != i {
			t.Fatalf("expected position %d, got %d", i, it.Position)
		}
	}

	if err := repo.DeleteByFile(ctx, "p1", "boq"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	all, _ := repo.ListByProject(ctx, "p1")
	if len(all) != 1 || all[0].ItemCode != "S1" {
		t.Fatalf("expected only schedule item after delete, got %+v", all)
	}
}

func TestIsPlaceholder(t *testing.T) {
	cases := []struct {
		name string
		item Item
		want bool
	}{
		{"empty code", Item{Description: "Concrete"}, true},
		{"note row type", Item{ItemCode: "1.1", Fields: map[string]any{"rowType": "Note"}}, true},
		{"note description", Item{ItemCode: "1.2", Description: "Note: rates exclude VAT"}, true},
		{"heading", Item{ItemCode: "2", Fields: map[string]any{"rowType": "heading"}}, true},
		{"measured row", Item{ItemCode: "W1", Description: "Brick wall 215mm"}, false},
		{"notes word inside", Item{ItemCode: "W2", Description: "Notched lintel"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.item.IsPlaceholder(); got != tc.want {
				t.Fatalf("IsPlaceholder() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNormalizeCode(t *testing.T) {
	if NormalizeCode(" w 1a ") != "W1A" {
		t.Fatalf("unexpected normalized code %q", NormalizeCode(" w 1a "))
	}
}
