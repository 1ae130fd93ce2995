package rating

import (
	"encoding/json"
	"testing"
)

func intPtr(v int) *int { return &v }

func TestResolveConstant_Priority(t *testing.T) {
	tests := []struct {
		name     string
		record   Record
		override *float64
		want     *float64
	}{
		{
			name:     "override wins",
			record:   Record{Const: Float(13.2)},
			override: Float(13.9),
			want:     Float(13.9),
		},
		{
			name:     "non-positive override ignored",
			record:   Record{Const: Float(13.2)},
			override: Float(0),
			want:     Float(13.2),
		},
		{
			name:   "record constant",
			record: Record{Const: Float(14.1), Level: "14"},
			want:   Float(14.1),
		},
		{
			name:   "zero constant uses integer level",
			record: Record{Const: Float(0), Level: "13"},
			want:   Float(13),
		},
		{
			name:   "zero constant uses x.5 level",
			record: Record{Const: Float(0), Level: "13.5"},
			want:   Float(13.5),
		},
		{
			name:   "zero constant with other fraction stays unknown",
			record: Record{Const: Float(0), Level: "13.7"},
			want:   nil,
		},
		{
			name:   "plus level parses leading number",
			record: Record{Const: Float(0), Level: "14+"},
			want:   Float(14),
		},
		{
			name:   "const unknown flag uses level",
			record: Record{Const: nil, Level: "12.7", IsConstUnknown: true},
			want:   Float(12.7),
		},
		{
			name:   "nothing usable",
			record: Record{Const: nil, Level: ""},
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveConstant(&tt.record, tt.override)
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("Expected nil constant, got %v", *got)
			case tt.want != nil && got == nil:
				t.Errorf("Expected constant %v, got nil", *tt.want)
			case tt.want != nil && !approxEqual(*got, *tt.want):
				t.Errorf("Expected constant %v, got %v", *tt.want, *got)
			}
		})
	}
}

func TestNormalize_ComputesRating(t *testing.T) {
	rec := Record{ID: "abc", Diff: "mas", Title: "Song", Const: Float(14.0), Score: intPtr(1007500), Rating: Float(1.0)}
	s := Normalize(rec, nil)

	if s.Diff != Master {
		t.Errorf("Expected diff MAS, got %s", s.Diff)
	}
	if s.Key() != "abc_MAS" {
		t.Errorf("Expected key abc_MAS, got %s", s.Key())
	}
	if !approxEqual(s.CurrentRating, 16.0) {
		t.Errorf("Expected current rating 16.0, got %v", s.CurrentRating)
	}
	if s.TargetScore != s.CurrentScore || s.TargetRating != s.CurrentRating {
		t.Error("Expected target values to equal current values")
	}
}

func TestNormalize_FallsBackToUpstreamRating(t *testing.T) {
	rec := Record{ID: "x", Diff: "EXP", Title: "No Const", Score: intPtr(1000000), Rating: Float(12.34567)}
	s := Normalize(rec, nil)

	if s.HasConstant() {
		t.Fatal("Expected no constant")
	}
	if !approxEqual(s.CurrentRating, 12.3457) {
		t.Errorf("Expected upstream rating rounded to 12.3457, got %v", s.CurrentRating)
	}

	s = Normalize(Record{ID: "y", Diff: "EXP"}, nil)
	if s.CurrentRating != 0 {
		t.Errorf("Expected 0 rating without constant or upstream rating, got %v", s.CurrentRating)
	}
}

func TestRecord_UnmarshalFlexibleLevel(t *testing.T) {
	var recs []Record
	data := `[{"id":"1","diff":"MAS","title":"A","level":14.5,"const":0},{"id":"2","diff":"ULT","title":"B","level":"15","const":null,"is_const_unknown":true}]`
	if err := json.Unmarshal([]byte(data), &recs); err != nil {
		t.Fatalf("Failed to unmarshal records: %v", err)
	}

	if recs[0].Level != "14.5" {
		t.Errorf("Expected level 14.5, got %q", recs[0].Level)
	}
	a := Normalize(recs[0], nil)
	if a.ChartConstant == nil || *a.ChartConstant != 14.5 {
		t.Errorf("Expected constant 14.5 from level, got %v", a.ChartConstant)
	}
	b := Normalize(recs[1], nil)
	if b.ChartConstant == nil || *b.ChartConstant != 15 {
		t.Errorf("Expected constant 15 from unknown-const level, got %v", b.ChartConstant)
	}
}

func TestConstOverride_UnmarshalStringOrNumber(t *testing.T) {
	var overrides []ConstOverride
	data := `[{"title":"A","diff":"MAS","const":14.3},{"title":"B","diff":"exp","const":"12.8"}]`
	if err := json.Unmarshal([]byte(data), &overrides); err != nil {
		t.Fatalf("Failed to unmarshal overrides: %v", err)
	}

	idx := NewOverrideIndex(overrides)
	if c := idx.Lookup("A", Master); c == nil || *c != 14.3 {
		t.Errorf("Expected override 14.3 for A, got %v", c)
	}
	if c := idx.Lookup("B", Expert); c == nil || *c != 12.8 {
		t.Errorf("Expected override 12.8 for B, got %v", c)
	}
	if c := idx.Lookup("A", Expert); c != nil {
		t.Errorf("Expected no override for A EXP, got %v", *c)
	}
}

func TestApplyOverrides(t *testing.T) {
	songs := []Song{
		{ID: "1", Diff: Master, Title: "A", ChartConstant: Float(13.0), CurrentScore: 1000000, CurrentRating: 14.0, TargetScore: 1000000, TargetRating: 14.0},
		{ID: "2", Diff: Master, Title: "B", ChartConstant: Float(12.0), CurrentScore: 1000000, CurrentRating: 13.0, TargetScore: 1000000, TargetRating: 13.0},
	}
	idx := NewOverrideIndex([]ConstOverride{{Title: "A", Diff: Master, Const: 13.5}})

	out := ApplyOverrides(songs, idx)

	if !approxEqual(out[0].CurrentRating, 14.5) || !approxEqual(out[0].TargetRating, 14.5) {
		t.Errorf("Expected overridden rating 14.5, got current %v target %v", out[0].CurrentRating, out[0].TargetRating)
	}
	if !approxEqual(out[1].CurrentRating, 13.0) {
		t.Errorf("Expected untouched rating 13.0, got %v", out[1].CurrentRating)
	}
	if *songs[0].ChartConstant != 13.0 {
		t.Error("ApplyOverrides mutated its input")
	}
}

func TestDedupeByCurrent(t *testing.T) {
	songs := []Song{
		{ID: "1", Diff: Master, CurrentRating: 14.0, CurrentScore: 1000000},
		{ID: "2", Diff: Master, CurrentRating: 13.0, CurrentScore: 990000},
		{ID: "1", Diff: "mas", CurrentRating: 14.0, CurrentScore: 1000100},
		{ID: "1", Diff: Master, CurrentRating: 13.5, CurrentScore: 1005000},
	}

	out := DedupeByCurrent(songs)

	if len(out) != 2 {
		t.Fatalf("Expected 2 songs, got %d", len(out))
	}
	if out[0].CurrentScore != 1000100 {
		t.Errorf("Expected higher score entry to win the rating tie, got %d", out[0].CurrentScore)
	}
}

func TestSortByCurrent(t *testing.T) {
	songs := []Song{
		{ID: "1", Diff: Expert, CurrentRating: 14.0, CurrentScore: 1000000},
		{ID: "2", Diff: Master, CurrentRating: 14.0, CurrentScore: 1000000},
		{ID: "3", Diff: Master, CurrentRating: 15.0, CurrentScore: 990000},
		{ID: "4", Diff: Master, CurrentRating: 14.0, CurrentScore: 1001000},
	}

	SortByCurrent(songs)

	want := []string{"3", "4", "2", "1"}
	for i, id := range want {
		if songs[i].ID != id {
			t.Errorf("Position %d: expected %s, got %s", i, id, songs[i].ID)
		}
	}
}
