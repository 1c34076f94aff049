package catalog

import (
	"reflect"
	"testing"
)

func strp(s string) *string { return &s }

func TestBinsLookup(t *testing.T) {
	b, err := ParseBins([]byte(`{
		"2010": {"patient": {"AgeStudyStart": [0, 2, 17], "Albuterol": [0, 1]}},
		"2011": {"visit": {"Albuterol": [0, 3]}}
	}`))
	if err != nil {
		t.Fatalf("ParseBins: %v", err)
	}

	got := b.Lookup(strp("2010"), strp("patient"), strp("Albuterol"))
	if !reflect.DeepEqual(got, []any{0.0, 1.0}) {
		t.Fatalf("year+table+feature: %#v", got)
	}

	byYear := b.Lookup(nil, strp("patient"), nil).(map[string]any)
	if byYear["2011"] != nil {
		t.Fatalf("missing table should map to nil, got %#v", byYear["2011"])
	}

	byTable := b.Lookup(strp("2011"), nil, strp("AgeStudyStart")).(map[string]any)
	if v, ok := byTable["visit"]; !ok || v != nil {
		t.Fatalf("missing feature should map to nil: %#v", byTable)
	}

	if b.Lookup(strp("1999"), nil, nil) != nil {
		t.Fatal("unknown year should be nil")
	}
}

func TestLoadBinsMissingFile(t *testing.T) {
	b, err := LoadBins(t.TempDir() + "/bins.json")
	if err != nil {
		t.Fatalf("LoadBins: %v", err)
	}
	if got := b.Lookup(nil, nil, nil).(map[string]any); len(got) != 0 {
		t.Fatalf("expected empty bins, got %v", got)
	}
}
