package keycode

import (
	"testing"
)

func TestResolveCanonicalAliases(t *testing.T) {
	cases := []struct {
		alias string
		want  KeyCode
	}{
		{"A", A},
		{"Z", Z},
		{"0", Key0},
		{"9", Key9},
		{"F1", F1},
		{"F24", F24},
		{"Escape", Escape},
		{"CapsLock", CapsLock},
		{"KPEnter", KPEnter},
		{"LShift", LShift},
		{"Slash", Slash},
	}
	for _, tc := range cases {
		got, ok := Resolve(tc.alias)
		if !ok {
			t.Fatalf("Resolve(%q) not found", tc.alias)
		}
		if got != tc.want {
			t.Errorf("Resolve(%q) = %v, want %v", tc.alias, got, tc.want)
		}
	}
}

func TestResolveSecondaryAliases(t *testing.T) {
	cases := []struct {
		alias string
		want  KeyCode
	}{
		{"Esc", Escape},
		{"Return", Enter},
		{"Caps", CapsLock},
		{"PgUp", PageUp},
		{"PgDn", PageDown},
		{"LWin", LMeta},
		{"Dot", Period},
		{"Backtick", Grave},
	}
	for _, tc := range cases {
		got, ok := Resolve(tc.alias)
		if !ok || got != tc.want {
			t.Errorf("Resolve(%q) = %v, %v; want %v, true", tc.alias, got, ok, tc.want)
		}
	}
}

func TestResolveUnknown(t *testing.T) {
	for _, alias := range []string{"", "NotAKey", "a", "escape", "F25", "VK_A", "MD_00"} {
		if code, ok := Resolve(alias); ok {
			t.Errorf("Resolve(%q) = %v, expected miss", alias, code)
		}
	}
}

// Every registered alias must hash to a unique slot and resolve back to its
// own code: the perfect hash is total and collision-free over the catalog.
func TestPerfectHashTotality(t *testing.T) {
	seen := make(map[KeyCode][]string)
	for _, e := range catalog {
		got, ok := Resolve(e.alias)
		if !ok {
			t.Fatalf("alias %q unresolvable", e.alias)
		}
		if got != e.code {
			t.Fatalf("alias %q resolved to %v, want %v", e.alias, got, e.code)
		}
		seen[got] = append(seen[got], e.alias)
	}
	if len(catalog) != Hash().Len() {
		t.Errorf("table has %d slots for %d aliases", Hash().Len(), len(catalog))
	}
}

func TestBuildDeterministic(t *testing.T) {
	t1, err := Build(catalog)
	if err != nil {
		t.Fatal(err)
	}
	t2, err := Build(catalog)
	if err != nil {
		t.Fatal(err)
	}
	d1, d2 := t1.Displacements(), t2.Displacements()
	if len(d1) != len(d2) {
		t.Fatal("displacement length mismatch")
	}
	for i := range d1 {
		if d1[i] != d2[i] {
			t.Fatalf("displacement[%d] differs: %d vs %d", i, d1[i], d2[i])
		}
	}
}

func TestFromPartsRoundTrip(t *testing.T) {
	src := Hash()
	codes := make([]KeyCode, src.Len())
	check := make([]uint32, src.Len())
	for i := 0; i < src.Len(); i++ {
		codes[i], check[i] = src.Slot(i)
	}
	rebuilt, err := FromParts(src.Displacements(), codes, check)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range catalog {
		got, ok := rebuilt.Lookup(e.alias)
		if !ok || got != e.code {
			t.Fatalf("rebuilt table: Lookup(%q) = %v, %v", e.alias, got, ok)
		}
	}
}

func TestChecksumStable(t *testing.T) {
	a, b := Checksum(), Checksum()
	if a != b {
		t.Error("checksum not deterministic")
	}
	var zero [32]byte
	if a == zero {
		t.Error("checksum is zero")
	}
}

func TestStringNames(t *testing.T) {
	if A.String() != "A" {
		t.Errorf("A.String() = %q", A.String())
	}
	if Escape.String() != "Escape" {
		t.Errorf("Escape.String() = %q", Escape.String())
	}
	if None.String() != "None" {
		t.Errorf("None.String() = %q", None.String())
	}
	if KeyCode(9999).String() != "KeyCode(9999)" {
		t.Errorf("out of range String() = %q", KeyCode(9999).String())
	}
}
