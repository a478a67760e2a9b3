package docvalue

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const nested = `{
  "simulation": {"name": "base", "cycles": 1000},
  "cache": {
    "l1": {"size_kb": 32, "ways": 8},
    "size_kb": 512
  },
  "traffic": [{"queue_depth": 4}, {"queue_depth": 8}],
  "queue_depth": 99,
  "enabled": true,
  "note": null
}`

func parse(t *testing.T, data string) *Document {
	t.Helper()
	doc, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func marshal(t *testing.T, doc *Document) string {
	t.Helper()
	out, err := doc.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(out)
}

func TestSetFirstDepthFirst(t *testing.T) {
	doc := parse(t, nested)

	if !doc.SetFirst("size_kb", 64.0) {
		t.Fatalf("expected size_kb to be found")
	}
	if v, ok := doc.Lookup("size_kb"); !ok || v != "64" {
		t.Fatalf("expected size_kb 64, got %q (%v)", v, ok)
	}

	out := marshal(t, doc)
	if !strings.Contains(out, `"l1": {
      "size_kb": 64,`) {
		t.Fatalf("expected nested size_kb updated, got:\n%s", out)
	}
	if !strings.Contains(out, `"size_kb": 512`) {
		t.Fatalf("only the first match should change, got:\n%s", out)
	}
}

func TestSetFirstDescendsIntoArrays(t *testing.T) {
	doc := parse(t, nested)

	if !doc.SetFirst("queue_depth", 16.0) {
		t.Fatalf("expected queue_depth to be found")
	}
	out := marshal(t, doc)
	for _, want := range []string{`"queue_depth": 16`, `"queue_depth": 8`, `"queue_depth": 99`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in:\n%s", want, out)
		}
	}
}

func TestSetFirstMissingKey(t *testing.T) {
	if parse(t, nested).SetFirst("bogus", 1.0) {
		t.Fatalf("expected missing key to report false")
	}
}

func TestMarshalJSONPreservesOrderAndTypes(t *testing.T) {
	doc := parse(t, `{"b": 1, "a": 2.5, "c": "x<y", "d": [], "e": {}, "f": false, "g": null}`)
	doc.SetFirst("a", 0.125)

	want := `{
  "b": 1,
  "a": 0.125,
  "c": "x<y",
  "d": [],
  "e": {},
  "f": false,
  "g": null
}`
	if got := marshal(t, doc); got != want {
		t.Fatalf("expected:\n%s\ngot:\n%s", want, got)
	}
}

func TestYAMLDocument(t *testing.T) {
	doc := parse(t, "dram:\n  banks: 8\n  timing:\n    tRCD: 14\nname: sweep\n")
	if doc.Format() != YAML {
		t.Fatalf("expected YAML format, got %v", doc.Format())
	}

	if !doc.SetFirst("tRCD", 18.0) {
		t.Fatalf("expected tRCD to be found")
	}
	out, err := doc.Encode(YAML)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.Contains(string(out), "tRCD: 18") {
		t.Fatalf("expected updated tRCD, got:\n%s", out)
	}
	if js := marshal(t, doc); !strings.Contains(js, `"banks": 8`) {
		t.Fatalf("expected banks in JSON, got:\n%s", js)
	}
}

func TestUpdateFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"a": {"rate": 1.5}}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	found, err := UpdateFile(path, "rate", 2.25)
	if err != nil || !found {
		t.Fatalf("update rate: found=%v err=%v", found, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if want := "{\n  \"a\": {\n    \"rate\": 2.25\n  }\n}\n"; string(data) != want {
		t.Fatalf("expected %q, got %q", want, data)
	}

	found, err = UpdateFile(path, "missing", 1.0)
	if err != nil || found {
		t.Fatalf("update missing: found=%v err=%v", found, err)
	}

	if _, err := UpdateFile(filepath.Join(dir, "absent.json"), "rate", 1.0); err == nil {
		t.Fatalf("expected error for absent file")
	}
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	if _, err := Parse([]byte(`{"a": `)); err == nil {
		t.Fatalf("expected error for truncated document")
	}
	if _, err := Parse([]byte(`{"a": 1} {"b": 2}`)); err == nil {
		t.Fatalf("expected error for trailing document")
	}
}

func TestFormatNumber(t *testing.T) {
	for in, want := range map[float64]string{16: "16", 0.1: "0.1", -3: "-3"} {
		if got := FormatNumber(in); got != want {
			t.Fatalf("FormatNumber(%v): expected %s, got %s", in, want, got)
		}
	}
	if FormatFor("x.json") != JSON || FormatFor("x.YML") != YAML {
		t.Fatalf("unexpected format detection")
	}
}
