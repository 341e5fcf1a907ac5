package instance

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"cscplan/internal/market"
)

const referenceJSON = `{
  "name": "reference",
  "n_materials": 2,
  "n_suppliers": 3,
  "n_products": 2,
  "moq": [[15, 2, 1], [10, 3, 2]],
  "cap": [[100, 20, 30], [70, 30, 50]],
  "mp": [[2, 2.5, 3], [2, 2.5, 2.5]],
  "recycled": [[false, false, true], [false, false, true]],
  "mc": [[3, 1], [1, 3]],
  "sp": [15, 15],
  "fixed_cost": 50
}`

func TestParseJSONMatchesReference(t *testing.T) {
	in, err := ParseJSON([]byte(referenceJSON))
	if err != nil {
		t.Fatalf("parse json: %v", err)
	}
	if !reflect.DeepEqual(in, Reference()) {
		t.Fatalf("parsed instance differs from reference:\n got=%+v\nwant=%+v", in, Reference())
	}
}

func TestParseJSONInfersDimensionsAndTypeAlias(t *testing.T) {
	doc := `{
  "moq": [[1, 1]],
  "cap": [[10, 5]],
  "mp": [[1, 2]],
  "type": [[false, true]],
  "mc": [[2], [1]],
  "sp": [4, 3]
}`
	in, err := ParseJSON([]byte(doc))
	if err != nil {
		t.Fatalf("parse json: %v", err)
	}
	if in.Materials != 1 || in.Suppliers != 2 || in.Products != 2 {
		t.Fatalf("unexpected dimensions m=%d s=%d p=%d", in.Materials, in.Suppliers, in.Products)
	}
	if !in.Recycled[0][1] || in.Recycled[0][0] {
		t.Fatalf("type alias not honoured: %v", in.Recycled)
	}
	if _, err := market.New(in); err != nil {
		t.Fatalf("inferred instance should validate: %v", err)
	}
}

func TestParseJSONRejectsMalformedDocuments(t *testing.T) {
	cases := map[string]string{
		"not json":       `{"moq": [`,
		"not object":     `[1, 2]`,
		"scalar matrix":  `{"moq": 3, "cap": [[1]], "mp": [[1]], "recycled": [[true]], "mc": [[1]], "sp": [1]}`,
		"ragged row":     `{"moq": [[1], 2], "cap": [[1]], "mp": [[1]], "recycled": [[true]], "mc": [[1]], "sp": [1]}`,
		"missing prices": `{"moq": [[1]], "cap": [[1]], "mp": [[1]], "recycled": [[true]], "mc": [[1]]}`,
		"string cell":    `{"moq": [["abc"]], "cap": [[1]], "mp": [[1]], "recycled": [[true]], "mc": [[1]], "sp": [1]}`,
		"null capacity":  `{"moq": [[1]], "cap": [[null]], "mp": [[1]], "recycled": [[true]], "mc": [[1]], "sp": [1]}`,
		"numeric flag":   `{"moq": [[1]], "cap": [[1]], "mp": [[1]], "recycled": [[1]], "mc": [[1]], "sp": [1]}`,
		"string price":   `{"moq": [[1]], "cap": [[1]], "mp": [[1]], "recycled": [[true]], "mc": [[1]], "sp": ["5"]}`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseJSON([]byte(doc)); err == nil {
				t.Fatal("expected parse error")
			}
		})
	}
}

func TestParseJSONNamesBadCell(t *testing.T) {
	doc := `{"moq": [[1, 2], [3, "x"]], "cap": [[1, 1], [1, 1]], "mp": [[1, 1], [1, 1]], "recycled": [[true, false], [false, true]], "mc": [[1, 1]], "sp": [1]}`
	_, err := ParseJSON([]byte(doc))
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !strings.Contains(err.Error(), "moq: row 1 column 1") {
		t.Fatalf("error does not locate the cell: %v", err)
	}
}

func TestYAMLRoundTrip(t *testing.T) {
	data, err := Encode(Pruned(), FormatYAML)
	if err != nil {
		t.Fatalf("encode yaml: %v", err)
	}
	in, err := ParseYAML(data)
	if err != nil {
		t.Fatalf("parse yaml: %v", err)
	}
	if !reflect.DeepEqual(in, Pruned()) {
		t.Fatalf("yaml round trip differs:\n got=%+v\nwant=%+v", in, Pruned())
	}
	if _, err := ParseYAML([]byte("moq: [[1]]\nunknown: 3\n")); err == nil {
		t.Fatal("expected unknown field error")
	}
}

func TestLoadFileByExtension(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "market.json")
	if err := os.WriteFile(jsonPath, []byte(referenceJSON), 0o644); err != nil {
		t.Fatalf("write json: %v", err)
	}
	yamlData, err := Encode(Reference(), FormatYAML)
	if err != nil {
		t.Fatalf("encode yaml: %v", err)
	}
	yamlPath := filepath.Join(dir, "market.yml")
	if err := os.WriteFile(yamlPath, yamlData, 0o644); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	for _, path := range []string{jsonPath, yamlPath} {
		in, err := LoadFile(path)
		if err != nil {
			t.Fatalf("load %s: %v", path, err)
		}
		if !reflect.DeepEqual(in, Reference()) {
			t.Fatalf("load %s: unexpected instance %+v", path, in)
		}
	}

	txtPath := filepath.Join(dir, "market.txt")
	if err := os.WriteFile(txtPath, []byte(referenceJSON), 0o644); err != nil {
		t.Fatalf("write txt: %v", err)
	}
	if _, err := LoadFile(txtPath); err == nil {
		t.Fatal("expected unsupported extension error")
	}
}

func TestLoadFileDefaultsNameToBase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "small.json")
	doc := `{"moq": [[1]], "cap": [[5]], "mp": [[1]], "recycled": [[false]], "mc": [[1]], "sp": [2]}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	in, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if in.Name != "small" {
		t.Fatalf("unexpected name %q", in.Name)
	}
}

func TestBuiltins(t *testing.T) {
	names := BuiltinNames()
	if !reflect.DeepEqual(names, []string{"pruned", "reference"}) {
		t.Fatalf("unexpected builtin names %v", names)
	}
	a, _ := Builtin("reference")
	a.Capacity[0][0] = 1
	b, ok := Builtin("reference")
	if !ok || b.Capacity[0][0] != 100 {
		t.Fatal("builtin instances must be fresh copies")
	}
	if _, ok := Builtin("missing"); ok {
		t.Fatal("unexpected builtin")
	}
	for _, name := range names {
		in, _ := Builtin(name)
		if _, err := market.New(in); err != nil {
			t.Fatalf("builtin %s invalid: %v", name, err)
		}
	}
	if _, err := Resolve(""); err == nil {
		t.Fatal("expected error for empty reference")
	}
}
