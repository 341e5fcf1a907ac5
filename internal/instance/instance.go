package instance

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	"cscplan/internal/market"
)

const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// LoadFile reads an instance definition, choosing the parser by extension.
// The result is not validated; market.New does that.
func LoadFile(path string) (market.Instance, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return market.Instance{}, err
	}
	format, err := formatFromPath(path)
	if err != nil {
		return market.Instance{}, err
	}
	in, err := Parse(data, format)
	if err != nil {
		return market.Instance{}, fmt.Errorf("load instance %s: %w", path, err)
	}
	if in.Name == "" {
		in.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return in, nil
}

// Resolve returns a built-in instance by name, or loads the file at ref.
func Resolve(ref string) (market.Instance, error) {
	if in, ok := Builtin(ref); ok {
		return in, nil
	}
	if ref == "" {
		return market.Instance{}, fmt.Errorf("instance is required")
	}
	return LoadFile(ref)
}

func Parse(data []byte, format string) (market.Instance, error) {
	switch format {
	case FormatJSON:
		return ParseJSON(data)
	case FormatYAML:
		return ParseYAML(data)
	default:
		return market.Instance{}, fmt.Errorf("unsupported instance format: %s", format)
	}
}

// ParseJSON reads an instance document. Dimension fields may be omitted and
// are then taken from the matrix shapes. "type" is accepted as an alias of
// "recycled".
func ParseJSON(data []byte) (market.Instance, error) {
	if !gjson.ValidBytes(data) {
		return market.Instance{}, fmt.Errorf("invalid instance json")
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return market.Instance{}, fmt.Errorf("instance json must be an object")
	}
	return fromResult(doc)
}

func fromResult(doc gjson.Result) (market.Instance, error) {
	in := market.Instance{
		Name:      doc.Get("name").String(),
		FixedCost: doc.Get("fixed_cost").Float(),
	}
	var err error
	if in.MOQ, err = floatMatrix(doc, "moq"); err != nil {
		return market.Instance{}, err
	}
	if in.Capacity, err = floatMatrix(doc, "cap"); err != nil {
		return market.Instance{}, err
	}
	if in.Price, err = floatMatrix(doc, "mp"); err != nil {
		return market.Instance{}, err
	}
	if in.Recipe, err = floatMatrix(doc, "mc"); err != nil {
		return market.Instance{}, err
	}
	recycledKey := "recycled"
	if !doc.Get(recycledKey).Exists() {
		recycledKey = "type"
	}
	if in.Recycled, err = boolMatrix(doc, recycledKey); err != nil {
		return market.Instance{}, err
	}
	sp := doc.Get("sp")
	if !sp.IsArray() {
		return market.Instance{}, fmt.Errorf("instance field sp must be an array")
	}
	for i, v := range sp.Array() {
		if v.Type != gjson.Number {
			return market.Instance{}, fmt.Errorf("instance field sp: item %d is not a number: %s", i, v.Raw)
		}
		in.SalePrice = append(in.SalePrice, v.Float())
	}

	in.Materials = dimension(doc, "n_materials", len(in.Capacity))
	in.Products = dimension(doc, "n_products", len(in.Recipe))
	suppliers := 0
	if len(in.Capacity) > 0 {
		suppliers = len(in.Capacity[0])
	}
	in.Suppliers = dimension(doc, "n_suppliers", suppliers)
	return in, nil
}

func dimension(doc gjson.Result, key string, fallback int) int {
	v := doc.Get(key)
	if !v.Exists() {
		return fallback
	}
	return int(v.Int())
}

func floatMatrix(doc gjson.Result, key string) ([][]float64, error) {
	v := doc.Get(key)
	if !v.IsArray() {
		return nil, fmt.Errorf("instance field %s must be an array of arrays", key)
	}
	var out [][]float64
	var err error
	v.ForEach(func(_, row gjson.Result) bool {
		if !row.IsArray() {
			err = fmt.Errorf("instance field %s: row %d is not an array", key, len(out))
			return false
		}
		values := make([]float64, 0, len(row.Array()))
		row.ForEach(func(_, cell gjson.Result) bool {
			if cell.Type != gjson.Number {
				err = fmt.Errorf("instance field %s: row %d column %d is not a number: %s", key, len(out), len(values), cell.Raw)
				return false
			}
			values = append(values, cell.Float())
			return true
		})
		out = append(out, values)
		return err == nil
	})
	return out, err
}

func boolMatrix(doc gjson.Result, key string) ([][]bool, error) {
	v := doc.Get(key)
	if !v.IsArray() {
		return nil, fmt.Errorf("instance field %s must be an array of arrays", key)
	}
	var out [][]bool
	var err error
	v.ForEach(func(_, row gjson.Result) bool {
		if !row.IsArray() {
			err = fmt.Errorf("instance field %s: row %d is not an array", key, len(out))
			return false
		}
		values := make([]bool, 0, len(row.Array()))
		row.ForEach(func(_, cell gjson.Result) bool {
			if cell.Type != gjson.True && cell.Type != gjson.False {
				err = fmt.Errorf("instance field %s: row %d column %d is not a boolean: %s", key, len(out), len(values), cell.Raw)
				return false
			}
			values = append(values, cell.Bool())
			return true
		})
		out = append(out, values)
		return err == nil
	})
	return out, err
}

func ParseYAML(data []byte) (market.Instance, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var in market.Instance
	if err := dec.Decode(&in); err != nil {
		return market.Instance{}, fmt.Errorf("decode instance yaml: %w", err)
	}
	return in, nil
}

// Encode renders an instance in the given format.
func Encode(in market.Instance, format string) ([]byte, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(in, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case FormatYAML:
		return yaml.Marshal(in)
	default:
		return nil, fmt.Errorf("unsupported instance format: %s", format)
	}
}

func formatFromPath(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported instance file extension: %s", path)
	}
}

var builtins = map[string]func() market.Instance{
	"reference": Reference,
	"pruned":    Pruned,
}

// Builtin returns a fresh copy of a named built-in instance.
func Builtin(name string) (market.Instance, bool) {
	build, ok := builtins[name]
	if !ok {
		return market.Instance{}, false
	}
	return build(), true
}

func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reference is the two-material, three-supplier, two-product market used
// throughout the tests and examples.
func Reference() market.Instance {
	return market.Instance{
		Name:      "reference",
		Materials: 2,
		Suppliers: 3,
		Products:  2,
		MOQ:       [][]float64{{15, 2, 1}, {10, 3, 2}},
		Capacity:  [][]float64{{100, 20, 30}, {70, 30, 50}},
		Price:     [][]float64{{2, 2.5, 3}, {2, 2.5, 2.5}},
		Recycled:  [][]bool{{false, false, true}, {false, false, true}},
		Recipe:    [][]float64{{3, 1}, {1, 3}},
		SalePrice: []float64{15, 15},
		FixedCost: 50,
	}
}

// Pruned is Reference with the recycled supplier of material 0 removed.
func Pruned() market.Instance {
	in := Reference()
	in.Name = "pruned"
	in.Capacity[0][2] = 0
	return in
}
