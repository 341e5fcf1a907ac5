package market

// Market is the validated, read-only view over an Instance. It owns deep
// copies of the instance arrays so callers cannot mutate it after
// construction.
type Market struct {
	name      string
	materials int
	suppliers int
	products  int
	moq       [][]float64
	capacity  [][]float64
	price     [][]float64
	recycled  [][]bool
	recipe    [][]float64
	salePrice []float64
	fixedCost float64
	totals    []float64
}

func New(in Instance) (*Market, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return &Market{
		name:      in.Name,
		materials: in.Materials,
		suppliers: in.Suppliers,
		products:  in.Products,
		moq:       cloneMatrix(in.MOQ),
		capacity:  cloneMatrix(in.Capacity),
		price:     cloneMatrix(in.Price),
		recycled:  cloneBoolMatrix(in.Recycled),
		recipe:    cloneMatrix(in.Recipe),
		salePrice: append([]float64(nil), in.SalePrice...),
		fixedCost: in.FixedCost,
		totals:    marketTotals(in.Capacity),
	}, nil
}

func (m *Market) Name() string       { return m.name }
func (m *Market) Materials() int     { return m.materials }
func (m *Market) Suppliers() int     { return m.suppliers }
func (m *Market) Products() int      { return m.products }
func (m *Market) FixedCost() float64 { return m.fixedCost }

func (m *Market) MOQ(material, supplier int) float64      { return m.moq[material][supplier] }
func (m *Market) Capacity(material, supplier int) float64 { return m.capacity[material][supplier] }
func (m *Market) Price(material, supplier int) float64    { return m.price[material][supplier] }
func (m *Market) Recycled(material, supplier int) bool    { return m.recycled[material][supplier] }

// Requirement is the number of units of material consumed by one unit of product.
func (m *Market) Requirement(product, material int) float64 { return m.recipe[product][material] }

func (m *Market) SalePrice(product int) float64 { return m.salePrice[product] }

// MaterialCapacity returns, per material, how much can be bought on the whole
// market (sum over every supplier, zero-capacity suppliers included).
func (m *Market) MaterialCapacity() []float64 {
	return append([]float64(nil), m.totals...)
}

// Recipe returns a copy of the per-unit material consumption of product.
func (m *Market) Recipe(product int) []float64 {
	return append([]float64(nil), m.recipe[product]...)
}

// RequiredMaterials lists the materials with a nonzero requirement for product.
func (m *Market) RequiredMaterials(product int) []int {
	var out []int
	for material, need := range m.recipe[product] {
		if need != 0 {
			out = append(out, material)
		}
	}
	return out
}

// Instance reconstructs the raw definition the market was built from.
func (m *Market) Instance() Instance {
	return Instance{
		Name:      m.name,
		Materials: m.materials,
		Suppliers: m.suppliers,
		Products:  m.products,
		MOQ:       m.moq,
		Capacity:  m.capacity,
		Price:     m.price,
		Recycled:  m.recycled,
		Recipe:    m.recipe,
		SalePrice: m.salePrice,
		FixedCost: m.fixedCost,
	}.Clone()
}

// Clone returns a deep copy of the instance.
func (in Instance) Clone() Instance {
	out := in
	out.MOQ = cloneMatrix(in.MOQ)
	out.Capacity = cloneMatrix(in.Capacity)
	out.Price = cloneMatrix(in.Price)
	out.Recycled = cloneBoolMatrix(in.Recycled)
	out.Recipe = cloneMatrix(in.Recipe)
	out.SalePrice = append([]float64(nil), in.SalePrice...)
	return out
}

func cloneMatrix(in [][]float64) [][]float64 {
	if in == nil {
		return nil
	}
	out := make([][]float64, len(in))
	for i, row := range in {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

func cloneBoolMatrix(in [][]bool) [][]bool {
	if in == nil {
		return nil
	}
	out := make([][]bool, len(in))
	for i, row := range in {
		out[i] = append([]bool(nil), row...)
	}
	return out
}
