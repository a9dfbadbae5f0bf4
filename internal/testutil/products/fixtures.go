package products

// Fixture is a predefined set of products.
type Fixture interface {
	Name() string
	Specs() []*Spec
}

type fixture struct {
	build func() []*Spec
	name  string
}

func (f *fixture) Name() string   { return f.name }
func (f *fixture) Specs() []*Spec { return f.build() }

// Predefined fixtures. Specs are rebuilt on every call so tests cannot
// share mutated state.
var (
	// FixturePharmacy is a small unclassified pharmacy catalog.
	FixturePharmacy Fixture = &fixture{
		name: "Pharmacy",
		build: func() []*Spec {
			return []*Spec{
				New("Durex Extra Safe Condoms 12").Brand("Durex"),
				New("Vichy Mineral 89 Booster").Brand("Vichy").Description("Serum per fytyre"),
				New("Nutriva Omega 3 TG").Brand("Nutriva").Description("Suplement ushqimor"),
				New("Pampers Baby Dry 4").Brand("Pampers"),
				New("Plaster").Brand("Unknown"),
			}
		},
	}

	// FixtureImaged has products that already carry primary images.
	FixtureImaged Fixture = &fixture{
		name: "Imaged",
		build: func() []*Spec {
			return []*Spec{
				New("La Roche Posay Effaclar Duo").Brand("La Roche Posay").Images("/images/effaclar-duo.jpg"),
				New("Bioderma Sensibio H2O").Brand("Bioderma").Images("/images/sensibio-h2o.jpg", "/images/sensibio-back.jpg"),
			}
		},
	}
)
