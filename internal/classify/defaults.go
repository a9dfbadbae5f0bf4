package classify

import "github.com/Veraticus/catalog-janitor/internal/model"

// Top-level storefront categories.
const (
	CategoryPharmacy    = "farmaci"
	CategoryDermo       = "dermokozmetikë"
	CategorySupplements = "suplemente"
	CategoryMotherBaby  = "mama dhe bebi"
	CategoryHygiene     = "higjienë"
)

// DefaultTaxonomy returns the storefront category tree.
func DefaultTaxonomy() []model.Category {
	return []model.Category{
		{Name: CategoryPharmacy, Subcategories: []string{
			"Mirëqenia seksuale",
			"Dhimbje dhe temperaturë",
			"Ftohje dhe grip",
			"Sistemi tretës",
			"Pajisje mjekësore",
			"Ndihma e parë",
		}},
		{Name: CategoryDermo, Subcategories: []string{
			"Fytyre",
			"Trupi",
			"Flokët",
			"Mbrojtje nga dielli",
			"Makijazh",
		}},
		{Name: CategorySupplements, Subcategories: []string{
			"Vitamina dhe minerale",
			"Omega 3",
			"Probiotikë",
			"Proteina dhe sport",
			"Kolagjen",
		}},
		{Name: CategoryMotherBaby, Subcategories: []string{
			"Ushqim për bebe",
			"Kujdesi për bebin",
			"Shtatzënia",
		}},
		{Name: CategoryHygiene, Subcategories: []string{
			"Higjiena orale",
			"Higjiena intime",
			"Deodorantë",
		}},
	}
}

// Skin-care words keep supplement rules off creams and lotions.
var topicals = []string{"cream", "krem", "lotion", "locion", "serum", "shampoo", "shampo"}

// DefaultRules returns the built-in rules. Specific product families carry
// higher priorities than the broad brand and body-part rules below them.
func DefaultRules() []model.CategoryRule {
	return []model.CategoryRule{
		// Sexual wellness
		{
			Name:     "sexual-wellness-brands",
			Type:     model.RuleTypeBrand,
			Brands:   []string{"durex", "control", "pasante"},
			Target:   model.Placement{Category: CategoryPharmacy, Subcategory: "Mirëqenia seksuale"},
			Priority: 90,
		},
		{
			Name:     "sexual-wellness",
			Include:  []string{"condom", "prezervativ", "lubricant", "lubrifikant"},
			Target:   model.Placement{Category: CategoryPharmacy, Subcategory: "Mirëqenia seksuale"},
			Priority: 85,
		},

		// Baby
		{
			Name:     "baby-food-brands",
			Type:     model.RuleTypeBrand,
			Brands:   []string{"aptamil", "humana", "hipp", "nan optipro"},
			Target:   model.Placement{Category: CategoryMotherBaby, Subcategory: "Ushqim për bebe"},
			Priority: 80,
		},
		{
			Name:     "baby-food",
			Include:  []string{"infant formula", "baby milk", "qumësht për bebe", "qull"},
			Target:   model.Placement{Category: CategoryMotherBaby, Subcategory: "Ushqim për bebe"},
			Priority: 80,
		},
		{
			Name:     "pregnancy",
			Include:  []string{"pregnancy", "shtatzëni", "prenatal", "ovulation"},
			Target:   model.Placement{Category: CategoryMotherBaby, Subcategory: "Shtatzënia"},
			Priority: 65,
		},
		{
			Name:     "baby-care",
			Include:  []string{"baby", "bebe", "diaper", "pelena", "pacifier", "biberon"},
			Exclude:  []string{"baby face"},
			Target:   model.Placement{Category: CategoryMotherBaby, Subcategory: "Kujdesi për bebin"},
			Priority: 55,
		},

		// Sun care beats face and body care.
		{
			Name:     "sun-protection",
			Include:  []string{"spf", "sunscreen", "sun protect", "kundër diellit", "solaire", "after sun"},
			Target:   model.Placement{Category: CategoryDermo, Subcategory: "Mbrojtje nga dielli"},
			Priority: 80,
		},

		// Supplements
		{
			Name:     "omega-3",
			Include:  []string{"omega 3", "omega-3", "fish oil", "vaj peshku", "krill"},
			Exclude:  topicals,
			Target:   model.Placement{Category: CategorySupplements, Subcategory: "Omega 3"},
			Priority: 75,
		},
		{
			Name:     "probiotics",
			Include:  []string{"probiotic", "probiotik", "lactobacillus", "bifido", "kefir"},
			Exclude:  topicals,
			Target:   model.Placement{Category: CategorySupplements, Subcategory: "Probiotikë"},
			Priority: 75,
		},
		{
			Name:     "protein-sport",
			Include:  []string{"protein", "whey", "bcaa", "creatine", "kreatin", "pre-workout"},
			Exclude:  topicals,
			Target:   model.Placement{Category: CategorySupplements, Subcategory: "Proteina dhe sport"},
			Priority: 70,
		},
		{
			Name:     "collagen",
			Include:  []string{"collagen", "kolagjen"},
			Exclude:  topicals,
			Target:   model.Placement{Category: CategorySupplements, Subcategory: "Kolagjen"},
			Priority: 70,
		},
		{
			Name: "vitamins-minerals",
			Include: []string{
				"vitamin", "multivitamin", "magnesium", "magnez", "zinc", "zink",
				"calcium", "kalcium", "iron", "hekur", "folic", "biotin",
			},
			Exclude:  topicals,
			Target:   model.Placement{Category: CategorySupplements, Subcategory: "Vitamina dhe minerale"},
			Priority: 60,
		},

		// Pharmacy
		{
			Name:     "pain-fever",
			Include:  []string{"paracetamol", "ibuprofen", "analgesic", "aspirin", "nurofen", "panadol", "ketonal"},
			Target:   model.Placement{Category: CategoryPharmacy, Subcategory: "Dhimbje dhe temperaturë"},
			Priority: 70,
		},
		{
			Name:     "medical-devices",
			Include:  []string{"thermometer", "termometër", "blood pressure", "tensiometër", "glucometer", "inhaler", "nebulizer"},
			Target:   model.Placement{Category: CategoryPharmacy, Subcategory: "Pajisje mjekësore"},
			Priority: 65,
		},
		{
			Name:     "cold-flu",
			Include:  []string{"cold", "flu", "grip", "kollë", "cough", "throat", "fyti", "nasal spray", "sprej hundësh"},
			Exclude:  []string{"cold cream", "cold wax"},
			Target:   model.Placement{Category: CategoryPharmacy, Subcategory: "Ftohje dhe grip"},
			Priority: 55,
		},
		{
			Name:     "digestive",
			Include:  []string{"digest", "laxative", "laksativ", "antacid", "stomak", "bloating"},
			Target:   model.Placement{Category: CategoryPharmacy, Subcategory: "Sistemi tretës"},
			Priority: 55,
		},
		{
			Name:     "first-aid",
			Include:  []string{"plaster", "bandage", "fashë", "antiseptic", "antiseptik", "gauze", "garzë"},
			Target:   model.Placement{Category: CategoryPharmacy, Subcategory: "Ndihma e parë"},
			Priority: 50,
		},

		// Hygiene
		{
			Name:     "oral-care-brands",
			Type:     model.RuleTypeBrand,
			Brands:   []string{"oral-b", "sensodyne", "elmex", "parodontax", "curaprox"},
			Target:   model.Placement{Category: CategoryHygiene, Subcategory: "Higjiena orale"},
			Priority: 60,
		},
		{
			Name:     "oral-care",
			Include:  []string{"toothpaste", "pastë dhëmbësh", "mouthwash", "toothbrush", "furçë dhëmbësh", "dental floss"},
			Target:   model.Placement{Category: CategoryHygiene, Subcategory: "Higjiena orale"},
			Priority: 60,
		},
		{
			Name:     "intimate-care",
			Include:  []string{"intimate", "intim", "feminine wash"},
			Target:   model.Placement{Category: CategoryHygiene, Subcategory: "Higjiena intime"},
			Priority: 60,
		},
		{
			Name:     "deodorant",
			Include:  []string{"deodorant", "antiperspirant", "roll-on"},
			Target:   model.Placement{Category: CategoryHygiene, Subcategory: "Deodorantë"},
			Priority: 55,
		},

		// Dermocosmetics
		{
			Name:     "hair-care",
			Include:  []string{"shampoo", "shampo", "conditioner", "balsam flokësh", "hair", "flokë"},
			Target:   model.Placement{Category: CategoryDermo, Subcategory: "Flokët"},
			Priority: 50,
		},
		{
			Name:     "makeup",
			Include:  []string{"mascara", "maskara", "lipstick", "buzëkuq", "foundation", "fondatinë", "eyeliner", "concealer"},
			Target:   model.Placement{Category: CategoryDermo, Subcategory: "Makijazh"},
			Priority: 45,
		},
		{
			Name:     "face-care",
			Include:  []string{"face", "fytyr", "serum", "micellar", "micelar", "eye cream", "anti-age", "anti-aging", "moisturizer"},
			Target:   model.Placement{Category: CategoryDermo, Subcategory: "Fytyre"},
			Priority: 40,
		},
		{
			Name:     "body-care",
			Include:  []string{"body", "trupi", "shower gel", "xhel dushi", "hand cream", "krem duarsh"},
			Target:   model.Placement{Category: CategoryDermo, Subcategory: "Trupi"},
			Priority: 35,
		},
		{
			Name:     "dermo-brands",
			Type:     model.RuleTypeBrand,
			Brands:   []string{"la roche-posay", "vichy", "bioderma", "avène", "avene", "cerave", "uriage", "ducray", "svr", "filorga"},
			Target:   model.Placement{Category: CategoryDermo, Subcategory: "Fytyre"},
			Priority: 30,
		},
	}
}
