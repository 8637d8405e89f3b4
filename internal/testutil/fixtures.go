package testutil

import "github.com/roach88/salience/internal/ir"

// Pattern returns a pattern element binding bind to a fact of typ, plus
// optional alias/field pairs.
func Pattern(bind, typ string, aliasField ...string) ir.ElementDescr {
	p := &ir.PatternDescr{Bind: bind, Type: typ}
	if len(aliasField) > 0 {
		p.Fields = make(map[string]string, len(aliasField)/2)
		for i := 0; i+1 < len(aliasField); i += 2 {
			p.Fields[aliasField[i]] = aliasField[i+1]
		}
	}
	return ir.ElementDescr{Kind: ir.ElementPattern, Pattern: p}
}

// Group returns an and/or/not/exists element over children.
func Group(kind string, children ...ir.ElementDescr) ir.ElementDescr {
	return ir.ElementDescr{Kind: kind, Children: children}
}

// PersonTypes declares Person{name, age, score, vip} and
// Order{total, owner Person}.
func PersonTypes() []ir.TypeDescr {
	return []ir.TypeDescr{
		{Name: "Order", Fields: []ir.FieldDescr{
			{Name: "owner", Kind: "Person"},
			{Name: "total", Kind: ir.FieldKindFloat},
		}},
		{Name: "Person", Fields: []ir.FieldDescr{
			{Name: "age", Kind: ir.FieldKindInt},
			{Name: "name", Kind: ir.FieldKindString},
			{Name: "score", Kind: ir.FieldKindFloat},
			{Name: "vip", Kind: ir.FieldKindBool},
		}},
	}
}

// PersonPackage is the package most tests build: "rule 1" is the
// canonical (p.age + 20) / 2 rule; "plain" has no salience.
func PersonPackage() *ir.PackageDescr {
	return &ir.PackageDescr{
		Name:  "pkg1",
		Types: PersonTypes(),
		Rules: []ir.RuleDescr{
			{
				Name:     "rule 1",
				Dialect:  ir.DefaultDialect,
				Salience: "(p.age + 20) / 2",
				When:     []ir.ElementDescr{Pattern("p", "Person")},
			},
			{
				Name:     "big order",
				Dialect:  ir.DefaultDialect,
				Salience: "o.total * 2 + a",
				When: []ir.ElementDescr{
					Pattern("p", "Person", "a", "age"),
					Pattern("o", "Order"),
				},
			},
			{
				Name:    "plain",
				Dialect: ir.DefaultDialect,
				When:    []ir.ElementDescr{Pattern("p", "Person")},
			},
		},
	}
}
