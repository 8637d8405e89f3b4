package salience

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/roach88/salience/internal/ir"
	"github.com/roach88/salience/internal/rule"
	"github.com/roach88/salience/internal/scope"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func personType() *rule.ObjectType {
	person := rule.NewObjectType("Person")
	person.Define("name", rule.FieldType{Kind: rule.KindString})
	person.Define("age", rule.FieldType{Kind: rule.KindInt})
	person.Define("score", rule.FieldType{Kind: rule.KindFloat})
	person.Define("active", rule.FieldType{Kind: rule.KindBool})
	person.Define("meta", rule.FieldType{Kind: rule.KindAny})
	return person
}

// personDecls returns p bound to the whole Person fact at offset 0 and a
// bound to its age field.
func personDecls(t *testing.T) []*rule.Declaration {
	t.Helper()
	person := personType()
	pat := rule.NewPattern(0, person)
	age, err := rule.NewFieldExtractor(person, "age")
	require.NoError(t, err)
	return []*rule.Declaration{
		rule.NewDeclaration("p", rule.NewPatternExtractor(person), pat),
		rule.NewDeclaration("a", age, pat),
	}
}

func mustCompile(t *testing.T, src string) *Expression {
	t.Helper()
	e, err := Compile(src, personDecls(t))
	require.NoError(t, err, "compile %q", src)
	return e
}

func personBindings(fields ir.IRObject) MapBindings {
	b := MapBindings{"p": fields}
	if age, ok := fields["age"]; ok {
		b["a"] = age
	}
	return b
}

func TestEvaluate_Determinism(t *testing.T) {
	e := mustCompile(t, "(p.age + 20) / 2")

	v, err := e.Evaluate(personBindings(ir.IRObject{"age": ir.IRInt(31)}))
	require.NoError(t, err)
	assert.True(t, v.IsInt())
	assert.Equal(t, int64(25), v.Int64())
}

func TestEvaluate_Arithmetic(t *testing.T) {
	tests := []struct {
		src     string
		want    Value
		comment string
	}{
		{"1 + 2 * 3", IntValue(7), "multiplication binds tighter"},
		{"(1 + 2) * 3", IntValue(9), "parentheses"},
		{"10 - 4 - 3", IntValue(3), "left associative"},
		{"12 / 3 / 2", IntValue(2), "left associative division"},
		{"-2 * 3", IntValue(-6), "unary minus"},
		{"- -4", IntValue(4), "double negation"},
		{"7 / 2", IntValue(3), "truncating division"},
		{"-7 / 2", IntValue(-3), "truncation toward zero"},
		{"7 / 2.0", FloatValue(3.5), "float promotion"},
		{"1.5 * 2", FloatValue(3), "float literal"},
		{"1e2", FloatValue(100), "exponent literal"},
		{".5 + 1", FloatValue(1.5), "leading dot"},
		{"1 < 2", IntValue(1), "true is one"},
		{"2 < 1", IntValue(0), "false is zero"},
		{"(1 < 2) + 1", IntValue(2), "bool promoted in arithmetic"},
		{"-(3 >= 3)", IntValue(-1), "negated bool"},
		{"1 == 1.0", IntValue(1), "mixed numeric equality"},
		{"'abc' < 'abd'", IntValue(1), "string ordering"},
		{"\"x\" != 'x'", IntValue(0), "quote styles"},
		{"a * 2", IntValue(80), "field alias"},
		{"p.age / a", IntValue(1), "alias and field read the same fact"},
		{"p.score * 2", FloatValue(3), "float field"},
		{"p.name == \"bob\"", IntValue(1), "string field"},
		{"p.active == (a > 30)", IntValue(1), "bool equality"},
		{"p.meta + 1", IntValue(6), "any field holding an int"},
	}

	b := personBindings(ir.IRObject{
		"name":   ir.IRString("bob"),
		"age":    ir.IRInt(40),
		"score":  ir.IRFloat(1.5),
		"active": ir.IRBool(true),
		"meta":   ir.IRInt(5),
	})
	for _, tt := range tests {
		t.Run(tt.comment, func(t *testing.T) {
			e := mustCompile(t, tt.src)
			got, err := e.Evaluate(b)
			require.NoError(t, err)
			assert.Equal(t, tt.want.IsInt(), got.IsInt(), "kind of %q", tt.src)
			assert.Equal(t, 0, tt.want.Compare(got), "%q = %s, want %s", tt.src, got, tt.want)
		})
	}
}

func TestEvaluate_FloatFieldAcceptsInt(t *testing.T) {
	e := mustCompile(t, "p.score * 2")
	v, err := e.Evaluate(personBindings(ir.IRObject{"score": ir.IRInt(3)}))
	require.NoError(t, err)
	assert.False(t, v.IsInt())
	assert.Equal(t, 6.0, v.Float64())
}

func TestEvaluate_FloatDivisionByZero(t *testing.T) {
	e := mustCompile(t, "1.0 / p.age")
	v, err := e.Evaluate(personBindings(ir.IRObject{"age": ir.IRInt(0)}))
	require.NoError(t, err)
	assert.True(t, math.IsInf(v.Float64(), 1))
}

func TestEvaluate_NaNComparisons(t *testing.T) {
	tests := []struct {
		op   string
		want int64
	}{
		{"==", 0},
		{"!=", 1},
		{"<", 0},
		{"<=", 0},
		{">", 0},
		{">=", 0},
	}

	nan := personBindings(ir.IRObject{"score": ir.IRFloat(math.NaN()), "age": ir.IRInt(0)})
	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			for _, src := range []string{
				"p.score " + tt.op + " 1",
				"1 " + tt.op + " p.score",
				"(0.0 / p.age) " + tt.op + " 1",
				"p.score " + tt.op + " p.score",
			} {
				v, err := mustCompile(t, src).Evaluate(nan)
				require.NoError(t, err, src)
				assert.Equal(t, tt.want, v.Int64(), src)
			}
		})
	}
}

func TestEvaluate_IntegerDivisionByZero(t *testing.T) {
	e := mustCompile(t, "100 / p.age")
	_, err := e.Evaluate(personBindings(ir.IRObject{"age": ir.IRInt(0)}))
	require.Error(t, err)
	assert.True(t, IsDivisionByZero(err))
	assert.Equal(t, "DIVISION_BY_ZERO", ErrorCode(err))
}

func TestEvaluate_ExtractionErrors(t *testing.T) {
	e := mustCompile(t, "p.age + 1")

	t.Run("missing binding", func(t *testing.T) {
		_, err := e.Evaluate(MapBindings{})
		require.Error(t, err)
		assert.True(t, IsExtractionError(err))

		var re *RuntimeError
		require.True(t, errors.As(err, &re))
		assert.Equal(t, "p", re.Declaration)
	})

	t.Run("missing field", func(t *testing.T) {
		_, err := e.Evaluate(MapBindings{"p": ir.IRObject{}})
		require.Error(t, err)
		assert.True(t, IsExtractionError(err))
		assert.ErrorIs(t, err, rule.ErrFieldMissing)
	})

	t.Run("wrong field kind", func(t *testing.T) {
		_, err := e.Evaluate(MapBindings{"p": ir.IRObject{"age": ir.IRString("old")}})
		require.Error(t, err)
		assert.True(t, IsExtractionError(err))
		assert.ErrorIs(t, err, rule.ErrFieldKind)
	})

	t.Run("binding is not an object", func(t *testing.T) {
		_, err := e.Evaluate(MapBindings{"p": ir.IRInt(3)})
		require.Error(t, err)
		assert.True(t, IsExtractionError(err))
	})

	t.Run("null binding", func(t *testing.T) {
		_, err := e.Evaluate(MapBindings{"p": ir.IRNull{}})
		require.Error(t, err)
		assert.True(t, IsExtractionError(err))
	})
}

func TestEvaluate_DynamicTypeMismatch(t *testing.T) {
	e := mustCompile(t, "p.meta * 2")
	_, err := e.Evaluate(personBindings(ir.IRObject{"meta": ir.IRString("x")}))
	require.Error(t, err)
	assert.True(t, IsTypeMismatch(err))

	cmpExpr := mustCompile(t, "p.meta < 2")
	_, err = cmpExpr.Evaluate(personBindings(ir.IRObject{"meta": ir.IRString("x")}))
	require.Error(t, err)
	assert.True(t, IsTypeMismatch(err))
}

func TestEvaluate_ExtractsFromTuple(t *testing.T) {
	decls := personDecls(t)
	e, err := Compile("(p.age + 20) / 2", decls)
	require.NoError(t, err)

	h := rule.NewFactHandle(1, rule.Fact{Type: "Person", Fields: ir.IRObject{"age": ir.IRInt(31)}})
	b := tupleBindings{tuple: rule.NewTuple(h), decls: decls}

	v, err := e.Evaluate(b)
	require.NoError(t, err)
	assert.Equal(t, int64(25), v.Int64())

	h.Retract()
	_, err = e.Evaluate(b)
	require.Error(t, err)
	assert.True(t, IsExtractionError(err))
	assert.ErrorIs(t, err, rule.ErrRetracted)
}

func TestCompile_SyntaxErrors(t *testing.T) {
	tests := []struct {
		src    string
		offset int
	}{
		{"", 0},
		{"   ", 3},
		{"1 +", 3},
		{"(1 + 2", 6},
		{"1 + 2)", 5},
		{"1 ? 2", 2},
		{"p.", 2},
		{"p.age.", 6},
		{"(p).age", 3},
		{"1 < 2 < 3", 6},
		{"1abc", 0},
		{"1e", 0},
		{"'open", 0},
		{"'bad \\q escape'", 5},
		{"+1", 0},
		{"p age", 2},
		{"99999999999999999999", 0},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			_, err := Compile(tt.src, personDecls(t))
			require.Error(t, err)
			assert.True(t, IsSyntaxError(err), "got %v", err)

			var be *BuildError
			require.True(t, errors.As(err, &be))
			assert.Equal(t, tt.src, be.Source)
			assert.Equal(t, tt.offset, be.Offset, "offset for %q: %v", tt.src, err)
		})
	}
}

func TestCompile_UnboundVariable(t *testing.T) {
	_, err := Compile("p.age + q.age", personDecls(t))
	require.Error(t, err)
	assert.True(t, IsUnboundVariableError(err))
	assert.Equal(t, "UNBOUND_VARIABLE", ErrorCode(err))

	var be *BuildError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, 8, be.Offset)

	var ue *scope.UnresolvedVariableError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "q", ue.Name)
	assert.Equal(t, scope.ReasonUndeclared, ue.Reason)
}

func TestCompileIn_ScopeReasons(t *testing.T) {
	person := personType()
	types := map[string]*rule.ObjectType{"Person": person}
	when := []ir.ElementDescr{
		{Kind: ir.ElementPattern, Pattern: &ir.PatternDescr{Bind: "p", Type: "Person"}},
		{Kind: ir.ElementNot, Children: []ir.ElementDescr{
			{Kind: ir.ElementPattern, Pattern: &ir.PatternDescr{Bind: "n", Type: "Person"}},
		}},
	}
	sc, err := scope.Build(when, types)
	require.NoError(t, err)

	e, err := CompileIn("p.age", sc)
	require.NoError(t, err)
	assert.Equal(t, "p.age", e.Source())

	_, err = CompileIn("n.age", sc)
	require.Error(t, err)
	assert.True(t, IsUnboundVariableError(err))

	var ue *scope.UnresolvedVariableError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, scope.ReasonNegated, ue.Reason)
}

func TestCompile_TypeErrors(t *testing.T) {
	tests := []string{
		"p",
		"'text'",
		"p.name",
		"p.name + 1",
		"-p.name",
		"p.missing",
		"p.age.years",
		"a.years",
		"p.name < 1",
		"p.active < (1 < 2)",
		"p.active == 1",
		"p == p",
		"p * 2",
	}
	for _, src := range tests {
		t.Run(src, func(t *testing.T) {
			_, err := Compile(src, personDecls(t))
			require.Error(t, err)
			assert.True(t, IsTypeError(err), "got %v", err)
		})
	}
}

func TestCompile_ResultKind(t *testing.T) {
	assert.Equal(t, rule.KindInt, mustCompile(t, "p.age * 2").ResultKind())
	assert.Equal(t, rule.KindFloat, mustCompile(t, "p.age * 0.5").ResultKind())
	assert.Equal(t, rule.KindBool, mustCompile(t, "p.age > 2").ResultKind())
	assert.Equal(t, rule.KindAny, mustCompile(t, "p.meta - 1").ResultKind())
	assert.Equal(t, rule.KindFloat, mustCompile(t, "p.meta - 1.0").ResultKind())
}

func TestCompile_DeclarationsSortedAndMinimal(t *testing.T) {
	person := personType()
	pat0 := rule.NewPattern(0, person)
	pat1 := rule.NewPattern(1, person)
	decls := []*rule.Declaration{
		rule.NewDeclaration("z", rule.NewPatternExtractor(person), pat0),
		rule.NewDeclaration("unused", rule.NewPatternExtractor(person), pat0),
		rule.NewDeclaration("b", rule.NewPatternExtractor(person), pat1),
	}

	e, err := Compile("z.age + b.age + z.age", decls)
	require.NoError(t, err)

	var names []string
	for _, d := range e.Declarations() {
		names = append(names, d.Name())
	}
	assert.Equal(t, []string{"b", "z"}, names)

	v, err := e.Evaluate(MapBindings{
		"z": ir.IRObject{"age": ir.IRInt(1)},
		"b": ir.IRObject{"age": ir.IRInt(10)},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(12), v.Int64())
}

func TestCompile_Idempotent(t *testing.T) {
	decls := personDecls(t)
	const src = "(p.age + 20) / 2 + (a > 40)"
	first, err := Compile(src, decls)
	require.NoError(t, err)
	second, err := Compile(src, decls)
	require.NoError(t, err)

	assert.Equal(t, first.String(), second.String())
	assert.Equal(t, first.Declarations(), second.Declarations())
	assert.Equal(t, first.ResultKind(), second.ResultKind())

	for age := int64(0); age < 100; age += 7 {
		b := personBindings(ir.IRObject{"age": ir.IRInt(age)})
		v1, err1 := first.Evaluate(b)
		v2, err2 := second.Evaluate(b)
		require.NoError(t, err1)
		require.NoError(t, err2)
		assert.Equal(t, v1, v2)
	}
}

func TestExpression_String(t *testing.T) {
	e := mustCompile(t, "p.age + 20 / 2 * -a")
	assert.Equal(t, "(p.age + ((20 / 2) * -a))", e.String())

	e = mustCompile(t, "p.name == 'x\"y'")
	assert.Equal(t, `(p.name == "x\"y")`, e.String())
}

func TestIdentifiers(t *testing.T) {
	names, err := Identifiers("$q.x + p.age * $q.y - p")
	require.NoError(t, err)
	assert.Equal(t, []string{"$q", "p"}, names)

	_, err = Identifiers("p +")
	assert.True(t, IsSyntaxError(err))
}

func TestIdentifiers_NFC(t *testing.T) {
	// A decomposed and a precomposed spelling name the same variable.
	names, err := Identifiers("cafe\u0301 + caf\u00e9")
	require.NoError(t, err)
	assert.Equal(t, []string{"caf\u00e9"}, names)
}

func TestValue(t *testing.T) {
	assert.Equal(t, "25", IntValue(25).String())
	assert.Equal(t, "2.5", FloatValue(2.5).String())
	assert.Equal(t, int64(2), FloatValue(2.9).Int64())
	assert.Equal(t, int64(-2), FloatValue(-2.9).Int64())
	assert.Equal(t, 3.0, IntValue(3).Float64())

	assert.Equal(t, -1, IntValue(1).Compare(IntValue(2)))
	assert.Equal(t, 0, IntValue(2).Compare(FloatValue(2)))
	assert.Equal(t, 1, FloatValue(2.5).Compare(IntValue(2)))

	b, err := FloatValue(1.5).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, "1.5", string(b))
}
