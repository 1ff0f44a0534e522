package icc

// TypeDef is a `type Name<params> = Type` item (spec.md §4.1 "program").
// Expansion and parameter substitution are out of scope here (spec.md §1);
// this module only records type definitions in the program map.
type TypeDef struct {
	Name   Name
	Params []Name
	Type   *Type
}

// Program is the parser's top-level output: type definitions, declarations
// (`dec name : Type`), and definitions (`def name = Expression`). Per
// spec.md §4.1, duplicate names overwrite earlier entries.
type Program struct {
	TypeDefs     map[string]*TypeDef
	Declarations map[string]*Type
	Definitions  map[string]*Expression

	// order preserves the sequence definitions were declared in, which
	// compile_global's pre-registration pass (spec.md §4.7) walks in order
	// so that top-level compilation order matches source order.
	DefinitionOrder []Name
}

// NewProgram returns an empty Program ready to be folded into by the parser.
func NewProgram() *Program {
	return &Program{
		TypeDefs:     map[string]*TypeDef{},
		Declarations: map[string]*Type{},
		Definitions:  map[string]*Expression{},
	}
}

func (p *Program) addTypeDef(td *TypeDef) {
	p.TypeDefs[td.Name.Text] = td
}

func (p *Program) addDeclaration(name Name, t *Type) {
	p.Declarations[name.Text] = t
}

func (p *Program) addDefinition(name Name, expr *Expression, annotation *Type) {
	if _, exists := p.Definitions[name.Text]; !exists {
		p.DefinitionOrder = append(p.DefinitionOrder, name)
	}
	p.Definitions[name.Text] = expr
	if annotation != nil {
		p.Declarations[name.Text] = annotation
	}
}
