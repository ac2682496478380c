package variable

import "github.com/elliotchance/orderedmap"

// LibFunc is one imported function of a DLL declared in __LIBS.
type LibFunc struct {
	Name   string `json:"name"`
	Symbol string `json:"symbol"`
}

// Library is a DLL and its imported functions in declaration order.
type Library struct {
	DLL   string    `json:"dll"`
	Funcs []LibFunc `json:"funcs"`
}

// Libs is the __LIBS table keyed by DLL name, in first-seen order.
type Libs struct {
	m *orderedmap.OrderedMap
}

// NewLibs returns an empty table.
func NewLibs() *Libs {
	return &Libs{m: orderedmap.NewOrderedMap()}
}

// Add records fn of dll bound to sym. A repeated DLL name extends the
// existing entry.
func (l *Libs) Add(dll, fn, sym string) {
	var funcs []LibFunc
	if v, ok := l.m.Get(dll); ok {
		funcs = v.([]LibFunc)
	}
	l.m.Set(dll, append(funcs, LibFunc{Name: fn, Symbol: sym}))
}

// AddDLL records dll with no functions unless it is already present.
func (l *Libs) AddDLL(dll string) {
	if _, ok := l.m.Get(dll); !ok {
		l.m.Set(dll, []LibFunc{})
	}
}

// Funcs returns the functions recorded for dll.
func (l *Libs) Funcs(dll string) []LibFunc {
	v, ok := l.m.Get(dll)
	if !ok {
		return nil
	}
	return v.([]LibFunc)
}

// Len returns the number of DLLs.
func (l *Libs) Len() int { return l.m.Len() }

// Libraries returns the table in first-seen order.
func (l *Libs) Libraries() []Library {
	out := make([]Library, 0, l.m.Len())
	for el := l.m.Front(); el != nil; el = el.Next() {
		out = append(out, Library{DLL: el.Key.(string), Funcs: el.Value.([]LibFunc)})
	}
	return out
}
