package disasm

// FuncRecord is one line in functions.jsonl.
type FuncRecord struct {
	PC         string `json:"pc"`
	Size       int    `json:"size"`
	Name       string `json:"name"`
	Label      string `json:"label"`
	File       string `json:"file,omitempty"`
	Insts      int    `json:"insts"`
	Reachable  bool   `json:"reachable"`
	Decompiled bool   `json:"decompiled,omitempty"`
}

// CallEdgeRecord is one line in call_edges.jsonl.
type CallEdgeRecord struct {
	FromFunc string `json:"from_func"`
	FromPC   string `json:"from_pc"`
	Kind     string `json:"kind"` // "call", "tail" or "indirect"
	Target   string `json:"target"`
}
