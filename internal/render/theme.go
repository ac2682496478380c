package render

// Theme holds colors for graph rendering.
type Theme struct {
	Background string
	NodeFill   string
	NodeBorder string
	TextColor  string

	// Edge colors by provenance category.
	EdgeDirect   string // calls between user functions
	EdgeRuntime  string // calls into runtime commands and imports
	EdgeTail     string // jumps into another function
	EdgeIndirect string // calls through a register or memory slot

	// Node accents.
	EntryBorder  string // program entry and other roots
	StubFill     string // placeholder functions (sub_xxx)
	ExternalText string // runtime and unresolved targets

	// Cluster styling.
	ClusterBorder string // subgraph cluster border
	ClusterLabel  string // subgraph cluster label text

	// CFG successor edges.
	CondTaken string
	CondFall  string
}

// NASA is the NASA/Bauhaus theme: geometric, monochrome, sparse color.
var NASA = Theme{
	Background: "#F5F5F5",
	NodeFill:   "white",
	NodeBorder: "#1A1A1A",
	TextColor:  "#1A1A1A",

	EdgeDirect:   "#424242", // dark gray
	EdgeRuntime:  "#00695C", // teal
	EdgeTail:     "#E65100", // deep orange
	EdgeIndirect: "#FC3D21", // NASA red

	EntryBorder:  "#0B3D91", // NASA blue
	StubFill:     "#ECEFF1", // blue-gray 50
	ExternalText: "#9E9E9E",

	ClusterBorder: "#BDBDBD",
	ClusterLabel:  "#757575",

	CondTaken: "#0B3D91",
	CondFall:  "#FC3D21",
}
