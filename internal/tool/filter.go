package tool

// Filter applies allow/deny rules to tool names. Names are compared the way
// the registry compares them, ignoring case and extra whitespace.
type Filter struct {
	allowed map[string]bool // if non-empty, only these tools are allowed
	denied  map[string]bool
}

// NewFilter creates a filter from allow/deny lists. The deny list always wins.
func NewFilter(allowed, denied []string) *Filter {
	f := &Filter{
		allowed: make(map[string]bool),
		denied:  make(map[string]bool),
	}
	for _, n := range allowed {
		f.allowed[normalizeName(n)] = true
	}
	for _, n := range denied {
		f.denied[normalizeName(n)] = true
	}
	return f
}

// IsAllowed reports whether the tool name passes the filter.
func (f *Filter) IsAllowed(name string) bool {
	if f == nil {
		return true
	}
	key := normalizeName(name)
	if f.denied[key] {
		return false
	}
	if len(f.allowed) > 0 {
		return f.allowed[key]
	}
	return true
}

func (f *Filter) IsEmpty() bool {
	return f == nil || (len(f.allowed) == 0 && len(f.denied) == 0)
}
