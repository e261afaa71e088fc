package risk

// FlagSet is an insertion-ordered set of flags.
type FlagSet struct {
	order []string
	seen  map[string]struct{}
}

func NewFlagSet() *FlagSet {
	return &FlagSet{seen: make(map[string]struct{})}
}

// Add inserts flags that are not already present.
func (f *FlagSet) Add(flags ...string) {
	for _, flag := range flags {
		if _, ok := f.seen[flag]; ok {
			continue
		}
		f.seen[flag] = struct{}{}
		f.order = append(f.order, flag)
	}
}

// List returns the flags in insertion order. Never nil.
func (f *FlagSet) List() []string {
	out := make([]string, len(f.order))
	copy(out, f.order)
	return out
}
