package analysis

// StringPool interns the names and descriptors of one analysis run so
// that equal strings share storage.
type StringPool struct {
	pool map[string]string
}

// NewStringPool creates an empty pool.
func NewStringPool() *StringPool {
	return &StringPool{pool: make(map[string]string)}
}

// Get returns the pooled instance of s.
func (p *StringPool) Get(s string) string {
	if s == "" {
		return ""
	}
	if v, ok := p.pool[s]; ok {
		return v
	}
	p.pool[s] = s
	return s
}

// GetAll returns a copy of ss with every element pooled.
func (p *StringPool) GetAll(ss []string) []string {
	if ss == nil {
		return nil
	}
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = p.Get(s)
	}
	return out
}

// Len returns the number of distinct strings.
func (p *StringPool) Len() int {
	return len(p.pool)
}
