package filter

import "github.com/chazu/probecov/classfile"

// FinallyFilter handles the duplicated code of finally blocks. A compiler
// emits the finally body once inline after the protected range and once
// more in a catch-any handler of the form
//
//	ASTORE v; <body>; ALOAD v; ATHROW
//
// The handler copy is merged instruction by instruction into the inline
// copy, and the store and rethrow are ignored.
type FinallyFilter struct{}

func (FinallyFilter) Filter(m *classfile.Method, _ Context, out Output) {
	c := newCode(m)
	seen := make(map[classfile.Label]bool)
	for _, tc := range m.TryCatch {
		if tc.Type != "" || seen[tc.Handler] {
			continue
		}
		seen[tc.Handler] = true
		c.filterHandler(tc, out)
	}
}

func (c *code) filterHandler(tc classfile.TryCatch, out Output) {
	store := c.at(tc.Handler)
	if store == nil || store.Op != classfile.OpAstore {
		return
	}
	h := c.index[store]
	v := store.Operand
	end := -1
	for i := h + 1; i+1 < len(c.insns); i++ {
		if c.insns[i].Op == classfile.OpAload && c.insns[i].Operand == v && c.insns[i+1].Op == classfile.OpAthrow {
			end = i
			break
		}
	}
	if end < 0 {
		return
	}
	inline := c.at(tc.End)
	if inline == nil {
		return
	}
	start := c.index[inline]
	body := c.insns[h+1 : end]
	if start+len(body) > len(c.insns) || (start <= end && start+len(body) > h) {
		return
	}
	for i, in := range body {
		if !sameShape(in, c.insns[start+i]) {
			return
		}
	}
	out.Ignore(store, store)
	for i, in := range body {
		out.Merge(c.insns[start+i], in)
	}
	out.Ignore(c.insns[end], c.insns[end+1])
}
