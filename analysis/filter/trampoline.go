package filter

import "github.com/chazu/probecov/classfile"

// SwitchTrampolineFilter handles switches whose cases land on a lone GOTO
// that only forwards to the real case body. The switch branches are
// replaced by the final targets and the trampolines are ignored, so a case
// counts as covered when its body ran.
//
// A GOTO is only a trampoline when it has no source line of its own and
// both it and its target are reached through the switch alone. A
// `case 1: break;` compiles to a GOTO too, but that one carries the line
// of the break and jumps to code shared with other cases, so it is kept.
type SwitchTrampolineFilter struct{}

func (SwitchTrampolineFilter) Filter(m *classfile.Method, _ Context, out Output) {
	c := newCode(m)
	for _, in := range c.insns {
		if k := in.Op.Kind(); k != classfile.KindTableSwitch && k != classfile.KindLookupSwitch {
			continue
		}
		c.filterSwitch(in, out)
	}
}

func (c *code) filterSwitch(sw *classfile.Insn, out Output) {
	labels := append([]classfile.Label{sw.Default}, sw.Labels...)
	swi := c.index[sw]

	// Candidates first, so a shared final target can be checked against
	// every trampoline forwarding to it.
	forward := make(map[int]int)
	for _, l := range labels {
		t := c.at(l)
		if t == nil {
			return
		}
		ti := c.index[t]
		if t.Op != classfile.OpGoto || c.lined[ti] || !c.onlyFrom(ti, swi) {
			continue
		}
		if fi, ok := c.labels[t.Target]; ok && fi != ti {
			forward[ti] = fi
		}
	}
	for ti, fi := range forward {
		for _, p := range c.preds[fi] {
			if p == swi {
				continue
			}
			if f, ok := forward[p]; !ok || f != fi {
				delete(forward, ti)
				break
			}
		}
	}
	if len(forward) == 0 {
		return
	}

	var targets, trampolines []*classfile.Insn
	seen := make(map[int]bool)
	for _, l := range labels {
		i := c.labels[l]
		if fi, ok := forward[i]; ok {
			if !seen[i] {
				seen[i] = true
				trampolines = append(trampolines, c.insns[i])
			}
			i = fi
		}
		if !seen[i] {
			seen[i] = true
			targets = append(targets, c.insns[i])
		}
	}
	out.ReplaceBranches(sw, targets)
	for _, t := range trampolines {
		out.Ignore(t, t)
	}
}

// onlyFrom reports whether instruction i is reached from src and nothing
// else.
func (c *code) onlyFrom(i, src int) bool {
	preds := c.preds[i]
	if len(preds) == 0 {
		return false
	}
	for _, p := range preds {
		if p != src {
			return false
		}
	}
	return true
}
