package stat

import (
	"fmt"
	"strings"

	"github.com/l3aro/obviews/pkg/program"
)

// Op is a combination operator.
type Op int

const (
	Sum Op = iota
	Max
)

func (o Op) String() string {
	if o == Max {
		return "max"
	}
	return "sum"
}

// ParseOp decodes an operator name. ok is false for unknown names, in
// which case Sum is returned.
func ParseOp(s string) (op Op, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sum", "":
		return Sum, true
	case "max":
		return Max, true
	default:
		return Sum, false
	}
}

// Apply combines v into the value of id in d.
func (o Op) Apply(d *program.Data, id string, v int64) {
	if o == Max {
		d.Max(id, v)
	} else {
		d.Add(id, v)
	}
}

// Reduce combines values with o. An empty input reduces to 0.
func (o Op) Reduce(vs ...int64) int64 {
	var r int64
	for i, v := range vs {
		switch {
		case o == Sum:
			r += v
		case i == 0 || v > r:
			r = v
		}
	}
	return r
}

// MarshalText encodes the operator by name.
func (o Op) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText decodes an operator name.
func (o *Op) UnmarshalText(b []byte) error {
	op, ok := ParseOp(string(b))
	if !ok {
		return fmt.Errorf("unknown operator %q", b)
	}
	*o = op
	return nil
}
