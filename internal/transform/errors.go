package transform

import (
	"fmt"

	"github.com/strand-ml/strand/internal/array"
)

// NotDifferentiableError reports a gradient request through a primitive
// that has no gradient rule. It fires while the adjoint graph is being
// built, not during evaluation, and only for nodes the cotangent actually
// reaches: a comparison used for a forward-only mask is fine.
type NotDifferentiableError struct {
	Kind array.Kind
}

func (e *NotDifferentiableError) Error() string {
	return fmt.Sprintf("%s is not differentiable", e.Kind)
}
