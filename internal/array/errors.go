package array

import "fmt"

// ShapeError reports incompatible operand shapes at graph construction.
// Construction-time errors abort immediately and leave no partial node.
type ShapeError struct {
	Op     string
	Shapes []Shape
	Msg    string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("shape error in %s: %s (shapes %v)", e.Op, e.Msg, e.Shapes)
}

// DTypeError reports incompatible or unsupported operand dtypes at graph
// construction.
type DTypeError struct {
	Op     string
	DTypes []DataType
	Msg    string
}

func (e *DTypeError) Error() string {
	return fmt.Sprintf("dtype error in %s: %s (dtypes %v)", e.Op, e.Msg, e.DTypes)
}
