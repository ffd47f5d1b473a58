package strategy

import (
	"errors"
	"fmt"
)

// ErrUnknownStrategy is returned by Build for names it does not know
var ErrUnknownStrategy = errors.New("unknown strategy")

// ParamError reports an invalid construction parameter
type ParamError struct {
	Param   string
	Value   interface{}
	Message string
}

func (e *ParamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("invalid %s value '%v'", e.Param, e.Value)
	}
	return fmt.Sprintf("invalid %s value '%v': %s", e.Param, e.Value, e.Message)
}
