// Package assert holds panicking precondition checks for constructor
// arguments. A failure here is a wiring bug, never a runtime condition.
package assert

import "fmt"

func NotNil(value any, name string) {
	if value == nil {
		panic(fmt.Sprintf("expected %s to be not nil", name))
	}
}

func NotEmptyStr(str, name string) {
	if str == "" {
		panic(fmt.Sprintf("expected %s to be non-empty", name))
	}
}
