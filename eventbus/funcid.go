package eventbus

import "reflect"

// funcPointer returns the entry point of fn's underlying code, used to
// compare two Listener values for Off/OffAny removal.
func funcPointer(fn Listener) uintptr {
	return reflect.ValueOf(fn).Pointer()
}
