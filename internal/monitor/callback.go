package monitor

import "reflect"

// sameCallback compares two SampleCallback values by underlying function
// pointer identity. Go forbids comparing func values directly; reflect is
// the idiomatic escape hatch for "is this the same callback" dedup.
func sameCallback(a, b SampleCallback) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}
