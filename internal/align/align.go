// Package align provides power-of-two rounding helpers shared by the
// region layout, the guard controller and the detector front-end.
package align

// IsPow2 reports whether n is a non-zero power of two.
func IsPow2(n uintptr) bool {
	return n != 0 && n&(n-1) == 0
}

// Up returns n aligned up to the next multiple of a. a must be a power of two.
//
// Example:
//
//	Up(1, 4096)    = 4096
//	Up(4096, 4096) = 4096
//	Up(4097, 4096) = 8192
func Up(n, a uintptr) uintptr {
	return (n + a - 1) &^ (a - 1)
}

// Down returns n aligned down to a multiple of a. a must be a power of two.
//
// Example:
//
//	Down(4095, 16) = 4080
//	Down(4096, 16) = 4096
func Down(n, a uintptr) uintptr {
	return n &^ (a - 1)
}

// Pages returns how many pages of pageSize are needed to hold n bytes.
func Pages(n, pageSize uintptr) uintptr {
	return Up(n, pageSize) / pageSize
}
