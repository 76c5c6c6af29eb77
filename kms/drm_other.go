//go:build !linux

package kms

// OpenCard always fails with ErrUnsupported.
func OpenCard(n int) (Device, error) {
	return nil, ErrUnsupported
}
