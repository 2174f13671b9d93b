//go:build windows

package secrets

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

// DPAPIProtector uses CryptProtectData with the LOCAL_MACHINE scope, so any
// process on this machine can decrypt, and no other machine can.
type DPAPIProtector struct{}

// DefaultProtector returns the platform protector.
func DefaultProtector() Protector {
	return DPAPIProtector{}
}

func (DPAPIProtector) Protect(plaintext, entropy []byte) ([]byte, error) {
	var out windows.DataBlob
	err := windows.CryptProtectData(
		newBlob(plaintext),
		nil,
		newBlob(entropy),
		0,
		nil,
		windows.CRYPTPROTECT_LOCAL_MACHINE|windows.CRYPTPROTECT_UI_FORBIDDEN,
		&out,
	)
	if err != nil {
		return nil, fmt.Errorf("CryptProtectData: %w", err)
	}
	return takeBlob(&out), nil
}

func (DPAPIProtector) Unprotect(ciphertext, entropy []byte) ([]byte, error) {
	var out windows.DataBlob
	err := windows.CryptUnprotectData(
		newBlob(ciphertext),
		nil,
		newBlob(entropy),
		0,
		nil,
		windows.CRYPTPROTECT_UI_FORBIDDEN,
		&out,
	)
	if err != nil {
		return nil, fmt.Errorf("CryptUnprotectData: %w", err)
	}
	return takeBlob(&out), nil
}

func (DPAPIProtector) Name() string {
	return "dpapi"
}

func newBlob(data []byte) *windows.DataBlob {
	if len(data) == 0 {
		return &windows.DataBlob{}
	}
	return &windows.DataBlob{Size: uint32(len(data)), Data: &data[0]}
}

// takeBlob copies the DPAPI output into Go memory and frees the original.
func takeBlob(blob *windows.DataBlob) []byte {
	if blob.Data == nil {
		return []byte{}
	}
	defer windows.LocalFree(windows.Handle(unsafe.Pointer(blob.Data)))
	out := make([]byte, blob.Size)
	copy(out, unsafe.Slice(blob.Data, blob.Size))
	return out
}
