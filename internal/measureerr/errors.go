// Package measureerr defines the distinct failure kinds of spec.md §7, each
// wrapping an underlying cause via github.com/pkg/errors so callers get a
// stack trace under %+v without this module having to roll its own.
package measureerr

import "github.com/pkg/errors"

// FirmwareDecodeError covers every way §4.1's firmware metadata decoder can
// reject an image: wrong footer GUID, wrong metadata GUID, wrong signature,
// unsupported version, short buffer, unknown section-type index, or a
// missing metadata-offset entry.
type FirmwareDecodeError struct {
	cause error
}

func NewFirmwareDecodeError(format string, args ...interface{}) *FirmwareDecodeError {
	return &FirmwareDecodeError{cause: errors.Errorf(format, args...)}
}

func WrapFirmwareDecodeError(err error, format string, args ...interface{}) *FirmwareDecodeError {
	return &FirmwareDecodeError{cause: errors.Wrapf(err, format, args...)}
}

func (e *FirmwareDecodeError) Error() string { return "firmware decode: " + e.cause.Error() }
func (e *FirmwareDecodeError) Unwrap() error  { return e.cause }

// HobError is raised when the TD_HOB section required by §4.3 is missing.
type HobError struct {
	cause error
}

func NewHobError(format string, args ...interface{}) *HobError {
	return &HobError{cause: errors.Errorf(format, args...)}
}

func (e *HobError) Error() string { return "hob: " + e.cause.Error() }
func (e *HobError) Unwrap() error { return e.cause }

// PeDecodeError covers §4.5's PE/COFF parsing failures: undersize DOS
// header, bad "PE\0\0" signature, unknown optional-header magic, header
// offsets exceeding file size, or imageSize < sumOfBytesHashed + certSize.
type PeDecodeError struct {
	cause error
}

func NewPeDecodeError(format string, args ...interface{}) *PeDecodeError {
	return &PeDecodeError{cause: errors.Errorf(format, args...)}
}

func WrapPeDecodeError(err error, format string, args ...interface{}) *PeDecodeError {
	return &PeDecodeError{cause: errors.Wrapf(err, format, args...)}
}

func (e *PeDecodeError) Error() string { return "pe decode: " + e.cause.Error() }
func (e *PeDecodeError) Unwrap() error { return e.cause }

// KernelPatchError covers §4.6's kernel header patcher: an initrd present
// with protocol < 0x200, or an initrd at or beyond initrdMax.
type KernelPatchError struct {
	cause error
}

func NewKernelPatchError(format string, args ...interface{}) *KernelPatchError {
	return &KernelPatchError{cause: errors.Errorf(format, args...)}
}

func (e *KernelPatchError) Error() string { return "kernel patch: " + e.cause.Error() }
func (e *KernelPatchError) Unwrap() error { return e.cause }

// PackageTooLarge is declared for API parity with spec.md §7: it belongs to
// the AML package-length encoder used by the out-of-scope external
// collaborator that synthesizes non-custom-hardware ACPI tables, and this
// module never constructs or returns one.
type PackageTooLarge struct {
	Length uint64
}

func (e *PackageTooLarge) Error() string {
	return errors.Errorf("AML package length %d exceeds 2^28", e.Length).Error()
}
