// Package artifact locates and inspects compiler output files.
package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Kind selects one of the fixed output files.
type Kind string

const (
	KindBinary   Kind = "binary"
	KindAssembly Kind = "assembly"
)

// Kinds lists every artifact kind in emission order.
var Kinds = []Kind{KindBinary, KindAssembly}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindBinary, KindAssembly:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown artifact kind %q (want binary or assembly)", s)
	}
}

// Naming is the fixed output file naming convention:
// <BaseName><BinaryExt> and <BaseName><AssemblyExt>.
type Naming struct {
	BaseName    string `yaml:"base_name,omitempty" json:"base_name,omitempty"`
	BinaryExt   string `yaml:"binary_ext,omitempty" json:"binary_ext,omitempty"`
	AssemblyExt string `yaml:"assembly_ext,omitempty" json:"assembly_ext,omitempty"`
}

// DefaultNaming is used for any field left empty.
var DefaultNaming = Naming{
	BinaryExt:   ".bin",
	AssemblyExt: ".asm",
}

// WithDefaults fills empty extensions from DefaultNaming.
func (n Naming) WithDefaults() Naming {
	if n.BinaryExt == "" {
		n.BinaryExt = DefaultNaming.BinaryExt
	}
	if n.AssemblyExt == "" {
		n.AssemblyExt = DefaultNaming.AssemblyExt
	}
	return n
}

// ForSource fills an empty BaseName from the source file name without its
// extension ("contracts/Contract.vy" -> "Contract").
func (n Naming) ForSource(source string) Naming {
	n = n.WithDefaults()
	if n.BaseName == "" && source != "" {
		base := filepath.Base(source)
		n.BaseName = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return n
}

// FileName returns the file name for kind.
func (n Naming) FileName(kind Kind) string {
	n = n.WithDefaults()
	switch kind {
	case KindAssembly:
		return n.BaseName + n.AssemblyExt
	default:
		return n.BaseName + n.BinaryExt
	}
}

// FileNames returns the names of every artifact, in Kinds order.
func (n Naming) FileNames() []string {
	names := make([]string, 0, len(Kinds))
	for _, k := range Kinds {
		names = append(names, n.FileName(k))
	}
	return names
}

// OutputPath derives the artifact path for kind inside dir.
func OutputPath(dir string, n Naming, kind Kind) string {
	return filepath.Join(dir, n.FileName(kind))
}

// NotFoundError is returned when an inspected artifact does not exist.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("artifact not found: %s", e.Path)
}

// Is lets errors.Is(err, fs.ErrNotExist) match.
func (e *NotFoundError) Is(target error) bool {
	return target == fs.ErrNotExist
}

// Exists reports whether path exists as a regular file.
func Exists(path string) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat artifact: %w", err)
	}
	return info.Mode().IsRegular(), nil
}

// IsEmpty reports whether the artifact at path has zero length.
// Callers that need to tell "missing" from "empty" should check Exists first;
// a missing path returns *NotFoundError.
func IsEmpty(path string) (bool, error) {
	size, err := Size(path)
	if err != nil {
		return false, err
	}
	return size == 0, nil
}

// Size returns the artifact length in bytes.
func Size(path string) (int64, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, &NotFoundError{Path: path}
	}
	if err != nil {
		return 0, fmt.Errorf("stat artifact: %w", err)
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("artifact %s is not a regular file", path)
	}
	return info.Size(), nil
}
