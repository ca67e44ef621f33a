package fault

import (
	"errors"
	"io/fs"
	"testing"
)

func TestKindSentinelsMatchByKind(t *testing.T) {
	err := Validationf("bad name %q", "x y")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("errors.Is(validation, ErrValidation) = false")
	}
	if errors.Is(err, ErrPermission) {
		t.Fatalf("errors.Is(validation, ErrPermission) = true")
	}
}

func TestIOWrapPreservesCause(t *testing.T) {
	cause := fs.ErrNotExist
	err := IOWrap(cause, "copy partition %s", "steve_base")
	if !errors.Is(err, ErrIO) {
		t.Fatalf("errors.Is(io, ErrIO) = false")
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("wrapped cause lost")
	}
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{Validationf("x"), Validation},
		{Permissionf("x"), Permission},
		{Missingf("x"), Missing},
		{IOWrap(errors.New("disk"), "x"), IO},
		{errors.New("plain"), 0},
		{nil, 0},
	}
	for _, tc := range cases {
		if got := KindOf(tc.err); got != tc.want {
			t.Fatalf("KindOf(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := IOWrap(errors.New("device busy"), "flush partition")
	if got := err.Error(); got != "flush partition: device busy" {
		t.Fatalf("Error() = %q", got)
	}
}
