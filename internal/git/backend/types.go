package backend

import (
	"fmt"
	"strings"
)

type Kind string

const (
	KindCLI    Kind = "cli"
	KindNative Kind = "native"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindCLI, KindNative:
		return k, nil
	case "":
		return KindCLI, nil
	default:
		return "", fmt.Errorf("invalid backend %q (want %s or %s)", s, KindCLI, KindNative)
	}
}

func (k Kind) String() string { return string(k) }
