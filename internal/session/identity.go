package session

import "fmt"

// IdentityMode selects which visitor fields the widget deployment requires.
type IdentityMode int

const (
	ModeNameAndEmail IdentityMode = iota
	ModeEmailOnly
	ModeNameOnly
	ModeAnonymous
)

func (m IdentityMode) String() string {
	switch m {
	case ModeNameAndEmail:
		return "name+email"
	case ModeEmailOnly:
		return "email"
	case ModeNameOnly:
		return "name"
	case ModeAnonymous:
		return "anonymous"
	default:
		return fmt.Sprintf("IdentityMode(%d)", int(m))
	}
}

// RequiresName reports whether a display name must be supplied.
func (m IdentityMode) RequiresName() bool {
	return m == ModeNameAndEmail || m == ModeNameOnly
}

// RequiresEmail reports whether an email address must be supplied.
func (m IdentityMode) RequiresEmail() bool {
	return m == ModeNameAndEmail || m == ModeEmailOnly
}

// ParseIdentityMode converts a configured integer into an IdentityMode.
func ParseIdentityMode(n int) (IdentityMode, error) {
	m := IdentityMode(n)
	if m < ModeNameAndEmail || m > ModeAnonymous {
		return 0, fmt.Errorf("unknown identity mode %d", n)
	}
	return m, nil
}

// Identity is the visitor as presented to the widget.
type Identity struct {
	Mode  IdentityMode
	Name  string
	Email string
}

// Validate checks that every field the mode demands is present.
func (id Identity) Validate() error {
	var missing []string
	if id.Mode.RequiresName() && id.Name == "" {
		missing = append(missing, "name")
	}
	if id.Mode.RequiresEmail() && id.Email == "" {
		missing = append(missing, "email")
	}
	if len(missing) > 0 {
		return &ValidationError{Mode: id.Mode, Missing: missing}
	}
	return nil
}
