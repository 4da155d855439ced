package dashboard

// Mode is which device form, if any, is open. Exactly one mode is active.
type Mode int

const (
	ModeIdle Mode = iota
	ModeAdding
	ModeEditing
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeAdding:
		return "adding"
	case ModeEditing:
		return "editing"
	}
	return "unknown"
}

// MarshalText renders the mode by name in JSON snapshots.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}
