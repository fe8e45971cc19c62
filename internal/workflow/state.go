package workflow

// Mode selects how a commit treats words outside the wordpool.
type Mode int

const (
	// ModeRegular only accepts wordpool words.
	ModeRegular Mode = iota
	// ModeIntrusion accepts any word and registers unknown ones.
	ModeIntrusion
)

func (m Mode) String() string {
	if m == ModeIntrusion {
		return "intrusion"
	}
	return "regular"
}

// State is a step of the commit state machine.
type State int

const (
	StateIdle State = iota
	StateResolvingVocabulary
	StateHandlingUnmatched
	StateEnsuringFileReady
	StateDeletingExistingAtPosition
	StatePersisting
	StateDone
	StateAborted
)

var stateNames = [...]string{
	StateIdle:                       "idle",
	StateResolvingVocabulary:        "resolving_vocabulary",
	StateHandlingUnmatched:          "handling_unmatched",
	StateEnsuringFileReady:          "ensuring_file_ready",
	StateDeletingExistingAtPosition: "deleting_existing_at_position",
	StatePersisting:                 "persisting",
	StateDone:                       "done",
	StateAborted:                    "aborted",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
