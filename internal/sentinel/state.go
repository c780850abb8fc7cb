package sentinel

// State はセンチネルから導出されるカメラ状態
type State int

const (
	StateActive State = iota
	StateSleeping
	StateRecording
)

func (s State) String() string {
	switch s {
	case StateSleeping:
		return "SLEEPING"
	case StateRecording:
		return "RECORDING"
	default:
		return "ACTIVE"
	}
}

// Capturing はこの状態でフレームを撮影するかを返す
func (s State) Capturing() bool {
	return s == StateActive || s == StateRecording
}

// Flags はある時点のコマンドセンチネルのスナップショット
type Flags struct {
	Sleeping        bool `json:"sleeping"`
	Recording       bool `json:"recording"`
	DeleteRequested bool `json:"delete_requested"`
}

// ReadFlags はストアから現在のフラグを読む
func ReadFlags(s Store) Flags {
	return Flags{
		Sleeping:        s.Exists(Sleep),
		Recording:       s.Exists(Record),
		DeleteRequested: s.Exists(DeleteRecords),
	}
}

// State はフラグから状態を導出する。sleep は record より優先される
func (f Flags) State() State {
	switch {
	case f.Sleeping:
		return StateSleeping
	case f.Recording:
		return StateRecording
	default:
		return StateActive
	}
}

// CurrentState は現在の状態をストアから直接導出する
func CurrentState(s Store) State {
	return ReadFlags(s).State()
}
