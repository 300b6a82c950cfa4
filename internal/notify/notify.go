package notify

// Notifier is told about job progress and outcomes. Implementations must not
// block the caller for long; wrap slow sinks in Async.
type Notifier interface {
	ShowProgress(id int64, percent int)
	ShowSuccess(id int64, fileName string)
	ShowFailure(id int64, fileName string)
	Cancel(id int64)
}

// Multi fans every call out to each notifier in order.
type Multi []Notifier

func (m Multi) ShowProgress(id int64, percent int) {
	for _, n := range m {
		n.ShowProgress(id, percent)
	}
}

func (m Multi) ShowSuccess(id int64, fileName string) {
	for _, n := range m {
		n.ShowSuccess(id, fileName)
	}
}

func (m Multi) ShowFailure(id int64, fileName string) {
	for _, n := range m {
		n.ShowFailure(id, fileName)
	}
}

func (m Multi) Cancel(id int64) {
	for _, n := range m {
		n.Cancel(id)
	}
}

type Nop struct{}

func (Nop) ShowProgress(int64, int)   {}
func (Nop) ShowSuccess(int64, string) {}
func (Nop) ShowFailure(int64, string) {}
func (Nop) Cancel(int64)              {}
