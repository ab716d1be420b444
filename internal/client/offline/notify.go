package offline

// Notifier shows a short message to the user.
type Notifier interface {
	Notify(msg string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(msg string)

func (f NotifierFunc) Notify(msg string) { f(msg) }

// QueuedMessage is shown when a mutation is captured for later sync.
const QueuedMessage = "Saved offline, queued for sync"
