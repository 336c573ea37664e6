package event

// Kind is the discriminator sent to observers for a file change.
type Kind string

const (
	Added    Kind = "file_added"
	Modified Kind = "file_modified"
	Removed  Kind = "file_removed"
)

// Event is a single semantic file change, post-debounce. The filename is
// the sole identity; events never carry file content. The JSON form is the
// wire format delivered to observers.
type Event struct {
	Type     Kind   `json:"type"`
	Filename string `json:"filename"`
}
