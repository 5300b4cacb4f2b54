package journal

const (
	// readBufferSize is the ioctl output buffer. Large pages keep the
	// syscall count low on big volumes.
	readBufferSize = 1 << 20

	// maxPendingEvents caps how many change records an incremental read
	// will accumulate before giving up in favor of a full re-enumeration.
	maxPendingEvents = 500_000

	// Progress reporting cadences, in records. Reporting every record
	// would serialize the hot loop on the shared counters.
	enumProgressBatch  = 50_000
	eventProgressBatch = 10_000
)

// Control is the cooperative cancellation and progress contract checked
// between ioctl pages, never mid-syscall.
type Control interface {
	Cancelled() bool
	Progress(done int)
}

type nopControl struct{}

func (nopControl) Cancelled() bool { return false }
func (nopControl) Progress(int)    {}

// NopControl is a Control that never cancels and discards progress.
var NopControl Control = nopControl{}
