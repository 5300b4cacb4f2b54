//go:build !windows

package journal

// EnumerateVolume is unavailable without a change journal; callers fall
// back to a directory walk.
func EnumerateVolume(drive byte, ctrl Control) (map[uint64]Node, VolumeState, error) {
	return nil, VolumeState{}, ErrUnsupported
}

// ReadEvents is unavailable without a change journal.
func ReadEvents(state *VolumeState, ctrl Control) ([]Event, error) {
	return nil, ErrUnsupported
}
