package remote

import (
	"sort"
	"sync"

	"github.com/gabe/botpool/internal/registry"
)

// ACL is the persisted allow-list of channel ids. An empty list is open
// mode: the first channel to issue a command is granted.
type ACL struct {
	path     string
	mu       sync.Mutex
	channels map[int64]bool
}

type aclData struct {
	Channels []int64 `json:"channels"`
}

// LoadACL reads the allow-list at path and merges seed into it
func LoadACL(path string, seed []int64) (*ACL, error) {
	a := &ACL{path: path, channels: make(map[int64]bool)}

	err := registry.WithFileLock(path, func() error {
		var data aclData
		if _, err := registry.ReadJSON(path, &data); err != nil {
			return err
		}
		for _, id := range data.Channels {
			a.channels[id] = true
		}
		changed := false
		for _, id := range seed {
			if !a.channels[id] {
				a.channels[id] = true
				changed = true
			}
		}
		if changed {
			return registry.WriteJSON(path, channelData(a.channels))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Authorize reports whether channelID may issue commands. In open mode the
// channel is granted and persisted, and granted is true.
func (a *ACL) Authorize(channelID int64) (allowed, granted bool, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.channels[channelID] {
		return true, false, nil
	}
	if len(a.channels) > 0 {
		return false, false, nil
	}
	if err := a.updateLocked(func(next map[int64]bool) { next[channelID] = true }); err != nil {
		return false, false, err
	}
	return true, true, nil
}

// Allowed reports whether channelID is on the list
func (a *ACL) Allowed(channelID int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.channels[channelID]
}

// Channels returns the allow-list in ascending order
func (a *ACL) Channels() []int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return channelData(a.channels).Channels
}

// Grant adds channelID
func (a *ACL) Grant(channelID int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.updateLocked(func(next map[int64]bool) { next[channelID] = true })
}

// Revoke removes channelID
func (a *ACL) Revoke(channelID int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.updateLocked(func(next map[int64]bool) { delete(next, channelID) })
}

// updateLocked applies change to a copy of the list and keeps it only once
// the copy is on disk.
func (a *ACL) updateLocked(change func(next map[int64]bool)) error {
	next := make(map[int64]bool, len(a.channels)+1)
	for id := range a.channels {
		next[id] = true
	}
	change(next)

	err := registry.WithFileLock(a.path, func() error {
		return registry.WriteJSON(a.path, channelData(next))
	})
	if err != nil {
		return err
	}
	a.channels = next
	return nil
}

func channelData(channels map[int64]bool) aclData {
	ids := make([]int64, 0, len(channels))
	for id := range channels {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return aclData{Channels: ids}
}
