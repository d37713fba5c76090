package session

import "sync"

// unloading is level-triggered: once the process signals it is
// exiting, it stays signalled. Each client, though, only ever sees the
// edge - TriggerUnload fans the transition out to every currently
// registered client exactly once, not once per client query of the
// flag.
var (
	unloadMu     sync.Mutex
	unloading    bool
	liveClients  = make(map[*Client]bool)
)

func register(c *Client) {
	unloadMu.Lock()
	defer unloadMu.Unlock()
	if unloading {
		return
	}
	liveClients[c] = true
}

func unregister(c *Client) {
	unloadMu.Lock()
	defer unloadMu.Unlock()
	delete(liveClients, c)
}

// TriggerUnload signals every currently registered client that the
// host process is unloading. It is idempotent: a second call after the
// first is a no-op, since the transition it fans out has already
// happened.
func TriggerUnload() {
	unloadMu.Lock()
	if unloading {
		unloadMu.Unlock()
		return
	}
	unloading = true
	clients := make([]*Client, 0, len(liveClients))
	for c := range liveClients {
		clients = append(clients, c)
	}
	liveClients = make(map[*Client]bool)
	unloadMu.Unlock()

	for _, c := range clients {
		c.onUnload()
	}
}

// IsUnloading reports the current level of the global unload signal.
func IsUnloading() bool {
	unloadMu.Lock()
	defer unloadMu.Unlock()
	return unloading
}

// ResetUnloadForTest clears the global unload signal. It exists only
// so tests can run TriggerUnload more than once within a single
// process; production code never calls it.
func ResetUnloadForTest() {
	unloadMu.Lock()
	defer unloadMu.Unlock()
	unloading = false
	liveClients = make(map[*Client]bool)
}
