package supervisor

import "hash/fnv"

// derivePort maps a bot id onto a stable port in [basePort, maxPort].
// The same id always gets the same port, so a bot keeps its port across
// restarts and supervisor reboots without any allocation table.
func derivePort(botID string, basePort, maxPort int) int {
	if maxPort <= basePort {
		return basePort
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(botID))
	span := uint32(maxPort - basePort + 1)
	return basePort + int(h.Sum32()%span)
}
