package pkg

import "github.com/google/uuid"

// GenerateRoomID - new room identifier.
func GenerateRoomID() string {
	return uuid.NewString()
}

// GenerateSessionID - identifier for a client connection.
func GenerateSessionID() string {
	return uuid.NewString()
}

// GenerateWorkerID - default identifier for a worker process.
func GenerateWorkerID() string {
	return "worker-" + uuid.NewString()[:8]
}
