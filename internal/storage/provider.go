package storage

import "teamart/internal/ports"

// Provider is the storage contract used by the uploader and the /files route.
type Provider = ports.StorageProvider
