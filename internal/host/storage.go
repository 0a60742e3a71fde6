package host

// TranscriptStorage keeps everything a terminal printed, keyed by terminal
// ID. Offsets are absolute: trimming old output never shifts them.
type TranscriptStorage interface {
	Create(id string) error
	Append(id string, data []byte) error
	ReadFrom(id string, offset int64) ([]byte, error)
	Size(id string) (int64, error)
	Delete(id string) error
}

const DefaultMaxTranscriptSize = 10 * 1024 * 1024 // 10 MB
