package model

import "time"

// FileTransferRequest tracks the offer/response handshake that precedes a
// transfer. Chunk movement itself happens out of band; only the state machine
// and the resulting file record live here.
type FileTransferRequest struct {
	ID        int64
	From      int64
	To        int64
	FileName  string
	FileSize  int64
	State     RequestState
	CreatedAt time.Time
	UpdatedAt time.Time
}

type File struct {
	ID        int64
	OwnerID   int64
	Name      string
	Size      int64
	MimeType  string
	CreatedAt time.Time
}
