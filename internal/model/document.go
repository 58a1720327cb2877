package model

import "time"

// Document is the metadata record of one uploaded file.
// Filename is the name the client sent and is only used for display and the
// download header. Filepath is the generated name the blob is stored under.
type Document struct {
	ID        int64     `json:"id"`
	Filename  string    `json:"filename"`
	Filepath  string    `json:"filepath"`
	Filesize  int64     `json:"filesize"`
	CreatedAt time.Time `json:"created_at"`
}
