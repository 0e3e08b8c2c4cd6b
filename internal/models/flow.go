// Package models defines the storage-level types shared by storage and index.
package models

import "time"

// FlowFile describes one flow document on disk.
type FlowFile struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}
