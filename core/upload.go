package core

import "time"

type (
	// Status is the outcome code appended to the referrer after a form submission.
	Status string

	// StoredFile is a document persisted in the upload directory. The filename
	// is the only record of who submitted it and when.
	StoredFile struct {
		Name    string    `json:"name"`
		Size    int64     `json:"size"`
		ModTime time.Time `json:"modTime"`
	}
)

const (
	StatusNotAuthorized Status = "not_authorized"
	StatusEmptyName     Status = "empty_name"
	StatusNoFile        Status = "no_file"
	StatusNotValid      Status = "not_valid"
	StatusSuccess       Status = "success"
	StatusFail          Status = "fail"
)

func (s Status) String() string { return string(s) }
