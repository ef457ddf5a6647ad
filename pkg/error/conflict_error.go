package error

import "net/http"

// ConflictError reports an operation rejected because of the current job state,
// such as editing a job while it is running.
type ConflictError string

func (err ConflictError) Error() string {
	return string(err)
}

func (err ConflictError) ErrCode() string {
	return "CONFLICT_ERROR"
}

func (err ConflictError) StatusCode() int {
	return http.StatusConflict
}
