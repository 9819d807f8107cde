package dto

// ErrorResponse carries either a list of messages or a field -> messages map.
type ErrorResponse struct {
	Errors interface{} `json:"errors"`
}

func Messages(msgs ...string) ErrorResponse {
	return ErrorResponse{Errors: msgs}
}

func FieldErrors(fields map[string][]string) ErrorResponse {
	return ErrorResponse{Errors: fields}
}

// NotesResponse is the generic success body.
type NotesResponse struct {
	Notes []string `json:"notes"`
}
