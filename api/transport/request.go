package transport

import "encoding/json"

// EmailRequest is the body of the email based dispatch commands.
type EmailRequest struct {
	Email string `json:"email"`
}

// String returns the JSON body sent to the API.
func (r EmailRequest) String() string {
	out, err := json.Marshal(r)
	if err != nil {
		return "{}"
	}
	return string(out)
}
