// internal/models/notification.go
package models

// Message is one outbound email handed to the notification gateway.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// AdminAlert is an operator notification (admission requests and the like).
type AdminAlert struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}
