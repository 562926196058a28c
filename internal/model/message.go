// internal/model/message.go
package model

import "fmt"

// Message is the payload carried by queue deliveries.
type Message struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

func (m Message) String() string {
	return fmt.Sprintf("Message{id=%d, text='%s'}", m.ID, m.Text)
}
