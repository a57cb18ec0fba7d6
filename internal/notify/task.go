package notify

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// TypeEnrollmentConfirmation is the asynq task type for confirmation emails.
const TypeEnrollmentConfirmation = "enrollment:confirmation"

// QueueNotifications is the asynq queue notification tasks run on.
const QueueNotifications = "notifications"

// Student is one enrolled student in a confirmation.
type Student struct {
	Name     string   `json:"name"`
	Courses  []string `json:"courses"`
	Package  string   `json:"package"`
	Total    int64    `json:"total"`
	Discount int64    `json:"discount"`
}

// Confirmation is the payload of an enrollment confirmation task.
type Confirmation struct {
	OrderID      string    `json:"orderId"`
	Email        string    `json:"email"`
	CustomerName string    `json:"customerName"`
	Amount       int64     `json:"amount"`
	Discount     int64     `json:"discount"`
	RedirectURL  string    `json:"redirectUrl,omitempty"`
	Students     []Student `json:"students"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (c Confirmation) validate() error {
	if strings.TrimSpace(c.OrderID) == "" {
		return errors.New("confirmation: order id required")
	}
	if strings.TrimSpace(c.Email) == "" {
		return errors.New("confirmation: recipient email required")
	}
	return nil
}

func encodeConfirmation(c Confirmation) ([]byte, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	return json.Marshal(c)
}

func decodeConfirmation(data []byte) (Confirmation, error) {
	var c Confirmation
	if err := json.Unmarshal(data, &c); err != nil {
		return Confirmation{}, err
	}
	return c, c.validate()
}
