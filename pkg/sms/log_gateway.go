package sms

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// LogGateway writes passcodes to the log instead of sending them
type LogGateway struct {
	logger *logrus.Logger
}

// NewLogGateway creates a development gateway
func NewLogGateway(logger *logrus.Logger) *LogGateway {
	return &LogGateway{logger: logger}
}

// SendPasscode implements Gateway
func (g *LogGateway) SendPasscode(ctx context.Context, phone, code string) (string, error) {
	id := fmt.Sprintf("dev-%d", time.Now().UnixNano())
	g.logger.WithFields(logrus.Fields{
		"phone":      phone,
		"code":       code,
		"message_id": id,
	}).Info("Development passcode issued")
	return id, nil
}

// GetName implements Gateway
func (g *LogGateway) GetName() string {
	return "Development log gateway"
}

// ExposesCode implements Gateway
func (g *LogGateway) ExposesCode() bool {
	return true
}
