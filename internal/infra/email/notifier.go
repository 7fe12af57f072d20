package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/qwerty-development/car-marketplace-sub003/internal/domain/entity"
	"go.uber.org/zap"
)

type SMTPNotifier struct {
	host   string
	port   int
	from   string
	logger *zap.Logger
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPNotifier(host string, port int, from string, logger *zap.Logger) *SMTPNotifier {
	return &SMTPNotifier{host: host, port: port, from: from, logger: logger, send: smtp.SendMail}
}

// NotifyReview tells the dealership contact that a clip was published or rejected.
func (n *SMTPNotifier) NotifyReview(_ context.Context, to string, rec *entity.SubmissionRecord) error {
	addr := fmt.Sprintf("%s:%d", n.host, n.port)
	msg := buildReviewMessage(n.from, to, rec)

	if err := n.send(addr, nil, n.from, []string{to}, []byte(msg)); err != nil {
		n.logger.Error("failed to send review notification email",
			zap.String("to", to),
			zap.String("submission_id", rec.ID.String()),
			zap.Error(err),
		)
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("review notification email sent",
		zap.String("to", to),
		zap.String("submission_id", rec.ID.String()),
		zap.String("status", string(rec.Status)),
	)
	return nil
}

func buildReviewMessage(from, to string, rec *entity.SubmissionRecord) string {
	var subject string
	var b strings.Builder

	b.WriteString("Hello,\r\n\r\n")
	switch rec.Status {
	case entity.StatusPublished:
		subject = fmt.Sprintf("Your clip %q is live", rec.Title)
		fmt.Fprintf(&b, "Your clip %q for vehicle %s has been approved and is now visible to buyers.\r\n\r\n", rec.Title, rec.ParentVehicleID)
		fmt.Fprintf(&b, "Watch it here: %s\r\n", rec.MediaURL)
	default:
		subject = fmt.Sprintf("Your clip %q was not approved", rec.Title)
		fmt.Fprintf(&b, "Your clip %q for vehicle %s was not approved.\r\n", rec.Title, rec.ParentVehicleID)
		if rec.RejectionReason != "" {
			fmt.Fprintf(&b, "Reason: %s\r\n", rec.RejectionReason)
		}
		b.WriteString("\r\nYou can submit a new clip for this vehicle at any time.\r\n")
	}
	fmt.Fprintf(&b, "\r\nClip ID: %s\r\n\r\n-- Car Marketplace", rec.ID)

	return fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", from, to, subject, b.String())
}
