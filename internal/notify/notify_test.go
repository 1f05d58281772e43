package notify

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	mail "github.com/go-mail/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDialer struct {
	sent []*mail.Message
	err  error
}

func (f *fakeDialer) DialAndSend(m ...*mail.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m...)
	return nil
}

func TestNotifyLocked(t *testing.T) {
	d := &fakeDialer{}
	n := NewSMTPNotifierWithDialer("security@example.com", d)

	until := time.Date(2024, 3, 1, 12, 15, 0, 0, time.UTC)
	err := n.NotifyLocked(context.Background(), LockoutNotice{
		Username: "alice", Email: "alice@example.com", Until: until, Minutes: 15,
	})
	require.NoError(t, err)
	require.Len(t, d.sent, 1)

	assert.Equal(t, []string{"alice@example.com"}, d.sent[0].GetHeader("To"))
	var buf bytes.Buffer
	_, err = d.sent[0].WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "15 minute(s)")
}

func TestNotifyLocked_Errors(t *testing.T) {
	n := NewSMTPNotifierWithDialer("x@example.com", &fakeDialer{err: errors.New("conn refused")})
	err := n.NotifyLocked(context.Background(), LockoutNotice{Username: "bob", Email: "bob@example.com"})
	assert.Error(t, err)

	err = n.NotifyLocked(context.Background(), LockoutNotice{Username: "bob"})
	assert.ErrorIs(t, err, ErrNoRecipient)
}

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "a…@e….com", maskEmail("Alice@Example.com"))
	assert.Equal(t, "a@e….org", maskEmail("a@example.org"))
	assert.Equal(t, "***", maskEmail("ab"))
}

func TestNewSMTPNotifier_TLSModes(t *testing.T) {
	n := NewSMTPNotifier(SMTPConfig{Host: "smtp.example.com", Port: 465, TLSMode: "ssl"})
	d, ok := n.dialer.(*mail.Dialer)
	require.True(t, ok)
	assert.True(t, d.SSL)
	assert.Equal(t, "smtp.example.com", d.TLSConfig.ServerName)
}
