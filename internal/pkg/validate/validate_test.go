package validate

import (
	"errors"
	"testing"

	"github.com/go-support-chat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStruct_CreateTicket_AllFields(t *testing.T) {
	err := Struct(domain.CreateTicketRequest{
		Email: "a@b.com", Category: "Billing", Subject: "Invoice", Message: "Need a copy",
	})
	assert.NoError(t, err)
}

func TestStruct_CreateTicket_MissingFields(t *testing.T) {
	req := domain.CreateTicketRequest{Email: "a@b.com", Category: "Billing"}
	err := Struct(req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))
	assert.Equal(t, []string{"Subject", "Message"}, Fields(req))
}

func TestStruct_CreateTicket_BadEmail(t *testing.T) {
	err := Struct(domain.CreateTicketRequest{
		Email: "not-an-email", Category: "Billing", Subject: "Invoice", Message: "hi",
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, "'Email' failed 'email'")
}

func TestStruct_Pin(t *testing.T) {
	cases := []struct {
		pin string
		ok  bool
	}{
		{"1234", true},
		{"123456", true},
		{"123", false},
		{"1234567", false},
		{"12a4", false},
		{"", false},
	}
	for _, c := range cases {
		err := Struct(domain.PinSubmission{Pin: c.pin})
		assert.Equal(t, c.ok, err == nil, "pin: %q", c.pin)
	}
}
