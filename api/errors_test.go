package api

import (
	"errors"
	"fmt"
	"testing"
)

func TestStatusOf(t *testing.T) {
	if StatusOf(nil) != StatusOK {
		t.Error("nil error must map to StatusOK")
	}
	if StatusOf(ErrNoDriver) != StatusFailure {
		t.Error("error must map to StatusFailure")
	}
}

func TestCodeOf(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorCode
	}{
		{nil, ErrCodeOK},
		{fmt.Errorf("wrap: %w", ErrTableFull), ErrCodeResourceExhausted},
		{ErrSlotEmpty, ErrCodeInvalidArgument},
		{ErrPayloadTooLarge, ErrCodeInvalidArgument},
		{ErrRegistrationTimeout, ErrCodeTimeout},
		{ErrNoDriver, ErrCodeNotConnected},
		{NewError(ErrCodeDriver, "bind", nil), ErrCodeDriver},
		{errors.New("other"), ErrCodeInternal},
	}
	for _, tc := range cases {
		if got := CodeOf(tc.err); got != tc.want {
			t.Errorf("CodeOf(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestStructuredErrorUnwraps(t *testing.T) {
	err := NewError(ErrCodeInvalidArgument, "bad handle", ErrInvalidHandle).WithContext("handle", 9)
	if !errors.Is(err, ErrInvalidHandle) {
		t.Fatal("cause not reachable through errors.Is")
	}
	if msg := err.Error(); msg != "bad handle: handle out of range (context: map[handle:9])" {
		t.Errorf("message = %q", msg)
	}
}

func TestOfferResultString(t *testing.T) {
	cases := map[int64]string{
		42:                  "ok",
		NotConnected:        "not_connected",
		BackPressured:       "back_pressured",
		AdminAction:         "admin_action",
		PublicationClosed:   "closed",
		MaxPositionExceeded: "max_position_exceeded",
		0:                   "unknown",
	}
	for r, want := range cases {
		if got := OfferResultString(r); got != want {
			t.Errorf("OfferResultString(%d) = %q, want %q", r, got, want)
		}
	}
}
