package participant

import (
	"testing"

	"github.com/iov-one/weave"
	"github.com/iov-one/weave/errors"
	"github.com/iov-one/weave/weavetest"
	"github.com/iov-one/weave/weavetest/assert"
)

func TestRegisterParticipantMsgValidate(t *testing.T) {
	cases := map[string]struct {
		Msg   weave.Msg
		Wants map[string]*errors.Error
	}{
		"valid message": {
			Msg: &RegisterParticipantMsg{
				Metadata: &weave.Metadata{Schema: 1},
				Name:     "PharmaCorp",
				Role:     RoleManufacturer,
			},
			Wants: map[string]*errors.Error{
				"Metadata": nil,
				"Name":     nil,
				"Role":     nil,
			},
		},
		"missing everything": {
			Msg: &RegisterParticipantMsg{},
			Wants: map[string]*errors.Error{
				"Metadata": errors.ErrMetadata,
				"Name":     errors.ErrEmpty,
				"Role":     ErrInvalidRole,
			},
		},
		"verify requires a valid address": {
			Msg: &VerifyParticipantMsg{
				Metadata: &weave.Metadata{Schema: 1},
				Address:  weave.Address{1, 2, 3},
			},
			Wants: map[string]*errors.Error{
				"Metadata": nil,
				"Address":  errors.ErrInput,
			},
		},
		"revoke with an address": {
			Msg: &RevokeParticipantMsg{
				Metadata: &weave.Metadata{Schema: 1},
				Address:  weavetest.NewCondition().Address(),
			},
			Wants: map[string]*errors.Error{
				"Metadata": nil,
				"Address":  nil,
			},
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			err := tc.Msg.Validate()
			for field, want := range tc.Wants {
				assert.FieldError(t, err, field, want)
			}
		})
	}
}

func TestConfigurationValidate(t *testing.T) {
	cases := map[string]struct {
		Conf    Configuration
		WantErr *errors.Error
	}{
		"valid": {
			Conf: Configuration{
				Metadata:  &weave.Metadata{Schema: 1},
				Owner:     weavetest.NewCondition().Address(),
				ValidName: "^.{2,64}$",
			},
		},
		"name rule must match the whole input": {
			Conf: Configuration{
				Metadata:  &weave.Metadata{Schema: 1},
				Owner:     weavetest.NewCondition().Address(),
				ValidName: "[a-z]+",
			},
			WantErr: errors.ErrInput,
		},
		"name rule is required": {
			Conf: Configuration{
				Metadata: &weave.Metadata{Schema: 1},
				Owner:    weavetest.NewCondition().Address(),
			},
			WantErr: errors.ErrEmpty,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			if err := tc.Conf.Validate(); !tc.WantErr.Is(err) {
				t.Fatalf("unexpected error: %+v", err)
			}
		})
	}
}
