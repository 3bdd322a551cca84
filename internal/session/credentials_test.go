package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		creds   Credentials
		wantErr error
	}{
		{name: "complete", creds: Credentials{Actor: "admin-1", Token: "tok"}, wantErr: nil},
		{name: "missing actor", creds: Credentials{Token: "tok"}, wantErr: ErrMissingActor},
		{name: "missing token", creds: Credentials{Actor: "admin-1"}, wantErr: ErrMissingToken},
		{name: "whitespace actor", creds: Credentials{Actor: "  ", Token: "tok"}, wantErr: ErrMissingActor},
		{name: "empty", creds: Credentials{}, wantErr: ErrMissingActor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.creds.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}
