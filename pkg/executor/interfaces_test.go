package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackendInterface(t *testing.T) {
	var _ Backend = &Local{}
	var _ Backend = &Remote{}
}

func TestParseTarget(t *testing.T) {
	tests := []struct {
		target string
		want   TargetKind
	}{
		{"localhost", KindLocal},
		{"LocalHost", KindLocal},
		{"", KindLocal},
		{"127.0.0.1", KindLocal},
		{"10.0.0.5", KindRemote},
		{"db01.example.com", KindRemote},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseTarget(tt.target))
		})
	}
}

func TestNew(t *testing.T) {
	b, err := New(Config{Kind: KindLocal})
	require.NoError(t, err)
	assert.IsType(t, &Local{}, b)

	b, err = New(Config{Kind: KindRemote, Host: "db01", User: "root", Password: "x"})
	require.NoError(t, err)
	assert.IsType(t, &Remote{}, b)

	_, err = New(Config{Kind: TargetKind(7)})
	assert.ErrorIs(t, err, ErrUnknownTargetKind)
	assert.Contains(t, err.Error(), "TargetKind(7)")
}

func TestNewRemoteValidation(t *testing.T) {
	_, err := NewRemote(Config{Kind: KindRemote, Host: "db01", User: "root"})
	assert.ErrorIs(t, err, ErrNoAuthMethod)

	_, err = NewRemote(Config{Kind: KindRemote, User: "root", Password: "x"})
	assert.Error(t, err)

	_, err = NewRemote(Config{Kind: KindRemote, Host: "db01", Password: "x"})
	assert.Error(t, err)

	_, err = NewRemote(Config{Kind: KindRemote, Host: "db01", User: "root", Password: "x", HostKeyPolicy: "yolo"})
	assert.ErrorIs(t, err, ErrUnknownHostKeyPolicy)
}

func TestParseHostKeyPolicy(t *testing.T) {
	p, err := ParseHostKeyPolicy("")
	require.NoError(t, err)
	assert.Equal(t, HostKeyAutoAccept, p)

	p, err = ParseHostKeyPolicy("tofu")
	require.NoError(t, err)
	assert.Equal(t, HostKeyTOFU, p)

	_, err = ParseHostKeyPolicy("trust-everything")
	assert.ErrorIs(t, err, ErrUnknownHostKeyPolicy)
}

func TestTargetKindString(t *testing.T) {
	assert.Equal(t, "local", KindLocal.String())
	assert.Equal(t, "remote", KindRemote.String())
}
